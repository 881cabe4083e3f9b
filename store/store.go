// Package store is an optional host-side persistence adapter: it snapshots
// a pool's scalar state, tick table, position book, and bitmap to SQLite
// via gorm, and restores them back into a fresh pool.Pool. No core
// operation depends on this package; a host that persists differently
// (Postgres, a KV store, nothing at all) never needs to import it.
package store

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/encoding"
	"github.com/CoinSummer/clamm-core/pool"
	"github.com/CoinSummer/clamm-core/position"
	"github.com/CoinSummer/clamm-core/tickmath"
)

// PoolRecord is the scalar row for one pool, the gorm analogue of the
// teacher's CorePool row: identity columns indexed, mutable state columns
// updated in place once the row exists.
type PoolRecord struct {
	gorm.Model
	PoolKey          string `gorm:"uniqueIndex"`
	TokenA           string
	TokenB           string
	FeeTierBps       uint16
	TickSpacing      uint16
	SqrtPrice        []byte
	CurrentTick      int32
	Liquidity        string
	FeeGrowthGlobalA []byte
	FeeGrowthGlobalB []byte
	BitmapBlob       []byte
}

// TickRecord is one tick's persisted state.
type TickRecord struct {
	gorm.Model
	PoolKey           string `gorm:"index"`
	Tick              int32
	LiquidityGross    string
	LiquidityNet      string
	FeeGrowthOutsideA []byte
	FeeGrowthOutsideB []byte
	Initialized       bool
}

// PositionRecord is one position's persisted state.
type PositionRecord struct {
	gorm.Model
	PoolKey              string `gorm:"index"`
	Owner                string
	Lower                int32
	Upper                int32
	Liquidity            string
	FeeGrowthInsideALast []byte
	FeeGrowthInsideBLast []byte
	TokensOwedA          uint64
	TokensOwedB          uint64
}

// Store wraps a gorm DB handle.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) a SQLite database at dsn and migrates the
// schema. dsn follows glebarez/sqlite's conventions, e.g. "clamm.db" or
// "file::memory:?cache=shared" for an in-process instance.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, clamerr.WrapCause(clamerr.OutOfRange, "opening store database", err)
	}
	if err := db.AutoMigrate(&PoolRecord{}, &TickRecord{}, &PositionRecord{}); err != nil {
		return nil, clamerr.WrapCause(clamerr.OutOfRange, "migrating store schema", err)
	}
	return &Store{db: db}, nil
}

// Snapshot persists p's full state under poolKey, replacing any prior
// snapshot's tick and position rows and upserting the scalar pool row --
// matching the teacher's Flush pattern (Create on first write, Updates
// thereafter), generalized to a full state replacement since this adapter
// is a point-in-time snapshot, not an incremental event log.
func (s *Store) Snapshot(ctx context.Context, poolKey string, p *pool.Pool, ticksSeen []tickmath.Tick, positionsSeen []position.Key) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sqrtBuf := make([]byte, encoding.Q64Size)
		encoding.PutQ64(sqrtBuf, p.SqrtPrice)
		growthABuf := make([]byte, encoding.Q64Size)
		encoding.PutQ64(growthABuf, p.FeeGrowthGlobalA)
		growthBBuf := make([]byte, encoding.Q64Size)
		encoding.PutQ64(growthBBuf, p.FeeGrowthGlobalB)

		record := PoolRecord{
			PoolKey:          poolKey,
			TokenA:           p.TokenA.Hex(),
			TokenB:           p.TokenB.Hex(),
			FeeTierBps:       p.FeeTierBps,
			TickSpacing:      p.TickSpacing,
			SqrtPrice:        sqrtBuf,
			CurrentTick:      int32(p.CurrentTick),
			Liquidity:        p.Liquidity.String(),
			FeeGrowthGlobalA: growthABuf,
			FeeGrowthGlobalB: growthBBuf,
			BitmapBlob:       encoding.EncodeBitmap(p.Bitmap),
		}

		var existing PoolRecord
		err := tx.Where("pool_key = ?", poolKey).First(&existing).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"token_a":             record.TokenA,
				"token_b":             record.TokenB,
				"fee_tier_bps":        record.FeeTierBps,
				"tick_spacing":        record.TickSpacing,
				"sqrt_price":          record.SqrtPrice,
				"current_tick":        record.CurrentTick,
				"liquidity":           record.Liquidity,
				"fee_growth_global_a": record.FeeGrowthGlobalA,
				"fee_growth_global_b": record.FeeGrowthGlobalB,
				"bitmap_blob":         record.BitmapBlob,
			}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("pool_key = ?", poolKey).Delete(&TickRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("pool_key = ?", poolKey).Delete(&PositionRecord{}).Error; err != nil {
			return err
		}

		for _, t := range ticksSeen {
			st := p.Ticks.Get(t)
			if st == nil {
				continue
			}
			outsideA := make([]byte, encoding.Q64Size)
			encoding.PutQ64(outsideA, st.FeeGrowthOutsideA)
			outsideB := make([]byte, encoding.Q64Size)
			encoding.PutQ64(outsideB, st.FeeGrowthOutsideB)
			row := TickRecord{
				PoolKey:           poolKey,
				Tick:              int32(t),
				LiquidityGross:    st.LiquidityGross.String(),
				LiquidityNet:      st.LiquidityNet.String(),
				FeeGrowthOutsideA: outsideA,
				FeeGrowthOutsideB: outsideB,
				Initialized:       st.Initialized,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		for _, k := range positionsSeen {
			pos := p.Positions.Get(k)
			if pos == nil {
				continue
			}
			insideA := make([]byte, encoding.Q64Size)
			encoding.PutQ64(insideA, pos.FeeGrowthInsideALast)
			insideB := make([]byte, encoding.Q64Size)
			encoding.PutQ64(insideB, pos.FeeGrowthInsideBLast)
			row := PositionRecord{
				PoolKey:              poolKey,
				Owner:                k.Owner.Hex(),
				Lower:                int32(k.Lower),
				Upper:                int32(k.Upper),
				Liquidity:            pos.Liquidity.String(),
				FeeGrowthInsideALast: insideA,
				FeeGrowthInsideBLast: insideB,
				TokensOwedA:          pos.TokensOwedA,
				TokensOwedB:          pos.TokensOwedB,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Restore reconstructs a pool.Pool from its most recent snapshot. The
// oracle is not part of the snapshot (it is a bounded ring a host can
// rebuild from its own event log faster than a general blob restore would)
// and comes back freshly initialized at cardinality 1.
func (s *Store) Restore(ctx context.Context, poolKey string) (*pool.Pool, error) {
	var record PoolRecord
	if err := s.db.WithContext(ctx).Where("pool_key = ?", poolKey).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, clamerr.Wrap(clamerr.TickNotFound, "no snapshot for pool_key")
		}
		return nil, err
	}

	sqrtPrice, err := encoding.Q64FromBytes(record.SqrtPrice)
	if err != nil {
		return nil, err
	}

	p, err := pool.NewPool(common.HexToAddress(record.TokenA), common.HexToAddress(record.TokenB), record.FeeTierBps, record.TickSpacing, sqrtPrice)
	if err != nil {
		return nil, err
	}

	liquidity, ok := new(big.Int).SetString(record.Liquidity, 10)
	if !ok {
		return nil, clamerr.Wrap(clamerr.OutOfRange, "corrupt liquidity value in pool record")
	}
	p.Liquidity = liquidity
	p.CurrentTick = tickmath.Tick(record.CurrentTick)
	p.FeeGrowthGlobalA, err = encoding.Q64FromBytes(record.FeeGrowthGlobalA)
	if err != nil {
		return nil, err
	}
	p.FeeGrowthGlobalB, err = encoding.Q64FromBytes(record.FeeGrowthGlobalB)
	if err != nil {
		return nil, err
	}
	bitmap, err := encoding.DecodeBitmap(record.BitmapBlob)
	if err != nil {
		return nil, err
	}
	p.Bitmap = bitmap

	var tickRows []TickRecord
	if err := s.db.WithContext(ctx).Where("pool_key = ?", poolKey).Find(&tickRows).Error; err != nil {
		return nil, err
	}
	for _, row := range tickRows {
		gross, ok := new(big.Int).SetString(row.LiquidityGross, 10)
		if !ok {
			return nil, clamerr.Wrap(clamerr.OutOfRange, "corrupt tick liquidity_gross")
		}
		net, ok := new(big.Int).SetString(row.LiquidityNet, 10)
		if !ok {
			return nil, clamerr.Wrap(clamerr.OutOfRange, "corrupt tick liquidity_net")
		}
		outsideA, err := encoding.Q64FromBytes(row.FeeGrowthOutsideA)
		if err != nil {
			return nil, err
		}
		outsideB, err := encoding.Q64FromBytes(row.FeeGrowthOutsideB)
		if err != nil {
			return nil, err
		}
		st := p.Ticks.GetOrCreate(tickmath.Tick(row.Tick))
		st.LiquidityGross = gross
		st.LiquidityNet = net
		st.FeeGrowthOutsideA = outsideA
		st.FeeGrowthOutsideB = outsideB
		st.Initialized = row.Initialized
	}

	var posRows []PositionRecord
	if err := s.db.WithContext(ctx).Where("pool_key = ?", poolKey).Find(&posRows).Error; err != nil {
		return nil, err
	}
	for _, row := range posRows {
		liq, ok := new(big.Int).SetString(row.Liquidity, 10)
		if !ok {
			return nil, clamerr.Wrap(clamerr.OutOfRange, "corrupt position liquidity")
		}
		insideA, err := encoding.Q64FromBytes(row.FeeGrowthInsideALast)
		if err != nil {
			return nil, err
		}
		insideB, err := encoding.Q64FromBytes(row.FeeGrowthInsideBLast)
		if err != nil {
			return nil, err
		}
		key := position.Key{Owner: common.HexToAddress(row.Owner), Lower: tickmath.Tick(row.Lower), Upper: tickmath.Tick(row.Upper)}
		pos := p.Positions.GetOrCreate(key)
		pos.Liquidity = liq
		pos.FeeGrowthInsideALast = insideA
		pos.FeeGrowthInsideBLast = insideB
		pos.TokensOwedA = row.TokensOwedA
		pos.TokensOwedB = row.TokensOwedB
	}

	return p, nil
}
