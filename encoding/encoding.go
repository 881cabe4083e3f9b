// Package encoding implements the stable host-visible binary layouts named
// in spec.md §6: Q64.64 values, ticks, tick-bitmap words, and the
// compressed oracle observation / ring buffer. Every layout here is
// little-endian and fixed-width so two hosts serializing the same state
// produce byte-identical output (spec.md §5 Determinism).
package encoding

import (
	"encoding/binary"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/oracle"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/tickbitmap"
	"github.com/CoinSummer/clamm-core/tickmath"
)

// Q64Size is the on-disk width of a Q64.64 value: a 128-bit little-endian
// unsigned integer.
const Q64Size = 16

// PutQ64 writes v's raw 128-bit representation into dst[:16], little-endian.
func PutQ64(dst []byte, v q64.Q64) {
	raw := v.Raw()
	b32 := raw.Bytes32() // big-endian, 32 bytes, low 16 bytes hold the value
	for i := 0; i < Q64Size; i++ {
		dst[i] = b32[31-i]
	}
}

// Q64FromBytes decodes a 16-byte little-endian buffer into a Q64.64 value.
func Q64FromBytes(src []byte) (q64.Q64, error) {
	if len(src) < Q64Size {
		return q64.Q64{}, clamerr.Wrap(clamerr.OutOfRange, "q64 buffer too short")
	}
	var be [32]byte
	for i := 0; i < Q64Size; i++ {
		be[31-i] = src[i]
	}
	raw := new(uint256.Int).SetBytes32(be[:])
	return q64.FromRaw(raw)
}

// TickSize is the on-disk width of a tick index: a signed 32-bit
// little-endian integer.
const TickSize = 4

// PutTick writes t into dst[:4], little-endian.
func PutTick(dst []byte, t tickmath.Tick) {
	binary.LittleEndian.PutUint32(dst, uint32(int32(t)))
}

// TickFromBytes decodes a 4-byte little-endian buffer into a tick.
func TickFromBytes(src []byte) (tickmath.Tick, error) {
	if len(src) < TickSize {
		return 0, clamerr.Wrap(clamerr.OutOfRange, "tick buffer too short")
	}
	return tickmath.Tick(int32(binary.LittleEndian.Uint32(src))), nil
}

// BitmapWordSize is the on-disk width of one tick-bitmap entry: a signed
// 16-bit word index followed by a 64-bit word, both little-endian.
const BitmapWordSize = 2 + 8

// EncodeBitmap serializes a bitmap's non-zero words in ascending
// word-index order (spec.md §6).
func EncodeBitmap(b *tickbitmap.Bitmap) []byte {
	words := b.Encode()
	out := make([]byte, len(words)*BitmapWordSize)
	for i, w := range words {
		off := i * BitmapWordSize
		binary.LittleEndian.PutUint16(out[off:], uint16(w.WordIndex))
		binary.LittleEndian.PutUint64(out[off+2:], w.Word)
	}
	return out
}

// DecodeBitmap parses the byte layout EncodeBitmap produces back into a
// Bitmap.
func DecodeBitmap(src []byte) (*tickbitmap.Bitmap, error) {
	if len(src)%BitmapWordSize != 0 {
		return nil, clamerr.Wrap(clamerr.OutOfRange, "bitmap buffer length not a multiple of word size")
	}
	n := len(src) / BitmapWordSize
	words := make([]tickbitmap.EncodedWord, n)
	for i := 0; i < n; i++ {
		off := i * BitmapWordSize
		words[i] = tickbitmap.EncodedWord{
			WordIndex: int16(binary.LittleEndian.Uint16(src[off:])),
			Word:      binary.LittleEndian.Uint64(src[off+2:]),
		}
	}
	return tickbitmap.Decode(words), nil
}

// CompressedObservationSize is the fixed 27-byte width of one compressed
// ring-buffer slot (spec.md §6): time_delta u16 | sqrt_price_delta i64 |
// tick_cumulative_delta i64 | seconds_per_liquidity_delta u64 | flags u8.
const CompressedObservationSize = 2 + 8 + 8 + 8 + 1

// flagInitialized marks a slot as holding a real (not zero-value) entry.
const flagInitialized = 1 << 0

// CompressedObservation is the 27-byte delta-encoded on-disk form of one
// oracle.Observation, relative to the previous slot in ring order.
type CompressedObservation struct {
	TimeDelta                  uint16
	SqrtPriceDelta              int64
	TickCumulativeDelta         int64
	SecondsPerLiquidityDelta    uint64
	Flags                       uint8
}

// PutCompressedObservation writes one 27-byte slot into dst[:27].
func PutCompressedObservation(dst []byte, c CompressedObservation) {
	binary.LittleEndian.PutUint16(dst[0:], c.TimeDelta)
	binary.LittleEndian.PutUint64(dst[2:], uint64(c.SqrtPriceDelta))
	binary.LittleEndian.PutUint64(dst[10:], uint64(c.TickCumulativeDelta))
	binary.LittleEndian.PutUint64(dst[18:], c.SecondsPerLiquidityDelta)
	dst[26] = c.Flags
}

// CompressedObservationFromBytes decodes one 27-byte slot.
func CompressedObservationFromBytes(src []byte) (CompressedObservation, error) {
	if len(src) < CompressedObservationSize {
		return CompressedObservation{}, clamerr.Wrap(clamerr.OutOfRange, "observation buffer too short")
	}
	return CompressedObservation{
		TimeDelta:               binary.LittleEndian.Uint16(src[0:]),
		SqrtPriceDelta:          int64(binary.LittleEndian.Uint64(src[2:])),
		TickCumulativeDelta:     int64(binary.LittleEndian.Uint64(src[10:])),
		SecondsPerLiquidityDelta: binary.LittleEndian.Uint64(src[18:]),
		Flags:                   src[26],
	}, nil
}

// EncodeRing serializes a sequence of logical observations, oldest first,
// as a base record (the first observation's absolute values, in the same
// 27-byte shape with deltas-from-zero) followed by one delta slot per later
// observation (len(observations)-1 in all), each versus its immediate
// predecessor (spec.md §3/§6: "all subsequent
// entries are deltas vs. their predecessor ... implementation choice,
// documented in §6" -- predecessor-relative is what's documented here).
func EncodeRing(observations []oracle.Observation) []byte {
	out := make([]byte, len(observations)*CompressedObservationSize)
	var prev oracle.Observation
	for i, obs := range observations {
		var slot CompressedObservation
		if i == 0 {
			slot = CompressedObservation{
				TimeDelta:                clampU16(obs.Timestamp),
				SqrtPriceDelta:           lowWord(obs.SqrtPrice.Raw()),
				TickCumulativeDelta:      obs.TickCumulative,
				SecondsPerLiquidityDelta: lowWord64(obs.SecondsPerLiquidityCumulative),
				Flags:                    flagInitialized,
			}
		} else {
			slot = CompressedObservation{
				TimeDelta:                clampU16(obs.Timestamp - prev.Timestamp),
				SqrtPriceDelta:           lowWord(obs.SqrtPrice.Raw()) - lowWord(prev.SqrtPrice.Raw()),
				TickCumulativeDelta:      obs.TickCumulative - prev.TickCumulative,
				SecondsPerLiquidityDelta: lowWord64(obs.SecondsPerLiquidityCumulative) - lowWord64(prev.SecondsPerLiquidityCumulative),
				Flags:                    flagInitialized,
			}
		}
		PutCompressedObservation(out[i*CompressedObservationSize:], slot)
		prev = obs
	}
	return out
}

func clampU16(v uint32) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}

// lowWord truncates a raw Q64.64 sqrt-price to its low 64 bits. Sqrt-prices
// in the addressable tick range (spec.md §4.2) reach about 2^96 raw, so the
// truncation can drop up to the top 32 bits of the integer part. A
// difference of two truncated values equals the true difference only while
// consecutive observations are less than 2^63 raw (2^-1 in real terms) apart.
func lowWord(raw *uint256.Int) int64 {
	if raw == nil {
		return 0
	}
	return int64(raw.Uint64())
}

func lowWord64(v *big.Int) uint64 {
	if v == nil {
		return 0
	}
	return v.Uint64()
}
