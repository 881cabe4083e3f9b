// Package tickbitmap tracks which compressed tick positions are initialized,
// giving the swap engine an O(1)-per-word way to find the next initialized
// tick in a direction without scanning every tick (spec.md §4.3). Word width
// is 64 bits, a sparse map from signed word index to word, matching the
// redesign's pick of one consistent width over the original's two.
package tickbitmap

import (
	"sort"

	"github.com/CoinSummer/clamm-core/tickmath"
)

const wordWidth = 64

// Direction is the scanning direction for NextInitialized.
type Direction int

const (
	Up   Direction = iota // toward +infinity
	Down                  // toward -infinity
)

// Bitmap is a sparse map of word index to a 64-bit word of initialized
// flags. Zero words are never stored (spec.md §4.3/§6).
type Bitmap struct {
	words map[int16]uint64
}

// New returns an empty bitmap.
func New() *Bitmap {
	return &Bitmap{words: make(map[int16]uint64)}
}

func compress(t tickmath.Tick, spacing uint16) int64 {
	return int64(t) / int64(spacing)
}

func wordAndBit(c int64) (int16, uint) {
	wordIdx := c >> 6
	bit := uint(((c % 64) + 64) % 64)
	return int16(wordIdx), bit
}

// Flip sets or clears the bit for tick (compressed by spacing) to newState.
func (b *Bitmap) Flip(t tickmath.Tick, spacing uint16, newState bool) {
	c := compress(t, spacing)
	wordIdx, bit := wordAndBit(c)
	word := b.words[wordIdx]
	if newState {
		word |= 1 << bit
	} else {
		word &^= 1 << bit
	}
	if word == 0 {
		delete(b.words, wordIdx)
	} else {
		b.words[wordIdx] = word
	}
}

// IsSet reports whether tick (compressed by spacing) is initialized.
func (b *Bitmap) IsSet(t tickmath.Tick, spacing uint16) bool {
	c := compress(t, spacing)
	wordIdx, bit := wordAndBit(c)
	return b.words[wordIdx]&(1<<bit) != 0
}

// NextInitialized finds the next initialized tick strictly beyond
// currentTick in direction dir, per the algorithm in spec.md §4.3: mask the
// current word to bits strictly on the requested side, then walk adjacent
// words. The current tick itself is never returned. Returns ok=false if no
// initialized tick exists in that direction before the i16 word-index bound.
func (b *Bitmap) NextInitialized(currentTick tickmath.Tick, spacing uint16, dir Direction) (t tickmath.Tick, ok bool) {
	c := compress(currentTick, spacing)
	if int64(currentTick)%int64(spacing) != 0 {
		// compress truncates toward zero; an unaligned tick must start from
		// the slot at or below it when scanning up, at or above it when
		// scanning down, so no initialized tick beyond it is skipped.
		if dir == Up && currentTick < 0 {
			c--
		} else if dir == Down && currentTick > 0 {
			c++
		}
	}
	wordIdx, bit := wordAndBit(c)

	word := b.words[wordIdx]
	if dir == Up {
		if bit < 63 {
			mask := ^uint64(0) << (bit + 1)
			masked := word & mask
			if masked != 0 {
				lsb := trailingZeros64(masked)
				return fromCompressed(int64(wordIdx)*64+int64(lsb), spacing), true
			}
		}
		return b.scanWords(wordIdx+1, spacing, dir)
	}

	// Down: bits strictly below bit.
	if bit > 0 {
		mask := (uint64(1) << bit) - 1
		masked := word & mask
		if masked != 0 {
			msb := 63 - leadingZeros64(masked)
			return fromCompressed(int64(wordIdx)*64+int64(msb), spacing), true
		}
	}
	return b.scanWords(wordIdx-1, spacing, dir)
}

func (b *Bitmap) scanWords(start int16, spacing uint16, dir Direction) (tickmath.Tick, bool) {
	idx := int32(start)
	for idx >= -(1<<15) && idx <= (1<<15)-1 {
		word, present := b.words[int16(idx)]
		if present && word != 0 {
			if dir == Up {
				lsb := trailingZeros64(word)
				return fromCompressed(int64(idx)*64+int64(lsb), spacing), true
			}
			msb := 63 - leadingZeros64(word)
			return fromCompressed(int64(idx)*64+int64(msb), spacing), true
		}
		if dir == Up {
			idx++
		} else {
			idx--
		}
	}
	return 0, false
}

func fromCompressed(c int64, spacing uint16) tickmath.Tick {
	return tickmath.Tick(c * int64(spacing))
}

func trailingZeros64(x uint64) int {
	if x == 0 {
		return 64
	}
	n := 0
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

func leadingZeros64(x uint64) int {
	if x == 0 {
		return 64
	}
	n := 0
	for x&(1<<63) == 0 {
		x <<= 1
		n++
	}
	return n
}

// EncodedWord is one (word_index, word) pair of the stable on-disk encoding
// from spec.md §6: ascending word order, zero words omitted (they are never
// stored in the first place, so every entry here is non-zero by construction).
type EncodedWord struct {
	WordIndex int16
	Word      uint64
}

// Encode returns the bitmap's words in ascending word-index order.
func (b *Bitmap) Encode() []EncodedWord {
	out := make([]EncodedWord, 0, len(b.words))
	for idx, w := range b.words {
		out = append(out, EncodedWord{WordIndex: idx, Word: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WordIndex < out[j].WordIndex })
	return out
}

// Decode replaces the bitmap's contents with the given encoded words.
func Decode(words []EncodedWord) *Bitmap {
	b := New()
	for _, w := range words {
		if w.Word != 0 {
			b.words[w.WordIndex] = w.Word
		}
	}
	return b
}
