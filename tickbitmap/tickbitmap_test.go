package tickbitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CoinSummer/clamm-core/tickmath"
)

func TestFlipAndIsSet(t *testing.T) {
	b := New()
	assert.False(t, b.IsSet(60, 60))
	b.Flip(60, 60, true)
	assert.True(t, b.IsSet(60, 60))
	b.Flip(60, 60, false)
	assert.False(t, b.IsSet(60, 60))
}

func TestEmptyMapNextInitializedReturnsNotOK(t *testing.T) {
	b := New()
	_, ok := b.NextInitialized(0, 60, Up)
	assert.False(t, ok)
	_, ok = b.NextInitialized(0, 60, Down)
	assert.False(t, ok)
}

func TestNextInitializedUpWithinWord(t *testing.T) {
	b := New()
	b.Flip(120, 60, true)
	b.Flip(600, 60, true)
	next, ok := b.NextInitialized(0, 60, Up)
	assert.True(t, ok)
	assert.Equal(t, tickmath.Tick(120), next)
}

func TestNextInitializedDownWithinWord(t *testing.T) {
	b := New()
	b.Flip(-120, 60, true)
	b.Flip(-600, 60, true)
	next, ok := b.NextInitialized(0, 60, Down)
	assert.True(t, ok)
	assert.Equal(t, tickmath.Tick(-120), next)
}

func TestNextInitializedCrossesWordBoundary(t *testing.T) {
	b := New()
	// compressed tick far enough away to land in a different word (64 slots * spacing 60 = 3840 ticks per word).
	far := tickmath.Tick(4200 * 60)
	b.Flip(far, 60, true)
	next, ok := b.NextInitialized(0, 60, Up)
	assert.True(t, ok)
	assert.Equal(t, far, next)
}

func TestCurrentTickNeverReturned(t *testing.T) {
	b := New()
	b.Flip(0, 60, true)
	_, ok := b.NextInitialized(0, 60, Up)
	assert.False(t, ok)
	_, ok = b.NextInitialized(0, 60, Down)
	assert.False(t, ok)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := New()
	b.Flip(120, 60, true)
	b.Flip(-9999*60, 60, true)
	encoded := b.Encode()
	assert.Len(t, encoded, 2)
	// ascending word order
	assert.True(t, encoded[0].WordIndex < encoded[1].WordIndex)

	restored := Decode(encoded)
	assert.True(t, restored.IsSet(120, 60))
	assert.True(t, restored.IsSet(-9999*60, 60))
	assert.False(t, restored.IsSet(121, 60))
}

// TestEncodeOmitsZeroWords is part of property #8 (spec.md §8):
// bitmap-tick consistency is enforced at the ticks/pool layer, but the
// encoding itself must never carry zero words.
func TestEncodeOmitsZeroWords(t *testing.T) {
	b := New()
	b.Flip(60, 60, true)
	b.Flip(60, 60, false)
	assert.Empty(t, b.Encode())
}
