package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentBuffer_AllocatesWhenEmpty(t *testing.T) {
	f := NewFragmentBuffer()
	buf := f.Get(16)
	assert.Len(t, buf, 16)
}

func TestFragmentBuffer_ReusesExactFit(t *testing.T) {
	f := NewFragmentBuffer()
	first := f.Get(16)
	f.PutBack(first)
	second := f.Get(16)
	require.Len(t, second, 16)
	assert.Same(t, &first[0], &second[0], "expected the pooled buffer to be reused, not a fresh allocation")
}

func TestFragmentBuffer_SplitsLargerFreeBuffer(t *testing.T) {
	f := NewFragmentBuffer()
	big := f.Get(32)
	f.PutBack(big)

	small := f.Get(8)
	assert.Len(t, small, 8)

	// The 24-byte remainder should have been returned to the pool under its
	// own size.
	remainder := f.Get(24)
	assert.Len(t, remainder, 24)
}

func TestFragmentBuffer_PutBackIgnoresEmptyBuffer(t *testing.T) {
	f := NewFragmentBuffer()
	f.PutBack(nil)
	assert.Empty(t, f.sizes)
}
