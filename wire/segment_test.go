package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentTree_ExactMatch(t *testing.T) {
	tree := NewSegmentTree()
	dst := make([]byte, 16)
	tree.AddSeg(100, dst)

	got := tree.Get(100, 16)
	require.Len(t, got, 16)
	assert.Same(t, &dst[0], &got[0])
}

func TestSegmentTree_SplitsLeadingAndTrailingRemainder(t *testing.T) {
	tree := NewSegmentTree()
	dst := make([]byte, 30)
	tree.AddSeg(100, dst)

	// Ask for the middle third; the leading and trailing thirds should be
	// split back into the tree for later lookups.
	mid := tree.Get(110, 10)
	require.Len(t, mid, 10)
	assert.Same(t, &dst[10], &mid[0])

	leading := tree.Get(100, 10)
	require.Len(t, leading, 10)
	assert.Same(t, &dst[0], &leading[0])

	trailing := tree.Get(120, 10)
	require.Len(t, trailing, 10)
	assert.Same(t, &dst[20], &trailing[0])
}

func TestSegmentTree_UnregisteredRangeReturnsNil(t *testing.T) {
	tree := NewSegmentTree()
	assert.Nil(t, tree.Get(42, 8))
}

func TestSegmentTree_TruncatesToRequestedLength(t *testing.T) {
	tree := NewSegmentTree()
	dst := make([]byte, 16)
	tree.AddSeg(0, dst)

	got := tree.Get(0, 4)
	assert.Len(t, got, 4)

	// The remaining 12 bytes should still be addressable.
	rest := tree.Get(4, 12)
	assert.Len(t, rest, 12)
}
