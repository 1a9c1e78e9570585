package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/memfs/kernel"
)

func TestRoot_MemLeafReadsConnectorData(t *testing.T) {
	plugins := kernel.NewPluginStore()
	RegisterMapping(plugins)

	conn := NewMemoryConnector([]byte("hello"))
	root := NewRoot(conn)

	entry, err := root.GetEntry("mem", plugins)
	require.Nil(t, err)
	require.False(t, entry.IsBranch())

	md, err := entry.Leaf.Metadata()
	require.Nil(t, err)
	assert.EqualValues(t, 5, md.Size)

	fileOps, err := entry.Leaf.Open()
	require.Nil(t, err)
	buf := make([]byte, 5)
	var got []byte
	rerr := fileOps.Read(kernel.VecOps[kernel.RWRange]{
		In: []kernel.RWRange{{Addr: 0, Buf: buf}},
		Out: func(r kernel.RWRange) bool {
			got = append(got, r.Buf...)
			return true
		},
	})
	require.Nil(t, rerr)
	assert.Equal(t, "hello", string(got))
}

func TestRoot_ListingHasNoChildrenBeyondMem(t *testing.T) {
	plugins := kernel.NewPluginStore()
	RegisterMapping(plugins)

	root := NewRoot(NewMemoryConnector(nil))
	var names []string
	err := root.List(plugins, func(e kernel.BranchListEntry) bool {
		names = append(names, e.Name)
		return true
	})
	require.Nil(t, err)
	assert.Equal(t, []string{"mem"}, names)
}
