package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/memfs/connector"
	"github.com/nicolagi/memfs/kernel"
	"github.com/nicolagi/memfs/osview"
)

func newTestCtlLeaf() *ctlLeaf {
	plugins := kernel.NewPluginStore()
	osRegistry := kernel.NewConnectionRegistry[*osview.OsRoot](plugins, func(r *osview.OsRoot) kernel.Branch { return r })
	connectorRegistry := kernel.NewConnectionRegistry[*connector.Root](plugins, func(r *connector.Root) kernel.Branch { return r })
	return newCtlLeaf(osRegistry, connectorRegistry)
}

func TestCtlLeaf_Read(t *testing.T) {
	testCases := []struct {
		name     string
		contents int
		count    int
		offset   int
		expected int
	}{
		{name: "read nothing from beginning of empty file"},
		{name: "read nothing at non-zero offset of empty file", offset: 1},
		{name: "read a byte at beginning of empty file", count: 1},
		{name: "read a byte right after end of file", contents: 16, count: 1, offset: 16},
		{name: "read last byte of file", contents: 16, count: 1, offset: 15, expected: 1},
		{name: "partial read past end of file", contents: 16, count: 2, offset: 15, expected: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			leaf := newTestCtlLeaf()
			leaf.out = make([]byte, tc.contents)
			for i := range leaf.out {
				leaf.out[i] = 42
			}
			dst := make([]byte, tc.count)
			var n int
			err := leaf.Read(kernel.VecOps[kernel.RWRange]{
				In: []kernel.RWRange{{Addr: uint64(tc.offset), Buf: dst}},
				Out: func(r kernel.RWRange) bool {
					n += len(r.Buf)
					return true
				},
			})
			require.Nil(t, err)
			assert.Equal(t, tc.expected, n)
		})
	}
}

func TestCtlLeaf_RunCommand_ConnectorLifecycle(t *testing.T) {
	leaf := newTestCtlLeaf()

	assert.Equal(t, "", leaf.runCommand("connector new mem1 memory"))
	assert.Equal(t, "mem1\n", leaf.runCommand("connector ls"))
	assert.Equal(t, "", leaf.runCommand("connector rm mem1"))
	assert.Equal(t, "", leaf.runCommand("connector ls"))
}

func TestCtlLeaf_RunCommand_OsLifecycle(t *testing.T) {
	leaf := newTestCtlLeaf()

	assert.Equal(t, "", leaf.runCommand("os new host self"))
	assert.Equal(t, "host\n", leaf.runCommand("os ls"))
	assert.Equal(t, "", leaf.runCommand("os rm host"))
}

func TestCtlLeaf_RunCommand_UnknownVerb(t *testing.T) {
	leaf := newTestCtlLeaf()
	assert.Contains(t, leaf.runCommand("bogus"), "unknown command")
}

func TestCtlLeaf_RunCommand_UnknownConnectorKind(t *testing.T) {
	leaf := newTestCtlLeaf()
	assert.Contains(t, leaf.runCommand("connector new x carrier-pigeon"), "unknown connector kind")
}

func TestCtlLeaf_Write_BuffersOutputForSubsequentRead(t *testing.T) {
	leaf := newTestCtlLeaf()
	err := leaf.Write(kernel.VecOps[kernel.RORange]{
		In: []kernel.RORange{{Addr: 0, Buf: []byte("connector new a memory")}},
	})
	require.Nil(t, err)
	assert.Equal(t, "", string(leaf.out))
	assert.Equal(t, []string{"a"}, leaf.connectorRegistry.Names())
}
