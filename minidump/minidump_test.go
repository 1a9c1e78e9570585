package minidump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	modules := []Module{
		{Name: "main", Base: 0x400000, Size: 0x1000},
		{Name: "libc.so.6", Base: 0x7f0000000000, Size: 0x200000},
	}
	regions := []MemoryRegion{
		{Base: 0x400000, Data: []byte("hello, process")},
		{Base: 0x7f0000000000, Data: []byte{1, 2, 3, 4, 5}},
	}

	data, err := Write(modules, regions)
	require.NoError(t, err)

	gotModules, gotRegions, err := Read(data)
	require.NoError(t, err)
	assert.Equal(t, modules, gotModules)
	assert.Equal(t, regions, gotRegions)
}

func TestWriteRead_EmptyInputs(t *testing.T) {
	data, err := Write(nil, nil)
	require.NoError(t, err)

	modules, regions, err := Read(data)
	require.NoError(t, err)
	assert.Empty(t, modules)
	assert.Empty(t, regions)
}

func TestRead_RejectsBadSignature(t *testing.T) {
	_, _, err := Read(make([]byte, 32))
	assert.Error(t, err)
}

func TestRead_RejectsTruncatedContainer(t *testing.T) {
	_, _, err := Read([]byte{1, 2, 3})
	assert.Error(t, err)
}
