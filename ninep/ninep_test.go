package ninep

import (
	"testing"

	"github.com/lionkov/go9p/p"
	"github.com/stretchr/testify/assert"

	"github.com/nicolagi/memfs/kernel"
)

func TestPathQid_DirectoryBitSet(t *testing.T) {
	qid := pathQid("os/processes", kernel.NodeMetadata{IsBranch: true})
	assert.Equal(t, uint8(p.QTDIR), qid.Type)
}

func TestPathQid_LeafHasNoDirectoryBit(t *testing.T) {
	qid := pathQid("os/processes/1/mem", kernel.NodeMetadata{IsBranch: false})
	assert.Zero(t, qid.Type)
}

func TestPathQid_StableForSamePath(t *testing.T) {
	a := pathQid("a/b/c", kernel.NodeMetadata{})
	b := pathQid("a/b/c", kernel.NodeMetadata{})
	assert.Equal(t, a.Path, b.Path)
}

func TestPathQid_DiffersAcrossPaths(t *testing.T) {
	a := pathQid("a/b/c", kernel.NodeMetadata{})
	b := pathQid("a/b/d", kernel.NodeMetadata{})
	assert.NotEqual(t, a.Path, b.Path)
}

func TestDirFromMetadata_NameIsLastPathElement(t *testing.T) {
	dir := dirFromMetadata("os/processes/1/mem", kernel.NodeMetadata{HasRead: true, Size: 4096}, "u", "g")
	assert.Equal(t, "mem", dir.Name)
	assert.EqualValues(t, 4096, dir.Length)
}

func TestDirFromMetadata_RootNameIsSlash(t *testing.T) {
	dir := dirFromMetadata("", kernel.NodeMetadata{IsBranch: true}, "u", "g")
	assert.Equal(t, "/", dir.Name)
	assert.NotZero(t, dir.Mode&p.DMDIR)
}

func TestDirFromMetadata_ReadOnlyLeafHasNoWriteBit(t *testing.T) {
	dir := dirFromMetadata("f", kernel.NodeMetadata{HasRead: true, HasWrite: false}, "u", "g")
	assert.Zero(t, dir.Mode&0200)
}

func TestDirFromMetadata_WritableLeafHasWriteBit(t *testing.T) {
	dir := dirFromMetadata("f", kernel.NodeMetadata{HasRead: true, HasWrite: true}, "u", "g")
	assert.NotZero(t, dir.Mode&0200)
}
