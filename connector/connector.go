// Package connector provides the raw, byte-addressable memory sources that
// osview branches read through: a flat file, an S3 object, or an in-memory
// buffer, all presented through the same scatter/gather FileOps shape.
package connector

import "github.com/nicolagi/memfs/kernel"

// Connector is the capability every raw memory source implements: scatter
// read/write over a byte range, plus its current size. Root wraps it into
// the "mem" kernel.Leaf bound under /connector/<name>.
type Connector interface {
	ReadAt(ops kernel.VecOps[kernel.RWRange]) *kernel.Error
	WriteAt(ops kernel.VecOps[kernel.RORange]) *kernel.Error
	Size() (kernel.Size, *kernel.Error)
}
