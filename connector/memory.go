package connector

import (
	"sync"

	"github.com/nicolagi/memfs/kernel"
)

// MemoryConnector is a Connector backed by a flat in-process byte slice.
// Grounded on storage/inmemory.go's map-backed Store, adapted from a
// key-value map to a single addressable buffer.
type MemoryConnector struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryConnector(data []byte) *MemoryConnector {
	return &MemoryConnector{data: data}
}

func (c *MemoryConnector) Size() (kernel.Size, *kernel.Error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return kernel.Size(len(c.data)), nil
}

func (c *MemoryConnector) ReadAt(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range ops.In {
		if r.Addr >= uint64(len(c.data)) {
			if !callOutFailRW(ops, r, kernel.NewError(kernel.OriginRead, kernel.KindOutOfBounds)) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
			continue
		}
		avail := c.data[r.Addr:]
		n := len(r.Buf)
		if n > len(avail) {
			n = len(avail)
		}
		copy(r.Buf[:n], avail[:n])
		if n > 0 && ops.Out != nil && !ops.Out(kernel.RWRange{Addr: r.Addr, Buf: r.Buf[:n]}) {
			return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
		}
		if n < len(r.Buf) {
			if !callOutFailRW(ops, kernel.RWRange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]}, kernel.NewError(kernel.OriginRead, kernel.KindOutOfBounds)) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
		}
	}
	return nil
}

func (c *MemoryConnector) WriteAt(ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range ops.In {
		end := r.Addr + uint64(len(r.Buf))
		if end > uint64(len(c.data)) {
			grown := make([]byte, end)
			copy(grown, c.data)
			c.data = grown
		}
		copy(c.data[r.Addr:end], r.Buf)
		if ops.Out != nil && !ops.Out(r) {
			return kernel.NewError(kernel.OriginWrite, kernel.KindUnknown)
		}
	}
	return nil
}

func callOutFailRW(ops kernel.VecOps[kernel.RWRange], r kernel.RWRange, err *kernel.Error) bool {
	if ops.OutFail == nil {
		return true
	}
	return ops.OutFail(kernel.FailRange[kernel.RWRange]{Range: r, Err: err})
}
