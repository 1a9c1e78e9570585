package connector

import (
	"io"
	"os"
	"sync"

	"github.com/nicolagi/memfs/kernel"
	"github.com/pkg/errors"
)

// FileConnector is a Connector backed by a single flat file, read and
// written at arbitrary offsets via pread/pwrite-style positioned I/O.
// Grounded on storage/disk.go's DiskStore, adapted from a path-per-key
// layout to a single byte-addressable file (e.g. a captured process dump,
// or /proc/<pid>/mem itself on systems that allow seeking into it).
type FileConnector struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func NewFileConnector(path string) (*FileConnector, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "connector: open %q", path)
	}
	return &FileConnector{path: path, f: f}, nil
}

func (c *FileConnector) Size() (kernel.Size, *kernel.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fi, err := c.f.Stat()
	if err != nil {
		return 0, kernel.NewError(kernel.OriginIo, kernel.KindUnableToReadFile)
	}
	return kernel.Size(fi.Size()), nil
}

func (c *FileConnector) ReadAt(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range ops.In {
		n, err := c.f.ReadAt(r.Buf, int64(r.Addr))
		if n > 0 && ops.Out != nil {
			if !ops.Out(kernel.RWRange{Addr: r.Addr, Buf: r.Buf[:n]}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
		}
		if n < len(r.Buf) {
			tail := kernel.RWRange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]}
			kind := kernel.KindOutOfBounds
			if err != nil && !errors.Is(err, io.EOF) {
				kind = kernel.KindUnableToReadFile
			}
			if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RWRange]{Range: tail, Err: kernel.NewError(kernel.OriginRead, kind)}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
		}
	}
	return nil
}

func (c *FileConnector) WriteAt(ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range ops.In {
		n, err := c.f.WriteAt(r.Buf, int64(r.Addr))
		if n > 0 && ops.Out != nil {
			if !ops.Out(kernel.RORange{Addr: r.Addr, Buf: r.Buf[:n]}) {
				return kernel.NewError(kernel.OriginWrite, kernel.KindUnknown)
			}
		}
		if err != nil && n < len(r.Buf) {
			tail := kernel.RORange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]}
			if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RORange]{Range: tail, Err: kernel.NewError(kernel.OriginWrite, kernel.KindUnableToWriteFile)}) {
				return kernel.NewError(kernel.OriginWrite, kernel.KindUnknown)
			}
		}
	}
	return nil
}

func (c *FileConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}
