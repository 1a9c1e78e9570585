package kernel

import "sync"

// DirEntry is the tagged variant every path resolves to: either a Branch
// (directory-like) or a Leaf (file-like). Exactly one of the two fields is
// set.
type DirEntry struct {
	Branch Branch
	Leaf   Leaf
}

func BranchEntry(b Branch) DirEntry { return DirEntry{Branch: b} }
func LeafEntry(l Leaf) DirEntry     { return DirEntry{Leaf: l} }

func (e DirEntry) IsBranch() bool { return e.Branch != nil }

// Branch is a directory-like tree entity. Concrete types normally implement
// GetEntry/List by delegating to the plugin store (see GetEntryViaPlugins),
// rather than hand-rolling path resolution.
type Branch interface {
	GetEntry(path string, plugins *PluginStore) (DirEntry, *Error)
	List(plugins *PluginStore, out func(BranchListEntry) bool) *Error
}

// BranchListEntry is one child produced by Branch.List, carrying the
// materialized child object alongside its name (as opposed to ListEntry,
// which only carries the name and a branch/leaf flag, for Frontend.List).
type BranchListEntry struct {
	Name  string
	Entry DirEntry
}

// ListRecurse implements the default composition for Branch.List: an empty
// path lists the branch itself; otherwise resolve the path and list the
// resulting branch.
func ListRecurse(b Branch, path string, plugins *PluginStore, out func(BranchListEntry) bool) *Error {
	if path == "" {
		return b.List(plugins, out)
	}
	entry, err := b.GetEntry(path, plugins)
	if err != nil {
		return err
	}
	if !entry.IsBranch() {
		return NewError(OriginBranch, KindInvalidPath)
	}
	return entry.Branch.List(plugins, out)
}

// Leaf is a file-like tree entity that can be opened for I/O.
type Leaf interface {
	Open() (FileOps, *Error)
	Metadata() (NodeMetadata, *Error)
}

// FileOps is the bound quadruple of operations on an open handle. An
// implementation that embeds BaseFileOps reports any operation it does not
// override as NotImplemented; Close is implicit and
// handled by whoever owns the handle slab entry.
type FileOps interface {
	Read(VecOps[RWRange]) *Error
	Write(VecOps[RORange]) *Error
	Rpc(input []byte, output []byte) *Error
}

// BaseFileOps can be embedded to get NotImplemented defaults for whichever
// operations a concrete FileOps does not support.
type BaseFileOps struct{}

func (BaseFileOps) Read(VecOps[RWRange]) *Error {
	return NewError(OriginRead, KindNotImplemented)
}

func (BaseFileOps) Write(VecOps[RORange]) *Error {
	return NewError(OriginWrite, KindNotImplemented)
}

func (BaseFileOps) Rpc([]byte, []byte) *Error {
	return NewError(OriginRpc, KindNotImplemented)
}

// FnFile is a reusable "compute once, serve bytes" leaf: ctx parameterizes a
// thunk that lazily produces data, which is then served read-only, with any
// read tail beyond the data's length reported as OutOfBounds rather than
// silently truncated.
type FnFile[C any, D ~[]byte] struct {
	ctx  C
	fn   func(C) (D, *Error)
	once sync.Once
	data D
	err  *Error
}

func NewFnFile[C any, D ~[]byte](ctx C, fn func(C) (D, *Error)) *FnFile[C, D] {
	return &FnFile[C, D]{ctx: ctx, fn: fn}
}

func (f *FnFile[C, D]) resolve() (D, *Error) {
	f.once.Do(func() {
		f.data, f.err = f.fn(f.ctx)
	})
	return f.data, f.err
}

func (f *FnFile[C, D]) Open() (FileOps, *Error) {
	if _, err := f.resolve(); err != nil {
		return nil, err
	}
	return &fnFileOps[C, D]{f: f}, nil
}

func (f *FnFile[C, D]) Metadata() (NodeMetadata, *Error) {
	data, err := f.resolve()
	if err != nil {
		return NodeMetadata{}, err
	}
	return NodeMetadata{HasRead: true, Size: uint64(len(data))}, nil
}

type fnFileOps[C any, D ~[]byte] struct {
	BaseFileOps
	f *FnFile[C, D]
}

func (o *fnFileOps[C, D]) Read(ops VecOps[RWRange]) *Error {
	data, err := o.f.resolve()
	if err != nil {
		return err
	}
	for _, r := range ops.In {
		off := r.Addr
		if off > uint64(len(data)) {
			off = uint64(len(data))
		}
		avail := data[off:]
		n := len(r.Buf)
		if n > len(avail) {
			n = len(avail)
		}
		copy(r.Buf[:n], avail[:n])

		cont := true
		if n > 0 {
			cont = callOut(ops.Out, RWRange{Addr: r.Addr, Buf: r.Buf[:n]})
		}
		if n < len(r.Buf) {
			cont = callOutFail(ops.OutFail, RWRange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]},
				NewError(OriginRead, KindOutOfBounds)) || cont
		}
		if !cont {
			return NewError(OriginRead, KindUnknown)
		}
	}
	return nil
}
