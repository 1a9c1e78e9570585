package connector

import "github.com/nicolagi/memfs/kernel"

// Root adapts a bare Connector into the Branch/Leaf pair bound under
// "/connector/<name>" by a kernel.ConnectionRegistry: a "mem" leaf is the
// connector's address space itself, mirroring the shape of
// osview.OsRoot's "os" leaf for a connection that has no process
// enumeration of its own.
type Root struct {
	kernel.BaseFileOps
	conn Connector
}

// NewRoot wraps conn for registration in a connector registry.
func NewRoot(conn Connector) *Root {
	return &Root{conn: conn}
}

// RegisterMapping binds the "mem" child of *Root into plugins. Idempotent,
// like osview.RegisterMappings.
func RegisterMapping(plugins *kernel.PluginStore) {
	kernel.RegisterMapping[*Root](plugins, "mem", kernel.LeafMapping(func(r *Root) (kernel.Leaf, bool) {
		return r, true
	}))
}

func (r *Root) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	return kernel.GetEntryViaPlugins[*Root](r, path, plugins)
}

func (r *Root) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	return kernel.ListViaPlugins[*Root](r, plugins, out)
}

func (r *Root) Open() (kernel.FileOps, *kernel.Error) {
	return r, nil
}

func (r *Root) Metadata() (kernel.NodeMetadata, *kernel.Error) {
	size, err := r.conn.Size()
	if err != nil {
		return kernel.NodeMetadata{}, err
	}
	return kernel.NodeMetadata{HasRead: true, HasWrite: true, Size: uint64(size)}, nil
}

func (r *Root) Read(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	return r.conn.ReadAt(ops)
}

func (r *Root) Write(ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	return r.conn.WriteAt(ops)
}

func (r *Root) Rpc([]byte, []byte) *kernel.Error {
	return nil
}
