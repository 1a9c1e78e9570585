package osview

import "github.com/nicolagi/memfs/kernel"

// OsRoot is the root Branch/Leaf pair for one OS connection: it is itself
// a Leaf (the raw OS-level memory view, registered under the name "os")
// and exposes a "processes" child Branch, matching
// original_source/cloudflow/src/os.rs's on_node registrations.
type OsRoot struct {
	kernel.BaseFileOps
	provider OsProvider
	plist    *ProcessList
}

func NewOsRoot(provider OsProvider) *OsRoot {
	return &OsRoot{provider: provider, plist: newProcessList(provider)}
}

// RegisterMappings binds the "os"/"processes" children of *OsRoot, the
// "by-pid"/"by-name"/"by-pid-name" children of *ProcessList, the
// "mem"/"info"/"maps"/"phys_maps"/"modules"/"dump" children of *LazyProcess,
// and the "mem"/"info" children of *Module into plugins. It is idempotent
// (RegisterMapping no-ops on a name already bound) so cmd/memfsd can call
// it once at startup regardless of how many OS connections are mounted.
func RegisterMappings(plugins *kernel.PluginStore) {
	kernel.RegisterMapping[*OsRoot](plugins, "os", kernel.LeafMapping(func(r *OsRoot) (kernel.Leaf, bool) {
		return r, true
	}))
	kernel.RegisterMapping[*OsRoot](plugins, "processes", kernel.BranchMapping(func(r *OsRoot) (kernel.Branch, bool) {
		return r.plist, true
	}))

	kernel.RegisterMapping[*ProcessList](plugins, "by-pid", kernel.BranchMapping(func(l *ProcessList) (kernel.Branch, bool) {
		return l.byPID, true
	}))
	kernel.RegisterMapping[*ProcessList](plugins, "by-name", kernel.BranchMapping(func(l *ProcessList) (kernel.Branch, bool) {
		return l.byName, true
	}))
	kernel.RegisterMapping[*ProcessList](plugins, "by-pid-name", kernel.BranchMapping(func(l *ProcessList) (kernel.Branch, bool) {
		return l.byPIDName, true
	}))

	kernel.RegisterMapping[*LazyProcess](plugins, "mem", kernel.LeafMapping(func(p *LazyProcess) (kernel.Leaf, bool) {
		return p, true
	}))
	kernel.RegisterMapping[*LazyProcess](plugins, "info", kernel.LeafMapping(func(p *LazyProcess) (kernel.Leaf, bool) {
		return infoLeaf(p), true
	}))
	kernel.RegisterMapping[*LazyProcess](plugins, "maps", kernel.LeafMapping(func(p *LazyProcess) (kernel.Leaf, bool) {
		return mapsLeaf(p), true
	}))
	kernel.RegisterMapping[*LazyProcess](plugins, "phys_maps", kernel.LeafMapping(func(p *LazyProcess) (kernel.Leaf, bool) {
		return physMapsLeaf(p), true
	}))
	kernel.RegisterMapping[*LazyProcess](plugins, "modules", kernel.BranchMapping(func(p *LazyProcess) (kernel.Branch, bool) {
		return newModuleList(p), true
	}))
	kernel.RegisterMapping[*LazyProcess](plugins, "dump", kernel.LeafMapping(func(p *LazyProcess) (kernel.Leaf, bool) {
		return dumpLeaf(p), true
	}))

	kernel.RegisterMapping[*Module](plugins, "mem", kernel.LeafMapping(func(m *Module) (kernel.Leaf, bool) {
		return m, true
	}))
	kernel.RegisterMapping[*Module](plugins, "info", kernel.LeafMapping(func(m *Module) (kernel.Leaf, bool) {
		return moduleInfoLeaf(m), true
	}))
}

func (r *OsRoot) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	return kernel.GetEntryViaPlugins[*OsRoot](r, path, plugins)
}

func (r *OsRoot) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	return kernel.ListViaPlugins[*OsRoot](r, plugins, out)
}

func (r *OsRoot) Open() (kernel.FileOps, *kernel.Error) {
	return r, nil
}

func (r *OsRoot) Metadata() (kernel.NodeMetadata, *kernel.Error) {
	return kernel.NodeMetadata{HasRead: true, HasWrite: true, HasRpc: true, Size: 1 << r.provider.AddressSpaceBits()}, nil
}

func (r *OsRoot) Read(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	return r.provider.Read(ops)
}

func (r *OsRoot) Write(ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	return r.provider.Write(ops)
}

func (r *OsRoot) Rpc([]byte, []byte) *kernel.Error {
	return nil
}
