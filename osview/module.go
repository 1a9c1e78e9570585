package osview

import (
	"fmt"

	"github.com/nicolagi/memfs/kernel"
)

// ModuleList is the "modules" branch of a process: one child per loaded
// module, keyed by name. Grounded on
// original_source/cloudflow/src/module.rs, which registers a module's
// "mem"/"info" children directly on the node tree rather than through an
// intermediate list type; this package adds the list itself so a process
// branch has a named subpath to address its modules from.
type ModuleList struct {
	proc *LazyProcess
}

func newModuleList(proc *LazyProcess) *ModuleList {
	return &ModuleList{proc: proc}
}

func (l *ModuleList) findModule(name string) (ModuleInfo, *kernel.Error) {
	var found ModuleInfo
	var hit bool
	proc, err := l.proc.resolve()
	if err != nil {
		return ModuleInfo{}, err
	}
	err = proc.ModuleList(func(info ModuleInfo) bool {
		if info.Name == name {
			found, hit = info, true
			return false
		}
		return true
	})
	if err != nil {
		return ModuleInfo{}, err
	}
	if !hit {
		return ModuleInfo{}, kernel.NewError(kernel.OriginBranch, kernel.KindNotFound)
	}
	return found, nil
}

func (l *ModuleList) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	head, rest, hasRest := kernel.SplitPath(path)
	info, err := l.findModule(head)
	if err != nil {
		return kernel.DirEntry{}, err
	}
	mod := newModule(l.proc, info)
	if !hasRest {
		return kernel.BranchEntry(mod), nil
	}
	return mod.GetEntry(rest, plugins)
}

func (l *ModuleList) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	proc, err := l.proc.resolve()
	if err != nil {
		return err
	}
	return proc.ModuleList(func(info ModuleInfo) bool {
		mod := newModule(l.proc, info)
		return out(kernel.BranchListEntry{Name: info.Name, Entry: kernel.BranchEntry(mod)})
	})
}

// Module is one loaded module: a Branch exposing "mem" (rebased into the
// process's address space at the module's load base) and "info".
// Grounded on original_source/cloudflow/src/module.rs's ModuleBase.
type Module struct {
	kernel.BaseFileOps
	proc *LazyProcess
	info ModuleInfo
}

func newModule(proc *LazyProcess, info ModuleInfo) *Module {
	return &Module{proc: proc, info: info}
}

func (m *Module) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	return kernel.GetEntryViaPlugins[*Module](m, path, plugins)
}

func (m *Module) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	return kernel.ListViaPlugins[*Module](m, plugins, out)
}

func (m *Module) Open() (kernel.FileOps, *kernel.Error) {
	return m, nil
}

func (m *Module) Metadata() (kernel.NodeMetadata, *kernel.Error) {
	return kernel.NodeMetadata{HasRead: true, HasWrite: true, HasRpc: true, Size: m.info.Size}, nil
}

// Read rebases every range by the module's load base and splits any range
// that runs past the module's declared size into the failure channel,
// exactly as ModuleBase::read does in the original.
func (m *Module) Read(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	return kernel.RebaseRead(m.info.Base, m.info.Size, ops, func(shifted kernel.VecOps[kernel.RWRange]) *kernel.Error {
		return m.proc.Read(shifted)
	})
}

func (m *Module) Write(ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	return kernel.RebaseWrite(m.info.Base, m.info.Size, ops, func(shifted kernel.VecOps[kernel.RORange]) *kernel.Error {
		return m.proc.Write(shifted)
	})
}

func (m *Module) Rpc([]byte, []byte) *kernel.Error {
	return nil
}

func moduleInfoLeaf(m *Module) kernel.Leaf {
	return kernel.NewFnFile[*Module, []byte](m, func(m *Module) ([]byte, *kernel.Error) {
		return []byte(fmt.Sprintf("name: %s\nbase: %#x\nsize: %#x\n", m.info.Name, uint64(m.info.Base), uint64(m.info.Size))), nil
	})
}
