package osview

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/nicolagi/memfs/kernel"
)

// ProcessList is the "processes" branch of an OS connection: a fixed set
// of three lookup strategies, plus, when listed directly, every live
// process keyed by its load address in hex, grounded on
// original_source/cloudflow/src/os.rs's ProcessList.
type ProcessList struct {
	provider  OsProvider
	byPID     *PidProcessList
	byName    *NameProcessList
	byPIDName *PidNameProcessList
}

func newProcessList(provider OsProvider) *ProcessList {
	return &ProcessList{
		provider:  provider,
		byPID:     &PidProcessList{provider: provider},
		byName:    &NameProcessList{provider: provider},
		byPIDName: &PidNameProcessList{provider: provider},
	}
}

func (l *ProcessList) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	head, rest, hasRest := kernel.SplitPath(path)
	switch head {
	case "by-pid":
		if !hasRest {
			return kernel.BranchEntry(l.byPID), nil
		}
		return l.byPID.GetEntry(rest, plugins)
	case "by-name":
		if !hasRest {
			return kernel.BranchEntry(l.byName), nil
		}
		return l.byName.GetEntry(rest, plugins)
	case "by-pid-name":
		if !hasRest {
			return kernel.BranchEntry(l.byPIDName), nil
		}
		return l.byPIDName.GetEntry(rest, plugins)
	default:
		addr, err := strconv.ParseUint(head, 16, 64)
		if err != nil {
			return kernel.DirEntry{}, kernel.NewError(kernel.OriginBranch, kernel.KindInvalidPath)
		}
		info, perr := l.provider.ProcessInfoByAddress(kernel.Size(addr))
		if perr != nil {
			return kernel.DirEntry{}, perr
		}
		proc := newLazyProcess(l.provider, info)
		if !hasRest {
			return kernel.BranchEntry(proc), nil
		}
		return proc.GetEntry(rest, plugins)
	}
}

func (l *ProcessList) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	if !out(kernel.BranchListEntry{Name: "by-pid", Entry: kernel.BranchEntry(l.byPID)}) {
		return nil
	}
	if !out(kernel.BranchListEntry{Name: "by-name", Entry: kernel.BranchEntry(l.byName)}) {
		return nil
	}
	if !out(kernel.BranchListEntry{Name: "by-pid-name", Entry: kernel.BranchEntry(l.byPIDName)}) {
		return nil
	}
	return l.provider.ProcessInfoList(func(info ProcessInfo) bool {
		name := fmt.Sprintf("%x", uint64(info.Address))
		proc := newLazyProcess(l.provider, info)
		return out(kernel.BranchListEntry{Name: name, Entry: kernel.BranchEntry(proc)})
	})
}

// addressCache is the shared shape behind the by-pid/by-name/by-pid-name
// revalidation caches: key -> last known address, revalidated against the
// live OS view on every lookup and refreshed on a miss or stale hit.
type addressCache struct {
	mu   sync.Mutex
	addr map[string]kernel.Size
}

func (c *addressCache) get(key string) (kernel.Size, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.addr[key]
	return addr, ok
}

func (c *addressCache) set(key string, addr kernel.Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addr == nil {
		c.addr = make(map[string]kernel.Size)
	}
	c.addr[key] = addr
}

func (c *addressCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addr = nil
}

// PidProcessList resolves a numeric PID to a process, caching the PID's
// last known load address and revalidating it before trusting a cache hit.
type PidProcessList struct {
	provider OsProvider
	cache    addressCache
}

func (l *PidProcessList) lookup(pidStr string) (ProcessInfo, *kernel.Error) {
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return ProcessInfo{}, kernel.NewError(kernel.OriginBranch, kernel.KindInvalidPath)
	}
	if addr, ok := l.cache.get(pidStr); ok {
		if info, perr := l.provider.ProcessInfoByAddress(addr); perr == nil && info.PID == pid {
			return info, nil
		}
	}
	info, perr := l.provider.ProcessInfoByPID(pid)
	if perr != nil {
		return ProcessInfo{}, perr
	}
	l.cache.set(pidStr, info.Address)
	return info, nil
}

func (l *PidProcessList) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	head, rest, hasRest := kernel.SplitPath(path)
	info, err := l.lookup(head)
	if err != nil {
		return kernel.DirEntry{}, err
	}
	proc := newLazyProcess(l.provider, info)
	if !hasRest {
		return kernel.BranchEntry(proc), nil
	}
	return proc.GetEntry(rest, plugins)
}

func (l *PidProcessList) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	l.cache.clear()
	return l.provider.ProcessInfoList(func(info ProcessInfo) bool {
		l.cache.set(strconv.Itoa(info.PID), info.Address)
		proc := newLazyProcess(l.provider, info)
		return out(kernel.BranchListEntry{Name: strconv.Itoa(info.PID), Entry: kernel.BranchEntry(proc)})
	})
}

// NameProcessList resolves a process name to a process, by the same
// cache-then-revalidate strategy as PidProcessList.
type NameProcessList struct {
	provider OsProvider
	cache    addressCache
}

func (l *NameProcessList) lookup(name string) (ProcessInfo, *kernel.Error) {
	if addr, ok := l.cache.get(name); ok {
		if info, perr := l.provider.ProcessInfoByAddress(addr); perr == nil && info.Name == name {
			return info, nil
		}
	}
	info, perr := l.provider.ProcessInfoByName(name)
	if perr != nil {
		return ProcessInfo{}, perr
	}
	l.cache.set(name, info.Address)
	return info, nil
}

func (l *NameProcessList) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	head, rest, hasRest := kernel.SplitPath(path)
	info, err := l.lookup(head)
	if err != nil {
		return kernel.DirEntry{}, err
	}
	proc := newLazyProcess(l.provider, info)
	if !hasRest {
		return kernel.BranchEntry(proc), nil
	}
	return proc.GetEntry(rest, plugins)
}

func (l *NameProcessList) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	l.cache.clear()
	return l.provider.ProcessInfoList(func(info ProcessInfo) bool {
		l.cache.set(info.Name, info.Address)
		proc := newLazyProcess(l.provider, info)
		return out(kernel.BranchListEntry{Name: info.Name, Entry: kernel.BranchEntry(proc)})
	})
}

// PidNameProcessList disambiguates processes by "name (pid)" keys,
// preserving the prefix-matching fallback used when the OS-reported name
// is truncated, per original_source/cloudflow/src/os.rs's
// PidNameProcessList::get_info.
type PidNameProcessList struct {
	provider OsProvider
	cache    addressCache
}

func splitNamePID(key string) (name string, pid int, err *kernel.Error) {
	i := strings.LastIndex(key, " (")
	if i < 0 || !strings.HasSuffix(key, ")") {
		return "", 0, kernel.NewError(kernel.OriginBranch, kernel.KindInvalidArgument)
	}
	name = key[:i]
	pidStr := key[i+2 : len(key)-1]
	n, perr := strconv.Atoi(pidStr)
	if perr != nil {
		return "", 0, kernel.NewError(kernel.OriginBranch, kernel.KindInvalidArgument)
	}
	return name, n, nil
}

func (l *PidNameProcessList) lookup(key string) (ProcessInfo, *kernel.Error) {
	name, pid, err := splitNamePID(key)
	if err != nil {
		return ProcessInfo{}, err
	}

	if addr, ok := l.cache.get(name); ok {
		if info, perr := l.provider.ProcessInfoByAddress(addr); perr == nil && info.Name == name && info.PID == pid {
			return info, nil
		}
	}

	info, perr := l.provider.ProcessInfoByPID(pid)
	if perr != nil {
		return ProcessInfo{}, perr
	}
	if !(len(info.Name) <= len(name) && strings.HasPrefix(name, info.Name) || strings.HasPrefix(info.Name, name)) {
		return ProcessInfo{}, kernel.NewError(kernel.OriginBranch, kernel.KindNotFound)
	}
	l.cache.set(name, info.Address)
	return info, nil
}

func (l *PidNameProcessList) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	head, rest, hasRest := kernel.SplitPath(path)
	info, err := l.lookup(head)
	if err != nil {
		return kernel.DirEntry{}, err
	}
	proc := newLazyProcess(l.provider, info)
	if !hasRest {
		return kernel.BranchEntry(proc), nil
	}
	return proc.GetEntry(rest, plugins)
}

func (l *PidNameProcessList) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	l.cache.clear()
	return l.provider.ProcessInfoList(func(info ProcessInfo) bool {
		key := fmt.Sprintf("%s (%d)", info.Name, info.PID)
		l.cache.set(info.Name, info.Address)
		proc := newLazyProcess(l.provider, info)
		return out(kernel.BranchListEntry{Name: key, Entry: kernel.BranchEntry(proc)})
	})
}

// LazyProcess is one resolved process: a Branch exposing mem/info/maps/
// phys_maps/modules, opening the underlying ProcessProvider lazily and
// only once, matching original_source/cloudflow/src/process.rs's
// LazyProcessBase/OnceCell pattern.
type LazyProcess struct {
	kernel.BaseFileOps
	osProvider OsProvider
	info       ProcessInfo

	once    sync.Once
	proc    ProcessProvider
	openErr *kernel.Error
}

func newLazyProcess(osProvider OsProvider, info ProcessInfo) *LazyProcess {
	return &LazyProcess{osProvider: osProvider, info: info}
}

func (p *LazyProcess) resolve() (ProcessProvider, *kernel.Error) {
	p.once.Do(func() {
		p.proc, p.openErr = p.osProvider.OpenProcess(p.info)
	})
	return p.proc, p.openErr
}

func (p *LazyProcess) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	return kernel.GetEntryViaPlugins[*LazyProcess](p, path, plugins)
}

func (p *LazyProcess) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	return kernel.ListViaPlugins[*LazyProcess](p, plugins, out)
}

func (p *LazyProcess) Open() (kernel.FileOps, *kernel.Error) {
	if _, err := p.resolve(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LazyProcess) Metadata() (kernel.NodeMetadata, *kernel.Error) {
	proc, err := p.resolve()
	if err != nil {
		return kernel.NodeMetadata{}, err
	}
	return kernel.NodeMetadata{HasRead: true, HasWrite: true, HasRpc: true, Size: 1 << proc.AddressSpaceBits()}, nil
}

func (p *LazyProcess) Read(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	proc, err := p.resolve()
	if err != nil {
		return err
	}
	return proc.Read(ops)
}

func (p *LazyProcess) Write(ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	proc, err := p.resolve()
	if err != nil {
		return err
	}
	return proc.Write(ops)
}

func (p *LazyProcess) Rpc([]byte, []byte) *kernel.Error {
	return nil
}

func infoLeaf(p *LazyProcess) kernel.Leaf {
	return kernel.NewFnFile[*LazyProcess, []byte](p, func(p *LazyProcess) ([]byte, *kernel.Error) {
		proc, err := p.resolve()
		if err != nil {
			return nil, err
		}
		text, err := proc.Info()
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	})
}

func mapsLeaf(p *LazyProcess) kernel.Leaf {
	return kernel.NewFnFile[*LazyProcess, []byte](p, func(p *LazyProcess) ([]byte, *kernel.Error) {
		proc, err := p.resolve()
		if err != nil {
			return nil, err
		}
		text, err := proc.Maps()
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	})
}

func physMapsLeaf(p *LazyProcess) kernel.Leaf {
	return kernel.NewFnFile[*LazyProcess, []byte](p, func(p *LazyProcess) ([]byte, *kernel.Error) {
		proc, err := p.resolve()
		if err != nil {
			return nil, err
		}
		text, err := proc.PhysMaps()
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	})
}
