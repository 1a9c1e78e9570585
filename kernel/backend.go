package kernel

import "sync"

// Backend is the path-routing layer below the Frontend: it resolves and
// lists paths within the named roots it exposes, while operations on open
// handles go through the Frontend's handle table. Concrete backends are either
// local (LocalBackend[T]) or forwarded elsewhere (NodeBackend composes
// several by name prefix).
type Backend interface {
	// GetEntry resolves path against the set of named roots this backend
	// exposes.
	GetEntry(path string, plugins *PluginStore) (DirEntry, *Error)
	List(path string, plugins *PluginStore, out func(ListEntry) bool) *Error
}

// LocalBackend holds a set of named roots of a single entity type T, each
// with its own PluginStore-resolved Branch view. It is the leaf-most
// Backend: there is no further routing once a request reaches one.
type LocalBackend[T any] struct {
	mu      sync.RWMutex
	roots   map[string]T
	plugins *PluginStore
	toRoot  func(T) Branch
}

// ConnectionRegistry wraps a LocalBackend for use as a named-connection
// table: "connection new NAME ..." binds a freshly opened connector/OS
// instance under NAME via AddRoot, "connection ls" enumerates via Names, and
// "connection rm NAME" unbinds via RemoveRoot. Grounded on
// original_source/flow-daemon/src/state.rs's connection table.
type ConnectionRegistry[T any] struct {
	*LocalBackend[T]
}

// NewConnectionRegistry wraps NewLocalBackend, named for the
// connection-registry use case.
func NewConnectionRegistry[T any](plugins *PluginStore, toRoot func(T) Branch) *ConnectionRegistry[T] {
	return &ConnectionRegistry[T]{LocalBackend: NewLocalBackend[T](plugins, toRoot)}
}

// NewLocalBackend constructs a backend over entities of type T. toRoot
// adapts a raw T (e.g. a *os.Process) into the Branch that represents it at
// the root of this backend's namespace.
func NewLocalBackend[T any](plugins *PluginStore, toRoot func(T) Branch) *LocalBackend[T] {
	return &LocalBackend[T]{
		roots:   make(map[string]T),
		plugins: plugins,
		toRoot:  toRoot,
	}
}

// AddRoot binds name to entity within this backend, replacing any existing
// binding under that name.
func (b *LocalBackend[T]) AddRoot(name string, entity T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roots[name] = entity
}

// RemoveRoot unbinds name, if present.
func (b *LocalBackend[T]) RemoveRoot(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.roots, name)
}

// Names lists the roots currently bound, in no particular order. Used by
// the connection-registry CLI surface ("connection ls") to enumerate live
// connections.
func (b *LocalBackend[T]) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.roots))
	for name := range b.roots {
		names = append(names, name)
	}
	return names
}

func (b *LocalBackend[T]) lookupRoot(name string) (Branch, bool) {
	b.mu.RLock()
	entity, ok := b.roots[name]
	b.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return b.toRoot(entity), true
}

func (b *LocalBackend[T]) GetEntry(path string, plugins *PluginStore) (DirEntry, *Error) {
	head, rest, hasRest := SplitPath(path)
	root, ok := b.lookupRoot(head)
	if !ok {
		return DirEntry{}, NewError(OriginBackend, KindNotFound)
	}
	if !hasRest {
		return BranchEntry(root), nil
	}
	return root.GetEntry(rest, plugins)
}

func (b *LocalBackend[T]) List(path string, plugins *PluginStore, out func(ListEntry) bool) *Error {
	if path == "" {
		b.mu.RLock()
		names := make([]string, 0, len(b.roots))
		for name := range b.roots {
			names = append(names, name)
		}
		b.mu.RUnlock()
		for _, name := range names {
			if !out(ListEntry{Name: name, IsBranch: true}) {
				return nil
			}
		}
		return nil
	}
	head, rest, hasRest := SplitPath(path)
	root, ok := b.lookupRoot(head)
	if !ok {
		return NewError(OriginBackend, KindNotFound)
	}
	target := Branch(root)
	if hasRest {
		entry, err := root.GetEntry(rest, plugins)
		if err != nil {
			return err
		}
		if !entry.IsBranch() {
			return NewError(OriginBackend, KindInvalidPath)
		}
		target = entry.Branch
	}
	return target.List(plugins, func(e BranchListEntry) bool {
		return out(ListEntry{Name: e.Name, IsBranch: e.Entry.IsBranch()})
	})
}

// NodeBackend routes a request to one of several named sub-backends by
// stripping a leading "<name>/" prefix: the top-level namespace is a set of
// named mounts ("os/", "connector/", "ctl" etc.) each owned by a distinct
// Backend.
type NodeBackend struct {
	mu       sync.RWMutex
	backends map[string]Backend
	order    []string
}

func NewNodeBackend() *NodeBackend {
	return &NodeBackend{backends: make(map[string]Backend)}
}

// Mount binds name to backend. Mounting over an existing name replaces it;
// unlike PluginStore registration this is not idempotent, since backends
// are typically mounted once at startup.
func (n *NodeBackend) Mount(name string, backend Backend) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.backends[name]; !exists {
		n.order = append(n.order, name)
	}
	n.backends[name] = backend
}

func (n *NodeBackend) lookup(name string) (Backend, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	b, ok := n.backends[name]
	return b, ok
}

func (n *NodeBackend) GetEntry(path string, plugins *PluginStore) (DirEntry, *Error) {
	if path == "" {
		return DirEntry{}, NewError(OriginBackend, KindInvalidPath)
	}
	head, rest, _ := SplitPath(path)
	backend, ok := n.lookup(head)
	if !ok {
		return DirEntry{}, NewError(OriginBackend, KindNotFound)
	}
	return backend.GetEntry(rest, plugins)
}

func (n *NodeBackend) List(path string, plugins *PluginStore, out func(ListEntry) bool) *Error {
	if path == "" {
		n.mu.RLock()
		names := append([]string(nil), n.order...)
		n.mu.RUnlock()
		for _, name := range names {
			if !out(ListEntry{Name: name, IsBranch: true}) {
				return nil
			}
		}
		return nil
	}
	head, rest, _ := SplitPath(path)
	backend, ok := n.lookup(head)
	if !ok {
		return NewError(OriginBackend, KindNotFound)
	}
	return backend.List(rest, plugins, out)
}
