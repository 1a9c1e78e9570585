package kernel

import "sync"

type handleEntry struct {
	ops      FileOps
	refCount int
}

// Handles is the process-wide slab of open handles: a slice of slots
// indexed by handle number, with a free list for reuse, matching the
// 9P-fid-table shape muscle's own ops/Fid handling uses. Handle 0 is never
// issued, so a zero value reliably means "no handle" to callers.
//
// Every handle here is opened directly against a local FileOps: Frontend
// resolves a path to its Leaf through GetEntry before ever touching
// Handles, so by the time a handle exists there is no further Backend to
// route through. An earlier revision carried a Forward half (a handle slot
// that named a remote Backend plus its own handle number, for routing a
// call across a backend stack instead of resolving eagerly) but nothing
// ever constructed one, since Frontend's single-resolve-then-open flow
// never needs to hand a handle to anything but the FileOps it just opened.
type Handles struct {
	mu    sync.Mutex
	slots []handleEntry
	free  []uint64
}

func NewHandles() *Handles {
	h := &Handles{}
	// Reserve slot 0 so a valid handle is never zero.
	h.slots = append(h.slots, handleEntry{})
	return h
}

// OpenObject allocates a new handle directly over ops, returning its index.
func (h *Handles) OpenObject(ops FileOps) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := handleEntry{ops: ops, refCount: 1}
	if n := len(h.free); n > 0 {
		idx := h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[idx] = e
		return idx
	}
	h.slots = append(h.slots, e)
	return uint64(len(h.slots) - 1)
}

func (h *Handles) get(handle uint64) (handleEntry, *Error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if handle == 0 || handle >= uint64(len(h.slots)) {
		return handleEntry{}, NewError(OriginBackend, KindNotFound)
	}
	e := h.slots[handle]
	if e.refCount == 0 {
		return handleEntry{}, NewError(OriginBackend, KindNotFound)
	}
	return e, nil
}

// Close releases one reference to handle, freeing its slot once the last
// reference is gone.
func (h *Handles) Close(handle uint64) *Error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if handle == 0 || handle >= uint64(len(h.slots)) || h.slots[handle].refCount == 0 {
		return NewError(OriginBackend, KindNotFound)
	}
	h.slots[handle].refCount--
	if h.slots[handle].refCount == 0 {
		h.slots[handle] = handleEntry{}
		h.free = append(h.free, handle)
	}
	return nil
}

func (h *Handles) Read(handle uint64, ops VecOps[RWRange]) *Error {
	e, err := h.get(handle)
	if err != nil {
		return err
	}
	return e.ops.Read(ops)
}

func (h *Handles) Write(handle uint64, ops VecOps[RORange]) *Error {
	e, err := h.get(handle)
	if err != nil {
		return err
	}
	return e.ops.Write(ops)
}

func (h *Handles) Rpc(handle uint64, input, output []byte) *Error {
	e, err := h.get(handle)
	if err != nil {
		return err
	}
	return e.ops.Rpc(input, output)
}
