package wire

import "sort"

// FragmentBuffer is a size-indexed free list of scratch buffers, used by
// the server side of a Read to stage bytes between the kernel and the
// socket without allocating a fresh buffer per scatter element. Grounded
// on original_source/filer-tokio/src/lib.rs's FragmentBuffer, translated
// from its unsafe raw-pointer free list (needed there to hand out borrows
// with an unconstrained lifetime across an async boundary) to a plain
// slice-of-slices pool, which is sufficient here since Go's GC tracks the
// backing arrays for us.
type FragmentBuffer struct {
	bySize map[int][][]byte
	sizes  []int
}

func NewFragmentBuffer() *FragmentBuffer {
	return &FragmentBuffer{bySize: make(map[int][][]byte)}
}

// Get returns a buffer of exactly size bytes, reusing the smallest free
// buffer at least that large (splitting off and returning the remainder to
// the pool) or allocating fresh if none fits.
func (f *FragmentBuffer) Get(size int) []byte {
	i := sort.SearchInts(f.sizes, size)
	for i < len(f.sizes) {
		sz := f.sizes[i]
		bufs := f.bySize[sz]
		buf := bufs[len(bufs)-1]
		bufs = bufs[:len(bufs)-1]
		if len(bufs) == 0 {
			delete(f.bySize, sz)
			f.sizes = append(f.sizes[:i], f.sizes[i+1:]...)
		} else {
			f.bySize[sz] = bufs
		}
		if sz > size {
			f.PutBack(buf[size:])
		}
		return buf[:size:size]
	}
	return make([]byte, size)
}

// PutBack returns buf to the pool, indexed by its current length.
func (f *FragmentBuffer) PutBack(buf []byte) {
	if len(buf) == 0 {
		return
	}
	sz := len(buf)
	if _, ok := f.bySize[sz]; !ok {
		i := sort.SearchInts(f.sizes, sz)
		f.sizes = append(f.sizes, 0)
		copy(f.sizes[i+1:], f.sizes[i:])
		f.sizes[i] = sz
	}
	f.bySize[sz] = append(f.bySize[sz], buf)
}
