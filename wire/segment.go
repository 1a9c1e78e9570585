package wire

import "sort"

// SegmentTree is the client-side counterpart to FragmentBuffer: before
// issuing a Read, the client registers each caller-supplied destination
// buffer at its address, then as the server streams back (addr, length)
// chunks it looks up exactly which destination slice to read the incoming
// bytes into -- splitting a registered segment if the server's response
// only partially covers it. Grounded on
// original_source/filer-tokio/src/lib.rs's SegmentTree, translated from
// its raw-pointer BTreeMap into a sorted-key map of plain byte slices.
type SegmentTree struct {
	segments map[uint64][][]byte
	starts   []uint64
}

func NewSegmentTree() *SegmentTree {
	return &SegmentTree{segments: make(map[uint64][][]byte)}
}

// AddSeg registers buf as the destination for the range [start, start+len(buf)).
func (t *SegmentTree) AddSeg(start uint64, buf []byte) {
	if len(buf) == 0 {
		return
	}
	if _, ok := t.segments[start]; !ok {
		i := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] >= start })
		t.starts = append(t.starts, 0)
		copy(t.starts[i+1:], t.starts[i:])
		t.starts[i] = start
	}
	t.segments[start] = append(t.segments[start], buf)
}

func (t *SegmentTree) removeStart(start uint64) {
	delete(t.segments, start)
	i := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] >= start })
	if i < len(t.starts) && t.starts[i] == start {
		t.starts = append(t.starts[:i], t.starts[i+1:]...)
	}
}

// Get finds the registered segment covering [start, start+length), splits
// off whatever lies outside that window back into the tree, and returns
// the sub-slice covering exactly [start, start+min(length, covered)).
func (t *SegmentTree) Get(start uint64, length int) []byte {
	end := start + uint64(length)

	// Search every registered start <= the requested start, latest-first, the
	// same right-to-left scan the original performs.
	for i := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] > start }) - 1; i >= 0; i-- {
		segStart := t.starts[i]
		bufs := t.segments[segStart]
		for j := len(bufs) - 1; j >= 0; j-- {
			buf := bufs[j]
			segEnd := segStart + uint64(len(buf))
			if segEnd <= start {
				continue
			}

			bufs = append(bufs[:j], bufs[j+1:]...)
			if len(bufs) == 0 {
				t.removeStart(segStart)
			} else {
				t.segments[segStart] = bufs
			}

			if segStart < start {
				t.AddSeg(segStart, buf[:start-segStart])
			}
			buf = buf[start-segStart:]

			if segEnd > end {
				t.AddSeg(end, buf[end-start:])
			}

			hi := segEnd
			if end < hi {
				hi = end
			}
			return buf[:hi-start]
		}
	}
	return nil
}
