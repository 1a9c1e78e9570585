package kernel

// RebaseRead shifts every range in ops by +base before delegating to inner,
// then shifts the reported out/outFail ranges back by -base, so a Branch
// backed by a window onto a larger address space (e.g. one module's slice
// of a process's address space) can reuse a FileOps defined in terms of
// process-relative addresses. Grounded on the module-view rebasing done by
// original_source/cloudflow/src/module.rs's ModuleBase::read/write.
func RebaseRead(base Size, limit Size, ops VecOps[RWRange], inner func(VecOps[RWRange]) *Error) *Error {
	shifted := make([]RWRange, 0, len(ops.In))
	clamp := make(map[int]int) // index into shifted -> trailing bytes clamped out of bounds

	for _, r := range ops.In {
		if r.Addr >= limit {
			if !callOutFail(ops.OutFail, r, NewError(OriginRead, KindOutOfBounds)) {
				return NewError(OriginRead, KindUnknown)
			}
			continue
		}
		avail := limit - r.Addr
		n := len(r.Buf)
		clamped := 0
		if uint64(n) > avail {
			clamped = n - int(avail)
			n = int(avail)
		}
		idx := len(shifted)
		shifted = append(shifted, RWRange{Addr: r.Addr + base, Buf: r.Buf[:n]})
		if clamped > 0 {
			clamp[idx] = clamped
			// Report the clamped tail against the original (unshifted) range.
			if !callOutFail(ops.OutFail, RWRange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]}, NewError(OriginRead, KindOutOfBounds)) {
				return NewError(OriginRead, KindUnknown)
			}
		}
	}

	if len(shifted) == 0 {
		return nil
	}

	return inner(VecOps[RWRange]{
		In: shifted,
		Out: func(r RWRange) bool {
			return callOut(ops.Out, RWRange{Addr: r.Addr - base, Buf: r.Buf})
		},
		OutFail: func(fr FailRange[RWRange]) bool {
			return callOutFail(ops.OutFail, RWRange{Addr: fr.Range.Addr - base, Buf: fr.Range.Buf}, fr.Err)
		},
	})
}

// RebaseWrite is RebaseRead's write-side counterpart.
func RebaseWrite(base Size, limit Size, ops VecOps[RORange], inner func(VecOps[RORange]) *Error) *Error {
	shifted := make([]RORange, 0, len(ops.In))

	for _, r := range ops.In {
		if r.Addr >= limit {
			if !callOutFail(ops.OutFail, r, NewError(OriginWrite, KindOutOfBounds)) {
				return NewError(OriginWrite, KindUnknown)
			}
			continue
		}
		avail := limit - r.Addr
		n := len(r.Buf)
		if uint64(n) > avail {
			n = int(avail)
		}
		shifted = append(shifted, RORange{Addr: r.Addr + base, Buf: r.Buf[:n]})
		if n < len(r.Buf) {
			if !callOutFail(ops.OutFail, RORange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]}, NewError(OriginWrite, KindOutOfBounds)) {
				return NewError(OriginWrite, KindUnknown)
			}
		}
	}

	if len(shifted) == 0 {
		return nil
	}

	return inner(VecOps[RORange]{
		In: shifted,
		Out: func(r RORange) bool {
			return callOut(ops.Out, RORange{Addr: r.Addr - base, Buf: r.Buf})
		},
		OutFail: func(fr FailRange[RORange]) bool {
			return callOutFail(ops.OutFail, RORange{Addr: fr.Range.Addr - base, Buf: fr.Range.Buf}, fr.Err)
		},
	})
}

// Gather drains a scatter read into a single contiguous buffer starting at
// addr, useful for callers (such as the minidump dump leaf) that want one
// []byte rather than a callback stream.
func Gather(read func(VecOps[RWRange]) *Error, addr Size, size int) ([]byte, *Error) {
	buf := make([]byte, size)
	var firstErr *Error
	err := read(VecOps[RWRange]{
		In: []RWRange{{Addr: addr, Buf: buf}},
		OutFail: func(fr FailRange[RWRange]) bool {
			if firstErr == nil {
				firstErr = fr.Err
			}
			return true
		},
	})
	if err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return buf, nil
}

// Scatter is Gather's write-side counterpart: writes the whole of data at
// addr via write, failing if any sub-range reports an error.
func Scatter(write func(VecOps[RORange]) *Error, addr Size, data []byte) *Error {
	var firstErr *Error
	err := write(VecOps[RORange]{
		In: []RORange{{Addr: addr, Buf: data}},
		OutFail: func(fr FailRange[RORange]) bool {
			if firstErr == nil {
				firstErr = fr.Err
			}
			return true
		},
	})
	if err != nil {
		return err
	}
	return firstErr
}
