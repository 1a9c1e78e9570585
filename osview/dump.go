package osview

import (
	"github.com/nicolagi/memfs/kernel"
	"github.com/nicolagi/memfs/minidump"
)

// dumpLeaf serves a minidump-subset container of a process: its module
// list, and the full memory range of every loaded module whose range reads
// back in full. A module whose range cannot be read is listed without a
// memory region.
func dumpLeaf(p *LazyProcess) kernel.Leaf {
	return kernel.NewFnFile[*LazyProcess, []byte](p, func(p *LazyProcess) ([]byte, *kernel.Error) {
		proc, err := p.resolve()
		if err != nil {
			return nil, err
		}

		var modules []minidump.Module
		var regions []minidump.MemoryRegion
		err = proc.ModuleList(func(info ModuleInfo) bool {
			modules = append(modules, minidump.Module{
				Name: info.Name,
				Base: uint64(info.Base),
				Size: uint32(info.Size),
			})
			data, gerr := kernel.Gather(p.Read, info.Base, int(info.Size))
			if gerr != nil {
				return true
			}
			regions = append(regions, minidump.MemoryRegion{Base: uint64(info.Base), Data: data})
			return true
		})
		if err != nil {
			return nil, err
		}

		data, werr := minidump.Write(modules, regions)
		if werr != nil {
			return nil, kernel.NewError(kernel.OriginBranch, kernel.KindInvalidArgument)
		}
		return data, nil
	})
}
