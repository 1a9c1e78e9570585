// Package osview implements the OS/process/module branch of the
// namespace: given a Provider for one OS connection, it exposes
// processes/by-pid/<pid>/mem, processes/by-name/<name>/..., .../info,
// .../maps, .../modules/<name>/mem as
// kernel.Branch and kernel.Leaf values, the way
// original_source/cloudflow/src/os.rs, process.rs and module.rs do for the
// Rust original.
package osview

import "github.com/nicolagi/memfs/kernel"

// ProcessInfo is the minimal description of a running process this package
// needs: enough to open it, cache it, and list it.
type ProcessInfo struct {
	PID     int
	Name    string
	Address kernel.Size
}

// ModuleInfo describes one loaded module within a process's address space.
type ModuleInfo struct {
	Name string
	Base kernel.Size
	Size kernel.Size
}

// OsProvider is the connection to one OS instance: process enumeration and
// the OS-level memory view itself (e.g. physical memory, or /proc as a
// whole on a self connection).
type OsProvider interface {
	Read(ops kernel.VecOps[kernel.RWRange]) *kernel.Error
	Write(ops kernel.VecOps[kernel.RORange]) *kernel.Error
	AddressSpaceBits() uint

	ProcessInfoByPID(pid int) (ProcessInfo, *kernel.Error)
	ProcessInfoByName(name string) (ProcessInfo, *kernel.Error)
	ProcessInfoByAddress(addr kernel.Size) (ProcessInfo, *kernel.Error)
	ProcessInfoList(out func(ProcessInfo) bool) *kernel.Error

	OpenProcess(info ProcessInfo) (ProcessProvider, *kernel.Error)
}

// ProcessProvider is the connection to one opened process: its memory view,
// textual maps, and module list.
type ProcessProvider interface {
	Read(ops kernel.VecOps[kernel.RWRange]) *kernel.Error
	Write(ops kernel.VecOps[kernel.RORange]) *kernel.Error
	AddressSpaceBits() uint

	Info() (string, *kernel.Error)
	Maps() (string, *kernel.Error)
	PhysMaps() (string, *kernel.Error)
	ModuleList(out func(ModuleInfo) bool) *kernel.Error
}
