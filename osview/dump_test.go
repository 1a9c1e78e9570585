package osview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/memfs/kernel"
	"github.com/nicolagi/memfs/minidump"
)

type fakeProcessProvider struct {
	modules []ModuleInfo
	mem     []byte
}

func (f *fakeProcessProvider) Read(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	for _, r := range ops.In {
		if r.Addr >= uint64(len(f.mem)) {
			continue
		}
		n := copy(r.Buf, f.mem[r.Addr:])
		if ops.Out != nil {
			ops.Out(kernel.RWRange{Addr: r.Addr, Buf: r.Buf[:n]})
		}
	}
	return nil
}

func (f *fakeProcessProvider) Write(kernel.VecOps[kernel.RORange]) *kernel.Error { return nil }
func (f *fakeProcessProvider) AddressSpaceBits() uint                           { return 48 }
func (f *fakeProcessProvider) Info() (string, *kernel.Error)                    { return "info", nil }
func (f *fakeProcessProvider) Maps() (string, *kernel.Error)                    { return "maps", nil }
func (f *fakeProcessProvider) PhysMaps() (string, *kernel.Error)                { return "phys", nil }

func (f *fakeProcessProvider) ModuleList(out func(ModuleInfo) bool) *kernel.Error {
	for _, m := range f.modules {
		if !out(m) {
			break
		}
	}
	return nil
}

type fakeOsProvider struct {
	proc *fakeProcessProvider
	info ProcessInfo
}

func (f *fakeOsProvider) Read(kernel.VecOps[kernel.RWRange]) *kernel.Error  { return nil }
func (f *fakeOsProvider) Write(kernel.VecOps[kernel.RORange]) *kernel.Error { return nil }
func (f *fakeOsProvider) AddressSpaceBits() uint                            { return 48 }

func (f *fakeOsProvider) ProcessInfoByPID(pid int) (ProcessInfo, *kernel.Error) {
	if pid != f.info.PID {
		return ProcessInfo{}, kernel.NewError(kernel.OriginBranch, kernel.KindNotFound)
	}
	return f.info, nil
}

func (f *fakeOsProvider) ProcessInfoByName(name string) (ProcessInfo, *kernel.Error) {
	if name != f.info.Name {
		return ProcessInfo{}, kernel.NewError(kernel.OriginBranch, kernel.KindNotFound)
	}
	return f.info, nil
}

func (f *fakeOsProvider) ProcessInfoByAddress(addr kernel.Size) (ProcessInfo, *kernel.Error) {
	if addr != f.info.Address {
		return ProcessInfo{}, kernel.NewError(kernel.OriginBranch, kernel.KindNotFound)
	}
	return f.info, nil
}

func (f *fakeOsProvider) ProcessInfoList(out func(ProcessInfo) bool) *kernel.Error {
	out(f.info)
	return nil
}

func (f *fakeOsProvider) OpenProcess(info ProcessInfo) (ProcessProvider, *kernel.Error) {
	return f.proc, nil
}

func TestDumpLeaf_SerializesModulesAndMemory(t *testing.T) {
	proc := &fakeProcessProvider{
		modules: []ModuleInfo{{Name: "a.so", Base: 0, Size: 4}},
		mem:     []byte{0xde, 0xad, 0xbe, 0xef},
	}
	osProvider := &fakeOsProvider{proc: proc, info: ProcessInfo{PID: 1, Name: "target", Address: 0x1000}}
	lp := newLazyProcess(osProvider, osProvider.info)

	leaf := dumpLeaf(lp)
	md, err := leaf.Metadata()
	require.Nil(t, err)
	require.NotZero(t, md.Size)

	ops, err := leaf.Open()
	require.Nil(t, err)
	buf := make([]byte, md.Size)
	rerr := ops.Read(kernel.VecOps[kernel.RWRange]{In: []kernel.RWRange{{Addr: 0, Buf: buf}}})
	require.Nil(t, rerr)

	modules, regions, derr := minidump.Read(buf)
	require.NoError(t, derr)
	require.Len(t, modules, 1)
	assert.Equal(t, "a.so", modules[0].Name)
	require.Len(t, regions, 1)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, regions[0].Data)
}
