package osview

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nicolagi/memfs/kernel"
)

// SelfProvider is the OsProvider backed by the running host's /proc, a
// deliberately minimal memory provider with no hypervisor/kernel-debugger
// driver underneath it. A process's "address" in this view is just its PID
// widened to kernel.Size, which is enough to satisfy the by-address cache
// revalidation contract: it is stable for the lifetime of the process and
// resolves back to exactly one ProcessInfo.
type SelfProvider struct{}

func NewSelfProvider() *SelfProvider { return &SelfProvider{} }

func (p *SelfProvider) AddressSpaceBits() uint { return 48 }

func (p *SelfProvider) Read(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	return readFile("/proc/kcore", ops)
}

func (p *SelfProvider) Write(ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	err := kernel.NewError(kernel.OriginWrite, kernel.KindReadOnly)
	for _, r := range ops.In {
		if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RORange]{Range: r, Err: err}) {
			return kernel.NewError(kernel.OriginWrite, kernel.KindUnknown)
		}
	}
	return nil
}

func readComm(pid int) (string, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (p *SelfProvider) ProcessInfoByPID(pid int) (ProcessInfo, *kernel.Error) {
	name, err := readComm(pid)
	if err != nil {
		return ProcessInfo{}, kernel.NewError(kernel.OriginBranch, kernel.KindNotFound)
	}
	return ProcessInfo{PID: pid, Name: name, Address: kernel.Size(pid)}, nil
}

func (p *SelfProvider) ProcessInfoByAddress(addr kernel.Size) (ProcessInfo, *kernel.Error) {
	return p.ProcessInfoByPID(int(addr))
}

func (p *SelfProvider) ProcessInfoByName(name string) (ProcessInfo, *kernel.Error) {
	var found ProcessInfo
	var hit bool
	err := p.ProcessInfoList(func(info ProcessInfo) bool {
		if info.Name == name {
			found, hit = info, true
			return false
		}
		return true
	})
	if err != nil {
		return ProcessInfo{}, err
	}
	if !hit {
		return ProcessInfo{}, kernel.NewError(kernel.OriginBranch, kernel.KindNotFound)
	}
	return found, nil
}

func (p *SelfProvider) ProcessInfoList(out func(ProcessInfo) bool) *kernel.Error {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return kernel.NewError(kernel.OriginIo, kernel.KindUnableToReadDir)
	}
	for _, e := range entries {
		pid, perr := strconv.Atoi(e.Name())
		if perr != nil {
			continue
		}
		name, cerr := readComm(pid)
		if cerr != nil {
			continue
		}
		if !out(ProcessInfo{PID: pid, Name: name, Address: kernel.Size(pid)}) {
			break
		}
	}
	return nil
}

func (p *SelfProvider) OpenProcess(info ProcessInfo) (ProcessProvider, *kernel.Error) {
	path := fmt.Sprintf("/proc/%d/mem", info.PID)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		f, err = os.Open(path)
	}
	if err != nil {
		return nil, kernel.NewError(kernel.OriginBackend, kernel.KindNotFound)
	}
	return &selfProcess{info: info, mem: f}, nil
}

type selfProcess struct {
	info ProcessInfo
	mu   sync.Mutex
	mem  *os.File
}

func (s *selfProcess) AddressSpaceBits() uint { return 48 }

func (s *selfProcess) Read(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range ops.In {
		n, err := s.mem.ReadAt(r.Buf, int64(r.Addr))
		if n > 0 && ops.Out != nil {
			if !ops.Out(kernel.RWRange{Addr: r.Addr, Buf: r.Buf[:n]}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
		}
		if n < len(r.Buf) {
			_ = err
			tail := kernel.RWRange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]}
			if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RWRange]{Range: tail, Err: kernel.NewError(kernel.OriginRead, kernel.KindOutOfBounds)}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
		}
	}
	return nil
}

func (s *selfProcess) Write(ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range ops.In {
		n, err := s.mem.WriteAt(r.Buf, int64(r.Addr))
		if n > 0 && ops.Out != nil {
			if !ops.Out(kernel.RORange{Addr: r.Addr, Buf: r.Buf[:n]}) {
				return kernel.NewError(kernel.OriginWrite, kernel.KindUnknown)
			}
		}
		if err != nil && n < len(r.Buf) {
			tail := kernel.RORange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]}
			if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RORange]{Range: tail, Err: kernel.NewError(kernel.OriginWrite, kernel.KindUnableToWriteFile)}) {
				return kernel.NewError(kernel.OriginWrite, kernel.KindUnknown)
			}
		}
	}
	return nil
}

func (s *selfProcess) Info() (string, *kernel.Error) {
	var b strings.Builder
	fmt.Fprintf(&b, "pid: %d\nname: %s\n", s.info.PID, s.info.Name)
	if exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", s.info.PID)); err == nil {
		fmt.Fprintf(&b, "exe: %s\n", exe)
	}
	if cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", s.info.PID)); err == nil {
		fmt.Fprintf(&b, "cmdline: %s\n", strings.ReplaceAll(string(cmdline), "\x00", " "))
	}
	return b.String(), nil
}

func (s *selfProcess) Maps() (string, *kernel.Error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", s.info.PID))
	if err != nil {
		return "", kernel.NewError(kernel.OriginIo, kernel.KindUnableToReadFile)
	}
	return string(b), nil
}

func (s *selfProcess) PhysMaps() (string, *kernel.Error) {
	return "", kernel.NewError(kernel.OriginIo, kernel.KindNotSupported)
}

// ModuleList parses /proc/<pid>/maps, coalescing every mapping region that
// shares a backing file path into one module spanning from the lowest start
// to the highest end among them, whether or not the regions are contiguous.
func (s *selfProcess) ModuleList(out func(ModuleInfo) bool) *kernel.Error {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", s.info.PID))
	if err != nil {
		return kernel.NewError(kernel.OriginIo, kernel.KindUnableToReadFile)
	}
	defer func() { _ = f.Close() }()

	type span struct{ start, end uint64 }
	spans := make(map[string]*span)
	var order []string

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			continue
		}
		path := fields[5]
		if !filepath.IsAbs(path) {
			continue
		}
		addrs := strings.SplitN(fields[0], "-", 2)
		if len(addrs) != 2 {
			continue
		}
		start, serr := strconv.ParseUint(addrs[0], 16, 64)
		if serr != nil {
			continue
		}
		end, eerr := strconv.ParseUint(addrs[1], 16, 64)
		if eerr != nil {
			continue
		}
		sp, ok := spans[path]
		if !ok {
			sp = &span{start: start, end: end}
			spans[path] = sp
			order = append(order, path)
			continue
		}
		if start < sp.start {
			sp.start = start
		}
		if end > sp.end {
			sp.end = end
		}
	}
	if err := sc.Err(); err != nil {
		return kernel.NewError(kernel.OriginIo, kernel.KindUnableToReadFile)
	}

	sort.Strings(order)
	for _, path := range order {
		sp := spans[path]
		info := ModuleInfo{Name: filepath.Base(path), Base: kernel.Size(sp.start), Size: kernel.Size(sp.end - sp.start)}
		if !out(info) {
			break
		}
	}
	return nil
}

func readFile(path string, ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	f, err := os.Open(path)
	if err != nil {
		return kernel.NewError(kernel.OriginIo, kernel.KindUnableToReadFile)
	}
	defer func() { _ = f.Close() }()
	for _, r := range ops.In {
		n, rerr := f.ReadAt(r.Buf, int64(r.Addr))
		if n > 0 && ops.Out != nil {
			if !ops.Out(kernel.RWRange{Addr: r.Addr, Buf: r.Buf[:n]}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
		}
		if n < len(r.Buf) {
			_ = rerr
			tail := kernel.RWRange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]}
			if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RWRange]{Range: tail, Err: kernel.NewError(kernel.OriginRead, kernel.KindOutOfBounds)}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
		}
	}
	return nil
}
