package main

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/nicolagi/memfs/connector"
	"github.com/nicolagi/memfs/kernel"
	"github.com/nicolagi/memfs/osview"
)

// ctlLeaf accepts one command per write, grounded on
// cmd/musclefs/musclefs.go's controlFile/runCommand pattern: a write is
// parsed as whitespace-separated fields and dispatched by the first field,
// and the command's output (including any error) becomes the file's
// content until the next write.
type ctlLeaf struct {
	kernel.BaseFileOps

	osRegistry        *kernel.ConnectionRegistry[*osview.OsRoot]
	connectorRegistry *kernel.ConnectionRegistry[*connector.Root]

	mu  sync.Mutex
	out []byte
}

func newCtlLeaf(osRegistry *kernel.ConnectionRegistry[*osview.OsRoot], connectorRegistry *kernel.ConnectionRegistry[*connector.Root]) *ctlLeaf {
	return &ctlLeaf{osRegistry: osRegistry, connectorRegistry: connectorRegistry}
}

func (c *ctlLeaf) Open() (kernel.FileOps, *kernel.Error) { return c, nil }

func (c *ctlLeaf) Metadata() (kernel.NodeMetadata, *kernel.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return kernel.NodeMetadata{HasRead: true, HasWrite: true, Size: uint64(len(c.out))}, nil
}

func (c *ctlLeaf) Read(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	c.mu.Lock()
	data := c.out
	c.mu.Unlock()
	for _, r := range ops.In {
		if r.Addr >= uint64(len(data)) {
			if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RWRange]{Range: r, Err: kernel.NewError(kernel.OriginRead, kernel.KindOutOfBounds)}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
			continue
		}
		avail := data[r.Addr:]
		n := len(r.Buf)
		if n > len(avail) {
			n = len(avail)
		}
		copy(r.Buf[:n], avail[:n])
		if n > 0 && ops.Out != nil && !ops.Out(kernel.RWRange{Addr: r.Addr, Buf: r.Buf[:n]}) {
			return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
		}
		if n < len(r.Buf) {
			tail := kernel.RWRange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]}
			if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RWRange]{Range: tail, Err: kernel.NewError(kernel.OriginRead, kernel.KindOutOfBounds)}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
		}
	}
	return nil
}

func (c *ctlLeaf) Write(ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	var buf bytes.Buffer
	for _, r := range ops.In {
		buf.Write(r.Buf)
		if ops.Out != nil && !ops.Out(r) {
			return kernel.NewError(kernel.OriginWrite, kernel.KindUnknown)
		}
	}
	result := c.runCommand(strings.TrimSpace(buf.String()))
	c.mu.Lock()
	c.out = []byte(result)
	c.mu.Unlock()
	return nil
}

func (c *ctlLeaf) Rpc([]byte, []byte) *kernel.Error { return nil }

func (c *ctlLeaf) runCommand(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	verb, args := fields[0], fields[1:]
	switch verb {
	case "os":
		return runRegistryCommand(c.osRegistry, args, func(kind string, rest []string) (*osview.OsRoot, error) {
			switch kind {
			case "self":
				return osview.NewOsRoot(osview.NewSelfProvider()), nil
			default:
				return nil, fmt.Errorf("unknown os provider kind %q", kind)
			}
		})
	case "connector":
		return runRegistryCommand(c.connectorRegistry, args, func(kind string, rest []string) (*connector.Root, error) {
			conn, err := newConnector(kind, rest)
			if err != nil {
				return nil, err
			}
			return connector.NewRoot(conn), nil
		})
	default:
		return fmt.Sprintf("unknown command %q\n", verb)
	}
}

func newConnector(kind string, args []string) (connector.Connector, error) {
	switch kind {
	case "file":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: connector new NAME file PATH")
		}
		return connector.NewFileConnector(args[0])
	case "s3":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: connector new NAME s3 REGION BUCKET KEY")
		}
		return connector.NewS3Connector(args[0], args[1], args[2])
	case "memory":
		return connector.NewMemoryConnector(nil), nil
	default:
		return nil, fmt.Errorf("unknown connector kind %q", kind)
	}
}

// runRegistryCommand implements the "new NAME KIND ...", "rm NAME" and "ls"
// sub-commands shared by both the "os" and "connector" ctl verbs.
func runRegistryCommand[T any](registry *kernel.ConnectionRegistry[T], args []string, build func(kind string, rest []string) (T, error)) string {
	if len(args) == 0 {
		return "usage: (new NAME KIND ...|rm NAME|ls)\n"
	}
	switch args[0] {
	case "ls":
		var out strings.Builder
		for _, name := range registry.Names() {
			out.WriteString(name)
			out.WriteByte('\n')
		}
		return out.String()
	case "rm":
		if len(args) != 2 {
			return "usage: rm NAME\n"
		}
		registry.RemoveRoot(args[1])
		return ""
	case "new":
		if len(args) < 3 {
			return "usage: new NAME KIND ...\n"
		}
		name, kind, rest := args[1], args[2], args[3:]
		entity, err := build(kind, rest)
		if err != nil {
			return fmt.Sprintf("%v\n", err)
		}
		registry.AddRoot(name, entity)
		return ""
	default:
		return fmt.Sprintf("unknown sub-command %q\n", args[0])
	}
}

// ctlBackend adapts a single ctlLeaf into the Backend interface so it can
// be mounted directly by a NodeBackend, without a connection-registry layer
// in between: the control file has no further path structure beneath it.
type ctlBackend struct {
	leaf *ctlLeaf
}

func (b *ctlBackend) GetEntry(path string, _ *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	if path != "" {
		return kernel.DirEntry{}, kernel.NewError(kernel.OriginBackend, kernel.KindNotFound)
	}
	return kernel.LeafEntry(b.leaf), nil
}

func (b *ctlBackend) List(path string, _ *kernel.PluginStore, out func(kernel.ListEntry) bool) *kernel.Error {
	if path != "" {
		return kernel.NewError(kernel.OriginBackend, kernel.KindNotFound)
	}
	return nil
}
