package wire

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/nicolagi/memfs/kernel"
)

// Client is a remote kernel.Frontend-alike: it drives the same seven
// operations over a single net.Conn, serialized under a mutex since the
// protocol is strictly request/response (no pipelining), the same way a
// 9P client serializes tags on one transport. Grounded on
// original_source/filer-tokio/src/lib.rs's FilerClient.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) GetEntry(path string) (isBranch bool, err error) {
	md, err := c.Metadata(path)
	if err != nil {
		return false, err
	}
	return md.IsBranch, nil
}

func (c *Client) Metadata(path string) (kernel.NodeMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeByte(c.w, byte(MethodMetadata)); err != nil {
		return kernel.NodeMetadata{}, err
	}
	if err := writeString(c.w, path); err != nil {
		return kernel.NodeMetadata{}, err
	}
	if err := c.w.Flush(); err != nil {
		return kernel.NodeMetadata{}, err
	}

	isBranch, err := readByte(c.r)
	if err != nil {
		return kernel.NodeMetadata{}, err
	}
	hasRead, err := readByte(c.r)
	if err != nil {
		return kernel.NodeMetadata{}, err
	}
	hasWrite, err := readByte(c.r)
	if err != nil {
		return kernel.NodeMetadata{}, err
	}
	hasRpc, err := readByte(c.r)
	if err != nil {
		return kernel.NodeMetadata{}, err
	}
	size, err := readUint64(c.r)
	if err != nil {
		return kernel.NodeMetadata{}, err
	}
	if kerr, err := readPackedError(c.r); err != nil {
		return kernel.NodeMetadata{}, err
	} else if kerr != nil {
		return kernel.NodeMetadata{}, kerr
	}
	return kernel.NodeMetadata{
		IsBranch: isBranch != 0,
		HasRead:  hasRead != 0,
		HasWrite: hasWrite != 0,
		HasRpc:   hasRpc != 0,
		Size:     size,
	}, nil
}

func (c *Client) List(path string, out func(kernel.ListEntry) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeByte(c.w, byte(MethodList)); err != nil {
		return err
	}
	if err := writeString(c.w, path); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}

	stop := false
	for {
		tag, err := readByte(c.r)
		if err != nil {
			return err
		}
		if tag == 0 {
			break
		}
		name, err := readString(c.r)
		if err != nil {
			return err
		}
		isBranch, err := readByte(c.r)
		if err != nil {
			return err
		}
		if !stop && !out(kernel.ListEntry{Name: name, IsBranch: isBranch != 0}) {
			stop = true
		}
	}
	if kerr, err := readPackedError(c.r); err != nil {
		return err
	} else if kerr != nil {
		return kerr
	}
	return nil
}

func (c *Client) Open(path string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeByte(c.w, byte(MethodOpen)); err != nil {
		return 0, err
	}
	if err := writeString(c.w, path); err != nil {
		return 0, err
	}
	if err := c.w.Flush(); err != nil {
		return 0, err
	}
	handle, err := readUint64(c.r)
	if err != nil {
		return 0, err
	}
	if kerr, err := readPackedError(c.r); err != nil {
		return 0, err
	} else if kerr != nil {
		return 0, kerr
	}
	return handle, nil
}

func (c *Client) CloseHandle(handle uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeByte(c.w, byte(MethodClose)); err != nil {
		return err
	}
	if err := writeUint64(c.w, handle); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	if kerr, err := readPackedError(c.r); err != nil {
		return err
	} else if kerr != nil {
		return kerr
	}
	return nil
}

func (c *Client) Rpc(handle uint64, input []byte, outLen int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeByte(c.w, byte(MethodRpc)); err != nil {
		return nil, err
	}
	if err := writeUint64(c.w, handle); err != nil {
		return nil, err
	}
	if err := writeBytes(c.w, input); err != nil {
		return nil, err
	}
	if err := writeUint64(c.w, uint64(outLen)); err != nil {
		return nil, err
	}
	if err := c.w.Flush(); err != nil {
		return nil, err
	}
	output, err := readBytes(c.r)
	if err != nil {
		return nil, err
	}
	if kerr, err := readPackedError(c.r); err != nil {
		return nil, err
	} else if kerr != nil {
		return nil, kerr
	}
	return output, nil
}

// Read issues a scatter read for the given ranges, using a SegmentTree to
// route each response chunk back into the caller-supplied destination
// buffer it belongs to, since the server may split or reorder ranges (e.g.
// around an out-of-bounds boundary). Sub-ranges the server reports as failed
// are not reported to the caller: their destination bytes are left as they
// were, and Read returns nil unless the operation as a whole fails.
func (c *Client) Read(handle uint64, ranges []kernel.RWRange) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seg := NewSegmentTree()
	for _, rng := range ranges {
		seg.AddSeg(rng.Addr, rng.Buf)
	}

	if err := writeByte(c.w, byte(MethodRead)); err != nil {
		return err
	}
	if err := writeUint64(c.w, handle); err != nil {
		return err
	}
	for _, rng := range ranges {
		if err := writeUint64(c.w, rng.Addr); err != nil {
			return err
		}
		if err := writeUint64(c.w, uint64(len(rng.Buf))); err != nil {
			return err
		}
	}
	if err := writeUint64(c.w, 0); err != nil {
		return err
	}
	if err := writeUint64(c.w, 0); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}

	for {
		tag, err := readByte(c.r)
		if err != nil {
			return err
		}
		if tag == chunkEnd {
			break
		}
		addr, err := readUint64(c.r)
		if err != nil {
			return err
		}
		switch tag {
		case chunkOK:
			data, err := readBytes(c.r)
			if err != nil {
				return err
			}
			if dst := seg.Get(addr, len(data)); dst != nil {
				copy(dst, data)
			}
		case chunkFailure:
			code, err := readInt32(c.r)
			if err != nil {
				return err
			}
			_ = kernel.Unpack(code)
		default:
			return errors.Errorf("wire: unexpected read chunk tag %d", tag)
		}
	}
	if kerr, err := readPackedError(c.r); err != nil {
		return err
	} else if kerr != nil {
		return kerr
	}
	return nil
}

func (c *Client) Write(handle uint64, ranges []kernel.RORange) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeByte(c.w, byte(MethodWrite)); err != nil {
		return err
	}
	if err := writeUint64(c.w, handle); err != nil {
		return err
	}
	for _, rng := range ranges {
		if err := writeUint64(c.w, rng.Addr); err != nil {
			return err
		}
		if err := writeUint64(c.w, uint64(len(rng.Buf))); err != nil {
			return err
		}
		if _, err := c.w.Write(rng.Buf); err != nil {
			return err
		}
	}
	if err := writeUint64(c.w, 0); err != nil {
		return err
	}
	if err := writeUint64(c.w, 0); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}

	for {
		tag, err := readByte(c.r)
		if err != nil {
			return err
		}
		if tag == chunkEnd {
			break
		}
		if _, err := readUint64(c.r); err != nil {
			return err
		}
		switch tag {
		case chunkOK:
			// The server frames write acknowledgements like read chunks,
			// with an empty byte payload that still carries its length.
			if _, err := readBytes(c.r); err != nil {
				return err
			}
		case chunkFailure:
			if _, err := readInt32(c.r); err != nil {
				return err
			}
		default:
			return errors.Errorf("wire: unexpected write chunk tag %d", tag)
		}
	}
	if kerr, err := readPackedError(c.r); err != nil {
		return err
	} else if kerr != nil {
		return kerr
	}
	return nil
}

func readPackedError(r io.Reader) (*kernel.Error, error) {
	code, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	return kernel.Unpack(code), nil
}
