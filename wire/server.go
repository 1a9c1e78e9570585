package wire

import (
	"bufio"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/nicolagi/memfs/kernel"
)

// ServeConn drives one connection against frontend until the client closes
// it or a framing error makes the connection unusable. One goroutine per
// connection, against a Frontend that is itself safe for concurrent use.
func ServeConn(conn net.Conn, frontend *kernel.Frontend, log *logrus.Logger) {
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	frags := NewFragmentBuffer()

	for {
		method, err := readByte(r)
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Debug("wire: reading method tag")
			}
			return
		}
		if err := dispatch(Method(method), r, w, frontend, frags, log); err != nil {
			log.WithError(err).Debug("wire: dispatching request")
			return
		}
		if err := w.Flush(); err != nil {
			log.WithError(err).Debug("wire: flushing response")
			return
		}
	}
}

func dispatch(method Method, r *bufio.Reader, w *bufio.Writer, frontend *kernel.Frontend, frags *FragmentBuffer, log *logrus.Logger) error {
	switch method {
	case MethodList:
		return serveList(r, w, frontend)
	case MethodOpen:
		return serveOpen(r, w, frontend)
	case MethodClose:
		return serveClose(r, w, frontend)
	case MethodMetadata:
		return serveMetadata(r, w, frontend)
	case MethodRead:
		return serveRead(r, w, frontend, frags)
	case MethodWrite:
		return serveWrite(r, w, frontend, frags)
	case MethodRpc:
		return serveRpc(r, w, frontend)
	default:
		return writeInt32(w, kernel.NewError(kernel.OriginBackend, kernel.KindInvalidArgument).Pack())
	}
}

func serveMetadata(r *bufio.Reader, w *bufio.Writer, frontend *kernel.Frontend) error {
	path, err := readString(r)
	if err != nil {
		return err
	}
	md, kerr := frontend.Metadata(path)
	if kerr != nil {
		// Keep the fixed-size fields on failure too, as serveOpen and
		// serveRpc do, so the client can always read the same layout.
		md = kernel.NodeMetadata{}
	}
	if werr := writeByte(w, boolByte(md.IsBranch)); werr != nil {
		return werr
	}
	if werr := writeByte(w, boolByte(md.HasRead)); werr != nil {
		return werr
	}
	if werr := writeByte(w, boolByte(md.HasWrite)); werr != nil {
		return werr
	}
	if werr := writeByte(w, boolByte(md.HasRpc)); werr != nil {
		return werr
	}
	if werr := writeUint64(w, md.Size); werr != nil {
		return werr
	}
	if kerr != nil {
		return writeInt32(w, kerr.Pack())
	}
	return writeInt32(w, 0)
}

func serveList(r *bufio.Reader, w *bufio.Writer, frontend *kernel.Frontend) error {
	path, err := readString(r)
	if err != nil {
		return err
	}
	kerr := frontend.List(path, func(e kernel.ListEntry) bool {
		if writeByte(w, 1) != nil {
			return false
		}
		if writeString(w, e.Name) != nil {
			return false
		}
		if writeByte(w, boolByte(e.IsBranch)) != nil {
			return false
		}
		return true
	})
	if werr := writeByte(w, 0); werr != nil {
		return werr
	}
	if kerr != nil {
		return writeInt32(w, kerr.Pack())
	}
	return writeInt32(w, 0)
}

func serveOpen(r *bufio.Reader, w *bufio.Writer, frontend *kernel.Frontend) error {
	path, err := readString(r)
	if err != nil {
		return err
	}
	handle, kerr := frontend.Open(path)
	if kerr != nil {
		if werr := writeUint64(w, 0); werr != nil {
			return werr
		}
		return writeInt32(w, kerr.Pack())
	}
	if werr := writeUint64(w, handle); werr != nil {
		return werr
	}
	return writeInt32(w, 0)
}

func serveClose(r *bufio.Reader, w *bufio.Writer, frontend *kernel.Frontend) error {
	handle, err := readUint64(r)
	if err != nil {
		return err
	}
	kerr := frontend.Close(handle)
	if kerr != nil {
		return writeInt32(w, kerr.Pack())
	}
	return writeInt32(w, 0)
}

func serveRpc(r *bufio.Reader, w *bufio.Writer, frontend *kernel.Frontend) error {
	handle, err := readUint64(r)
	if err != nil {
		return err
	}
	input, err := readBytes(r)
	if err != nil {
		return err
	}
	outLen, err := readUint64(r)
	if err != nil {
		return err
	}
	output := make([]byte, outLen)
	kerr := frontend.Rpc(handle, input, output)
	if kerr != nil {
		if werr := writeBytes(w, nil); werr != nil {
			return werr
		}
		return writeInt32(w, kerr.Pack())
	}
	if werr := writeBytes(w, output); werr != nil {
		return werr
	}
	return writeInt32(w, 0)
}

// serveRead reads the (addr, len) request pairs terminated by a (0, 0)
// sentinel, then streams back chunkOK ranges for every successfully
// transferred sub-range and chunkFailure ranges for every failed one,
// finishing with a chunkEnd plus the packed top-level error.
func serveRead(r *bufio.Reader, w *bufio.Writer, frontend *kernel.Frontend, frags *FragmentBuffer) error {
	handle, err := readUint64(r)
	if err != nil {
		return err
	}
	var ranges []kernel.RWRange
	var bufs [][]byte
	for {
		addr, err := readUint64(r)
		if err != nil {
			return err
		}
		length, err := readUint64(r)
		if err != nil {
			return err
		}
		if addr == 0 && length == 0 {
			break
		}
		if err := checkFrameLen(length); err != nil {
			return err
		}
		buf := frags.Get(int(length))
		ranges = append(ranges, kernel.RWRange{Addr: addr, Buf: buf})
		bufs = append(bufs, buf)
	}

	var writeErr error
	kerr := frontend.Read(handle, kernel.VecOps[kernel.RWRange]{
		In: ranges,
		Out: func(rng kernel.RWRange) bool {
			if writeErr != nil {
				return false
			}
			writeErr = writeChunk(w, chunkOK, rng.Addr, rng.Buf, 0)
			return writeErr == nil
		},
		OutFail: func(fr kernel.FailRange[kernel.RWRange]) bool {
			if writeErr != nil {
				return false
			}
			writeErr = writeChunk(w, chunkFailure, fr.Range.Addr, nil, fr.Err.Pack())
			return writeErr == nil
		},
	})
	for _, buf := range bufs {
		frags.PutBack(buf)
	}
	if writeErr != nil {
		return writeErr
	}
	if werr := writeByte(w, chunkEnd); werr != nil {
		return werr
	}
	if kerr != nil {
		return writeInt32(w, kerr.Pack())
	}
	return writeInt32(w, 0)
}

func serveWrite(r *bufio.Reader, w *bufio.Writer, frontend *kernel.Frontend, frags *FragmentBuffer) error {
	handle, err := readUint64(r)
	if err != nil {
		return err
	}
	var ranges []kernel.RORange
	for {
		addr, err := readUint64(r)
		if err != nil {
			return err
		}
		length, err := readUint64(r)
		if err != nil {
			return err
		}
		if addr == 0 && length == 0 {
			break
		}
		if err := checkFrameLen(length); err != nil {
			return err
		}
		buf := frags.Get(int(length))
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		ranges = append(ranges, kernel.RORange{Addr: addr, Buf: buf})
	}

	var writeErr error
	kerr := frontend.Write(handle, kernel.VecOps[kernel.RORange]{
		In: ranges,
		Out: func(rng kernel.RORange) bool {
			if writeErr != nil {
				return false
			}
			writeErr = writeChunk(w, chunkOK, rng.Addr, nil, 0)
			return writeErr == nil
		},
		OutFail: func(fr kernel.FailRange[kernel.RORange]) bool {
			if writeErr != nil {
				return false
			}
			writeErr = writeChunk(w, chunkFailure, fr.Range.Addr, nil, fr.Err.Pack())
			return writeErr == nil
		},
	})
	for _, rng := range ranges {
		frags.PutBack(rng.Buf)
	}
	if writeErr != nil {
		return writeErr
	}
	if werr := writeByte(w, chunkEnd); werr != nil {
		return werr
	}
	if kerr != nil {
		return writeInt32(w, kerr.Pack())
	}
	return writeInt32(w, 0)
}

func writeChunk(w *bufio.Writer, tag byte, addr uint64, data []byte, packedErr int32) error {
	if err := writeByte(w, tag); err != nil {
		return err
	}
	if err := writeUint64(w, addr); err != nil {
		return err
	}
	switch tag {
	case chunkOK:
		return writeBytes(w, data)
	case chunkFailure:
		return writeInt32(w, packedErr)
	}
	return nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	if err := checkFrameLen(n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint64(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
