// Package wire implements the length-delimited binary protocol that lets a
// remote client drive a kernel.Frontend over a plain net.Conn, grounded on
// original_source/filer-tokio/src/lib.rs's FilerClient/FilerServer. Unlike
// the Rust original (async, tokio-based), this is a synchronous
// request/response protocol, one goroutine per connection against a
// Frontend that is itself safe for concurrent use.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// maxFrameLen bounds any single length-prefixed field read off the wire — a
// string, a byte blob, or one scatter/gather range — so a malformed or
// hostile frame can't drive an unbounded allocation.
const maxFrameLen = 1 << 30 // 1 GiB

var errFrameTooLarge = errors.New("wire: frame length exceeds maximum")

func checkFrameLen(n uint64) error {
	if n > maxFrameLen {
		return errFrameTooLarge
	}
	return nil
}

// Method tags one frame as one of the seven Frontend operations, matching
// original_source/filer-tokio/src/lib.rs's FrontendFuncs enum order.
type Method byte

const (
	MethodRead Method = iota
	MethodWrite
	MethodRpc
	MethodClose
	MethodOpen
	MethodMetadata
	MethodList
)

// chunkTag distinguishes the three kinds of frame a Read/Write response
// stream can contain: 0 terminates the stream with a packed error code (0
// meaning success), 1 carries a successfully transferred range, 2 carries
// the start address of a range that failed along with its packed error
// code; the failed range's length is not sent.
const (
	chunkEnd     = 0
	chunkOK      = 1
	chunkFailure = 2
)

var order = binary.LittleEndian

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	order.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return order.Uint64(b[:]), nil
}

func writeInt32(w io.Writer, v int32) error {
	var b [4]byte
	order.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

func readInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(order.Uint32(b[:])), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint64(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint64(r)
	if err != nil {
		return "", err
	}
	if err := checkFrameLen(n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
