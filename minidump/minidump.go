// Package minidump serializes a process's module list and a set of memory
// regions into a minidump-subset container: a fixed header, a stream
// directory, a module list stream, and a memory list stream, in the same
// spirit as the real MINIDUMP format (signature, stream directory, typed
// streams) without claiming wire compatibility with it. Named after
// platflow-minidump, mentioned only in passing as an external collaborator;
// nothing in the retrieval pack writes this format, so it is built on
// encoding/binary alone (see DESIGN.md).
package minidump

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	signature = 0x504d444d // "MDMP"
	version   = 1

	streamTypeModuleList = 4
	streamTypeMemoryList = 5
)

// Module is one entry in the module list stream.
type Module struct {
	Name string
	Base uint64
	Size uint32
}

// MemoryRegion is one entry in the memory list stream: Data is copied
// verbatim into the container at serialization time.
type MemoryRegion struct {
	Base uint64
	Data []byte
}

type streamDirEntry struct {
	streamType uint32
	dataSize   uint32
	rva        uint32
}

// Write serializes modules and regions into a minidump-subset container.
func Write(modules []Module, regions []MemoryRegion) ([]byte, error) {
	moduleStream, err := encodeModuleList(modules)
	if err != nil {
		return nil, err
	}
	memoryStream, err := encodeMemoryList(regions)
	if err != nil {
		return nil, err
	}

	const headerSize = 24
	const dirEntrySize = 12
	dirSize := 2 * dirEntrySize
	moduleRva := uint32(headerSize + dirSize)
	memoryRva := moduleRva + uint32(len(moduleStream))

	dir := []streamDirEntry{
		{streamType: streamTypeModuleList, dataSize: uint32(len(moduleStream)), rva: moduleRva},
		{streamType: streamTypeMemoryList, dataSize: uint32(len(memoryStream)), rva: memoryRva},
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(signature)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(version)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(dir))); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(headerSize)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(0)); err != nil { // reserved
		return nil, err
	}
	for _, e := range dir {
		if err := binary.Write(&buf, binary.LittleEndian, e.streamType); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, e.dataSize); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, e.rva); err != nil {
			return nil, err
		}
	}
	buf.Write(moduleStream)
	buf.Write(memoryStream)
	return buf.Bytes(), nil
}

func encodeModuleList(modules []Module) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(modules))); err != nil {
		return nil, err
	}
	for _, m := range modules {
		if len(m.Name) > 0xFFFF {
			return nil, fmt.Errorf("minidump: module name too long: %d bytes", len(m.Name))
		}
		if err := binary.Write(&buf, binary.LittleEndian, m.Base); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, m.Size); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint16(len(m.Name))); err != nil {
			return nil, err
		}
		buf.WriteString(m.Name)
	}
	return buf.Bytes(), nil
}

func encodeMemoryList(regions []MemoryRegion) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(regions))); err != nil {
		return nil, err
	}
	for _, r := range regions {
		if err := binary.Write(&buf, binary.LittleEndian, r.Base); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint64(len(r.Data))); err != nil {
			return nil, err
		}
		buf.Write(r.Data)
	}
	return buf.Bytes(), nil
}

// Header describes the fixed-size fields at the front of a container. Read
// skips over them and does not return a Header.
type Header struct {
	NumberOfStreams    uint32
	StreamDirectoryRva uint32
}

// Read parses a container written by Write back into its module and memory
// streams, skipping the header and stream directory to locate them.
func Read(data []byte) ([]Module, []MemoryRegion, error) {
	if len(data) < 24 {
		return nil, nil, fmt.Errorf("minidump: container too small")
	}
	r := bytes.NewReader(data)
	var sig, ver, numStreams, dirRva uint32
	var reserved uint64
	for _, v := range []*uint32{&sig, &ver, &numStreams, &dirRva} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, nil, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &reserved); err != nil {
		return nil, nil, err
	}
	if sig != signature {
		return nil, nil, fmt.Errorf("minidump: bad signature %#x", sig)
	}

	if int(dirRva) > len(data) {
		return nil, nil, fmt.Errorf("minidump: stream directory out of range")
	}
	dirReader := bytes.NewReader(data[dirRva:])
	var modules []Module
	var regions []MemoryRegion
	for i := uint32(0); i < numStreams; i++ {
		var e streamDirEntry
		if err := binary.Read(dirReader, binary.LittleEndian, &e.streamType); err != nil {
			return nil, nil, err
		}
		if err := binary.Read(dirReader, binary.LittleEndian, &e.dataSize); err != nil {
			return nil, nil, err
		}
		if err := binary.Read(dirReader, binary.LittleEndian, &e.rva); err != nil {
			return nil, nil, err
		}
		if int(e.rva+e.dataSize) > len(data) {
			return nil, nil, fmt.Errorf("minidump: stream %d out of range", e.streamType)
		}
		streamData := data[e.rva : e.rva+e.dataSize]
		switch e.streamType {
		case streamTypeModuleList:
			var err error
			modules, err = decodeModuleList(streamData)
			if err != nil {
				return nil, nil, err
			}
		case streamTypeMemoryList:
			var err error
			regions, err = decodeMemoryList(streamData)
			if err != nil {
				return nil, nil, err
			}
		}
	}
	return modules, regions, nil
}

func decodeModuleList(data []byte) ([]Module, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	modules := make([]Module, 0, count)
	for i := uint32(0); i < count; i++ {
		var m Module
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &m.Base); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &m.Size); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := r.Read(name); err != nil {
			return nil, err
		}
		m.Name = string(name)
		modules = append(modules, m)
	}
	return modules, nil
}

func decodeMemoryList(data []byte) ([]MemoryRegion, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	regions := make([]MemoryRegion, 0, count)
	for i := uint32(0); i < count; i++ {
		var reg MemoryRegion
		var size uint64
		if err := binary.Read(r, binary.LittleEndian, &reg.Base); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		reg.Data = make([]byte, size)
		if _, err := r.Read(reg.Data); err != nil {
			return nil, err
		}
		regions = append(regions, reg)
	}
	return regions, nil
}
