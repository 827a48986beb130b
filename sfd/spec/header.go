package spec

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/eak1mov/go-libsfd/tile"
)

const (
	// Magic starts every sfd file; it is stored with its NUL terminator.
	Magic = "storkafinger"

	// InitialHeaderLength covers magic, version, encryption, header size and file size.
	InitialHeaderLength = len(Magic) + 1 + 1 + 1 + 4 + 4

	// MaxVersion is the newest format version. Version 0 derives block sizes
	// from the next offset; later versions store a size per cell and may share blocks.
	MaxVersion = 1

	DefaultStrIdxEntrySizeBits = 32
)

type HeaderState uint8

const (
	HeaderEmpty HeaderState = iota
	HeaderInitialLoaded
	HeaderFullyLoaded
	HeaderSizesComputed
	HeaderSaved
)

type Header struct {
	Version      uint8
	HeaderSize   uint32
	FileSize     uint32
	Name         string
	CreationTime uint32

	StringsAreNullTerminated bool
	MaxStringSize            uint8

	// InitialChars is the sorted set of first bytes of all header strings.
	InitialChars []byte
	RouteIDs     []tile.RouteID

	StrIdxEntrySizeBits   uint32
	StrIdxStartOffset     uint32
	NbrStrings            uint32
	StrDataStartOffset    uint32
	BufferIdxStartOffset  uint32
	BufferDataStartOffset uint32

	ReadDebugParams bool
	Collections     []TileCollection

	// Not stored: start of the grid offset table and of the multi-buffer area.
	MultiBufferOffsetStart uint32
	MultiBufferStart       uint32

	State HeaderState
}

// NewHeader returns an empty header with the defaults used when building files.
func NewHeader(name string, creationTime uint32, debug bool) *Header {
	return &Header{
		Name:                     name,
		CreationTime:             creationTime,
		StringsAreNullTerminated: true,
		StrIdxEntrySizeBits:      DefaultStrIdxEntrySizeBits,
		ReadDebugParams:          debug,
	}
}

// Cells returns the number of grid cells over all collections.
func (h *Header) Cells() int {
	n := 0
	for i := range h.Collections {
		n += h.Collections[i].Cells()
	}
	return n
}

// GridEntrySize is the size of one grid table entry for the header's version.
func (h *Header) GridEntrySize() uint32 {
	if h.Version == 0 {
		return 4
	}
	return 8
}

// GridTableSize is the size of the grid table including the trailing sentinel.
func (h *Header) GridTableSize() uint32 {
	return uint32(h.Cells()+1) * h.GridEntrySize()
}

// UpdateMetaData folds one header string into the string size limit, the
// initial character set and the route id list.
func (h *Header) UpdateMetaData(key string) {
	size := len(key)
	if h.StringsAreNullTerminated {
		size++
	}
	h.MaxStringSize = uint8(max(int(h.MaxStringSize), min(size, 255)))

	if len(key) > 0 {
		if i, found := slices.BinarySearch(h.InitialChars, key[0]); !found {
			h.InitialChars = slices.Insert(h.InitialChars, i, key[0])
		}
	}

	p, err := tile.ParseParams(key)
	if err != nil || !p.HasRoute {
		return
	}
	if !slices.Contains(h.RouteIDs, p.Route) {
		h.RouteIDs = append(h.RouteIDs, p.Route)
	}
}

// SerializeHeader encodes the header fields as they currently are.
func SerializeHeader(h *Header) []byte {
	buf := make([]byte, 0, 256)
	buf = appendCString(buf, Magic)
	buf = append(buf, h.Version, 0)
	buf = binary.BigEndian.AppendUint32(buf, h.HeaderSize)
	buf = binary.BigEndian.AppendUint32(buf, h.FileSize)
	buf = appendCString(buf, h.Name)
	buf = binary.BigEndian.AppendUint32(buf, h.CreationTime)
	buf = append(buf, boolByte(h.StringsAreNullTerminated), h.MaxStringSize)
	buf = append(buf, byte(len(h.InitialChars)))
	buf = append(buf, h.InitialChars...)
	buf = append(buf, byte(len(h.RouteIDs)))
	for _, r := range h.RouteIDs {
		buf = binary.BigEndian.AppendUint32(buf, r.ID)
		buf = binary.BigEndian.AppendUint32(buf, r.CreationTime)
	}
	buf = binary.BigEndian.AppendUint32(buf, h.StrIdxEntrySizeBits)
	buf = binary.BigEndian.AppendUint32(buf, h.StrIdxStartOffset)
	buf = binary.BigEndian.AppendUint32(buf, h.NbrStrings)
	buf = binary.BigEndian.AppendUint32(buf, h.StrDataStartOffset)
	buf = binary.BigEndian.AppendUint32(buf, h.BufferIdxStartOffset)
	buf = binary.BigEndian.AppendUint32(buf, h.BufferDataStartOffset)
	buf = append(buf, boolByte(h.ReadDebugParams))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.Collections)))
	for i := range h.Collections {
		buf = appendTileCollection(buf, &h.Collections[i])
	}
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ComputeSizes fills in header size and all section offsets for a file with
// the given header strings and header map payload sizes. The header is
// serialized once into a scratch buffer to learn its size; the offsets
// follow additively from the section sizes.
func (h *Header) ComputeSizes(strs []string, mapSizes []int) error {
	if len(strs) != len(mapSizes) {
		return Violationf("%d header strings but %d header maps", len(strs), len(mapSizes))
	}
	if len(h.InitialChars) > 255 || len(h.RouteIDs) > 255 {
		return Violationf("too many initial chars (%d) or route ids (%d)", len(h.InitialChars), len(h.RouteIDs))
	}
	if len(h.Collections) > 0xffff {
		return Violationf("too many tile collections: %d", len(h.Collections))
	}
	if h.Version > MaxVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	h.HeaderSize = uint32(len(SerializeHeader(h)))

	n := uint32(len(strs))
	strBytes := uint32(0)
	for _, s := range strs {
		strBytes += uint32(len(s)) + 1
	}
	mapBytes := uint32(0)
	for _, size := range mapSizes {
		mapBytes += uint32(size)
	}

	h.NbrStrings = n
	h.StrIdxStartOffset = h.HeaderSize
	h.StrDataStartOffset = h.StrIdxStartOffset + (n+1)*4
	h.BufferIdxStartOffset = h.StrDataStartOffset + strBytes
	h.BufferDataStartOffset = h.BufferIdxStartOffset + (n+1)*4
	h.MultiBufferOffsetStart = h.BufferDataStartOffset + mapBytes
	h.MultiBufferStart = h.MultiBufferOffsetStart + h.GridTableSize()
	h.State = HeaderSizesComputed
	return nil
}

// Save serializes the header after ComputeSizes. FileSize must be set.
func (h *Header) Save() ([]byte, error) {
	if h.State != HeaderSizesComputed && h.State != HeaderSaved {
		return nil, Violationf("header saved before sizes were computed")
	}
	buf := SerializeHeader(h)
	if uint32(len(buf)) != h.HeaderSize {
		return nil, Violationf("header size changed from %d to %d", h.HeaderSize, len(buf))
	}
	h.State = HeaderSaved
	return buf, nil
}

// LoadInitialHeader reads the fixed leading fields and reports how large the
// whole header is.
func LoadInitialHeader(buf []byte) (*Header, error) {
	h := &Header{}
	d := newDecoder(buf, 0)
	if err := h.loadInitial(d); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) loadInitial(d *decoder) error {
	magic := d.bytes(len(Magic)+1, "magic")
	if d.err != nil {
		return fmt.Errorf("%w: %w", ErrNotSFD, d.err)
	}
	if string(magic[:len(Magic)]) != Magic || magic[len(Magic)] != 0 {
		return ErrNotSFD
	}
	h.Version = d.u8("version")
	encryption := d.u8("encryption")
	h.HeaderSize = d.u32("header size")
	h.FileSize = d.u32("file size")
	if d.err != nil {
		return d.err
	}
	if h.Version > MaxVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if encryption != 0 {
		return fmt.Errorf("%w: %d", ErrUnsupportedEncryption, encryption)
	}
	h.State = HeaderInitialLoaded
	return nil
}

// DeserializeHeader reads the header of a complete sfd file and derives the
// grid table and multi-buffer area offsets.
func DeserializeHeader(file []byte) (*Header, error) {
	h := &Header{}
	d := newDecoder(file, 0)
	if err := h.loadInitial(d); err != nil {
		return nil, err
	}
	if int64(h.FileSize) != int64(len(file)) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrFileSize, h.FileSize, len(file))
	}

	h.Name = d.cstring("name")
	h.CreationTime = d.u32("creation time")
	h.StringsAreNullTerminated = d.u8("null termination") != 0
	h.MaxStringSize = d.u8("max string size")
	nbrChars := int(d.u8("initial char count"))
	h.InitialChars = slices.Clone(d.bytes(nbrChars, "initial chars"))
	nbrRoutes := int(d.u8("route id count"))
	for range nbrRoutes {
		h.RouteIDs = append(h.RouteIDs, tile.RouteID{
			ID:           d.u32("route id"),
			CreationTime: d.u32("route creation time"),
		})
	}
	h.StrIdxEntrySizeBits = d.u32("string index entry size")
	h.StrIdxStartOffset = d.u32("string index start")
	h.NbrStrings = d.u32("string count")
	h.StrDataStartOffset = d.u32("string data start")
	h.BufferIdxStartOffset = d.u32("buffer index start")
	h.BufferDataStartOffset = d.u32("buffer data start")
	h.ReadDebugParams = d.u8("debug flag") != 0
	nbrCollections := int(d.u16("tile collection count"))
	for range nbrCollections {
		if d.err != nil {
			break
		}
		h.Collections = append(h.Collections, d.tileCollection())
	}
	if d.err != nil {
		return nil, d.err
	}
	if uint32(d.pos) != h.HeaderSize {
		return nil, fmt.Errorf("%w: header ends at %d, header size says %d", ErrNotSFD, d.pos, h.HeaderSize)
	}

	// The last header map offset is the end of the header maps.
	d = newDecoder(file, int(h.BufferIdxStartOffset)+int(h.NbrStrings)*4)
	h.MultiBufferOffsetStart = d.u32("header map end")
	if d.err != nil {
		return nil, d.err
	}
	h.MultiBufferStart = h.MultiBufferOffsetStart + h.GridTableSize()
	if int64(h.MultiBufferStart) > int64(len(file)) {
		return nil, fmt.Errorf("%w: grid table ends at %d past file end %d", ErrShortRead, h.MultiBufferStart, len(file))
	}

	h.State = HeaderFullyLoaded
	return h, nil
}
