package spec

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// AppendHeaderStrings appends the header strings section: the string
// offsets (relative to the first string), the NUL-terminated strings, the
// absolute header map offsets and the header map payloads.
// The header must have had its sizes computed for the same strings and maps.
func AppendHeaderStrings(buf []byte, h *Header, strs []string, maps [][]byte) ([]byte, error) {
	if len(strs) != len(maps) || uint32(len(strs)) != h.NbrStrings {
		return nil, Violationf("header has %d strings, got %d strings and %d maps", h.NbrStrings, len(strs), len(maps))
	}
	if uint32(len(buf)) != h.StrIdxStartOffset {
		return nil, Violationf("string index at %d, header says %d", len(buf), h.StrIdxStartOffset)
	}

	pos := uint32(0)
	for _, s := range strs {
		buf = binary.BigEndian.AppendUint32(buf, pos)
		pos += uint32(len(s)) + 1
	}
	buf = binary.BigEndian.AppendUint32(buf, pos)
	for _, s := range strs {
		buf = appendCString(buf, s)
	}

	pos = h.BufferDataStartOffset
	for _, m := range maps {
		buf = binary.BigEndian.AppendUint32(buf, pos)
		pos += uint32(len(m))
	}
	buf = binary.BigEndian.AppendUint32(buf, pos)
	for _, m := range maps {
		buf = append(buf, m...)
	}

	if uint32(len(buf)) != h.MultiBufferOffsetStart {
		return nil, Violationf("header strings end at %d, header says %d", len(buf), h.MultiBufferOffsetStart)
	}
	return buf, nil
}

// ReadHeaderStrings returns the header strings and their payloads.
// Payloads alias file.
func ReadHeaderStrings(file []byte, h *Header) ([]string, [][]byte, error) {
	n := int(h.NbrStrings)
	d := newDecoder(file, int(h.StrDataStartOffset))
	strs := make([]string, 0, n)
	for range n {
		strs = append(strs, d.cstring("header string"))
	}
	if d.err != nil {
		return nil, nil, d.err
	}

	offsets, err := readOffsets(file, int(h.BufferIdxStartOffset), n+1)
	if err != nil {
		return nil, nil, err
	}
	maps := make([][]byte, 0, n)
	for i := range n {
		start, end := offsets[i], offsets[i+1]
		if start > end || int64(end) > int64(len(file)) {
			return nil, nil, fmt.Errorf("%w: header map %d spans %d..%d", ErrShortRead, i, start, end)
		}
		maps = append(maps, file[start:end:end])
	}
	return strs, maps, nil
}

// FindHeaderString returns the index of key among the sorted header strings.
// The initial character set rejects most absent keys without touching the string table.
func FindHeaderString(file []byte, h *Header, key string) (int, bool, error) {
	if len(key) == 0 {
		return 0, false, nil
	}
	if i := sort.Search(len(h.InitialChars), func(i int) bool { return h.InitialChars[i] >= key[0] }); i == len(h.InitialChars) || h.InitialChars[i] != key[0] {
		return 0, false, nil
	}

	n := int(h.NbrStrings)
	offsets, err := readOffsets(file, int(h.StrIdxStartOffset), n+1)
	if err != nil {
		return 0, false, err
	}
	str := func(i int) string {
		start := int(h.StrDataStartOffset) + int(offsets[i])
		end := int(h.StrDataStartOffset) + int(offsets[i+1]) - 1
		if start > end || end > len(file) {
			return ""
		}
		return string(file[start:end])
	}
	i := sort.Search(n, func(i int) bool { return str(i) >= key })
	return i, i < n && str(i) == key, nil
}

// HeaderMap returns the payload of header string i.
func HeaderMap(file []byte, h *Header, i int) ([]byte, error) {
	offsets, err := readOffsets(file, int(h.BufferIdxStartOffset)+i*4, 2)
	if err != nil {
		return nil, err
	}
	start, end := offsets[0], offsets[1]
	if start > end || int64(end) > int64(len(file)) {
		return nil, fmt.Errorf("%w: header map %d spans %d..%d", ErrShortRead, i, start, end)
	}
	return file[start:end:end], nil
}

func readOffsets(file []byte, pos, n int) ([]uint32, error) {
	d := newDecoder(file, pos)
	out := make([]uint32, n)
	for i := range out {
		out[i] = d.u32("offset")
	}
	return out, d.err
}

// GridEntry returns the location of the multi-buffer block of grid cell i.
func GridEntry(file []byte, h *Header, i int) (offset, size uint32, err error) {
	d := newDecoder(file, int(h.MultiBufferOffsetStart)+i*int(h.GridEntrySize()))
	offset = d.u32("grid offset")
	if h.Version == 0 {
		next := d.u32("grid offset")
		if d.err == nil && next < offset {
			return 0, 0, fmt.Errorf("%w: grid cell %d offsets decrease", ErrNotSFD, i)
		}
		size = next - offset
	} else {
		size = d.u32("grid size")
	}
	if d.err != nil {
		return 0, 0, d.err
	}
	if int64(offset)+int64(size) > int64(len(file)) {
		return 0, 0, fmt.Errorf("%w: grid cell %d spans %d+%d", ErrShortRead, i, offset, size)
	}
	return offset, size, nil
}

// ReadGridTable returns the block offsets and sizes of all grid cells.
func ReadGridTable(file []byte, h *Header) (offsets, sizes []uint32, err error) {
	cells := h.Cells()
	offsets = make([]uint32, cells)
	sizes = make([]uint32, cells)
	for i := range cells {
		offsets[i], sizes[i], err = GridEntry(file, h, i)
		if err != nil {
			return nil, nil, err
		}
	}
	return offsets, sizes, nil
}
