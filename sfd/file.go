// Package sfd reads, writes, merges and builds sfd tile cache files.
package sfd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/eak1mov/go-libsfd/sfd/spec"
	"github.com/eak1mov/go-libsfd/tile"
)

// File is a whole sfd file held in memory: the header, the header strings
// with their maps and one block per grid cell in file order.
type File struct {
	Header        *spec.Header
	HeaderStrings []string
	HeaderMaps    []MapBuff
	Maps          []MapBuff

	logger *slog.Logger
}

type fileConfig struct {
	Logger *slog.Logger
}

type FileOption func(*fileConfig)

func WithLogger(logger *slog.Logger) FileOption {
	return func(c *fileConfig) { c.Logger = logger }
}

func newFileConfig(opts []FileOption) fileConfig {
	config := fileConfig{
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// New returns an empty file.
func New(name string, debug bool, opts ...FileOption) *File {
	config := newFileConfig(opts)
	return &File{
		Header: spec.NewHeader(name, 0, debug),
		logger: config.Logger,
	}
}

// cellID names the block of a grid cell after the first data address in it.
func cellID(coll *spec.TileCollection, cell spec.Cell) string {
	layer := -1
	for l, g := range coll.LayerGroups {
		if g == cell.Group && (layer < 0 || l < layer) {
			layer = l
		}
	}
	return tile.Params{Gzip: true, Layer: max(layer, 0), Detail: cell.Detail, Lat: cell.Lat, Lon: cell.Lon}.String()
}

// Load decodes a complete sfd file. Buffers of the returned File alias data.
func Load(data []byte, opts ...FileOption) (*File, error) {
	config := newFileConfig(opts)

	h, err := spec.DeserializeHeader(data)
	if err != nil {
		return nil, err
	}
	strs, maps, err := spec.ReadHeaderStrings(data, h)
	if err != nil {
		return nil, err
	}
	offsets, sizes, err := spec.ReadGridTable(data, h)
	if err != nil {
		return nil, err
	}

	f := &File{
		Header:        h,
		HeaderStrings: strs,
		HeaderMaps:    make([]MapBuff, len(maps)),
		Maps:          make([]MapBuff, 0, len(offsets)),
		logger:        config.Logger,
	}
	for i, m := range maps {
		f.HeaderMaps[i] = NewMapBuff(strs[i], m)
	}
	i := 0
	for ci := range h.Collections {
		coll := &h.Collections[ci]
		for cell := range coll.CellSeq() {
			end := offsets[i] + sizes[i]
			f.Maps = append(f.Maps, NewMapBuff(cellID(coll, cell), data[offsets[i]:end:end]))
			i++
		}
	}

	f.logger.Debug("libsfd: loaded", "name", h.Name, "version", h.Version, "cells", len(f.Maps), "bytes", len(data))
	return f, nil
}

// LoadFile reads and decodes the sfd file at path.
func LoadFile(path string, opts ...FileOption) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data, opts...)
}

func (f *File) headerMapData() [][]byte {
	out := make([][]byte, len(f.HeaderMaps))
	for i, m := range f.HeaderMaps {
		out[i] = m.Data
	}
	return out
}

// Save encodes the file with the given format version. Version 0 stores
// every cell block; later versions store identical blocks once.
// Every grid cell must have content.
func (f *File) Save(version uint8) ([]byte, error) {
	h := f.Header
	if len(f.HeaderStrings) != len(f.HeaderMaps) {
		return nil, spec.Violationf("%d header strings but %d header maps", len(f.HeaderStrings), len(f.HeaderMaps))
	}
	if !slices.IsSorted(f.HeaderStrings) {
		return nil, spec.Violationf("header strings are not sorted")
	}
	if cells := h.Cells(); cells != len(f.Maps) {
		return nil, spec.Violationf("index has %d cells but file has %d blocks", cells, len(f.Maps))
	}
	for i, m := range f.Maps {
		if m.Missing() {
			return nil, spec.Violationf("grid cell %d has no content", i)
		}
	}

	h.Version = version
	mapSizes := make([]int, len(f.HeaderMaps))
	for i, m := range f.HeaderMaps {
		mapSizes[i] = len(m.Data)
	}
	if err := h.ComputeSizes(f.HeaderStrings, mapSizes); err != nil {
		return nil, err
	}
	start := h.MultiBufferOffsetStart
	for ci := range h.Collections {
		start = h.Collections[ci].UpdateOffset(start)
	}

	type stored struct {
		offset uint32
		data   []byte
	}
	shared := make(map[uint32][]stored)
	table := make([]byte, 0, h.GridTableSize())
	var blocks [][]byte
	pos := h.MultiBufferStart
	nbrShared := 0
	for _, m := range f.Maps {
		size := uint32(len(m.Data))
		if version > 0 {
			if i := slices.IndexFunc(shared[m.CRC], func(s stored) bool { return bytes.Equal(s.data, m.Data) }); i >= 0 {
				table = binary.BigEndian.AppendUint32(table, shared[m.CRC][i].offset)
				table = binary.BigEndian.AppendUint32(table, size)
				nbrShared++
				continue
			}
			shared[m.CRC] = append(shared[m.CRC], stored{offset: pos, data: m.Data})
		}
		table = binary.BigEndian.AppendUint32(table, pos)
		if version > 0 {
			table = binary.BigEndian.AppendUint32(table, size)
		}
		blocks = append(blocks, m.Data)
		pos += size
	}
	table = binary.BigEndian.AppendUint32(table, pos)
	if version > 0 {
		table = binary.BigEndian.AppendUint32(table, pos)
	}
	h.FileSize = pos

	buf, err := h.Save()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, h.FileSize)
	out = append(out, buf...)
	out, err = spec.AppendHeaderStrings(out, h, f.HeaderStrings, f.headerMapData())
	if err != nil {
		return nil, err
	}
	out = append(out, table...)
	for _, b := range blocks {
		out = append(out, b...)
	}
	if uint32(len(out)) != h.FileSize {
		return nil, spec.Violationf("wrote %d bytes, header says %d", len(out), h.FileSize)
	}

	f.logger.Debug("libsfd: saved", "name", h.Name, "version", version, "cells", len(f.Maps), "shared", nbrShared, "bytes", len(out))
	return out, nil
}

// WriteFile saves the file to path through a temporary file in the same directory.
func (f *File) WriteFile(path string, version uint8) (err error) {
	data, err := f.Save(version)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	return nil
}

// SetName renames the file.
func (f *File) SetName(name string) {
	f.Header.Name = name
}

// Take moves the contents of f into a new File and leaves f empty.
func (f *File) Take() *File {
	out := *f
	*f = File{
		Header: spec.NewHeader("", 0, false),
		logger: f.logger,
	}
	return &out
}

// Assign replaces the contents of f with those of other and leaves other empty.
func (f *File) Assign(other *File) {
	logger := f.logger
	*f = *other.Take()
	if logger != nil {
		f.logger = logger
	}
}
