package sfd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/eak1mov/go-libsfd/sfd/spec"
	"github.com/eak1mov/go-libsfd/tile"
	"golang.org/x/sys/unix"
)

// Reader gives random access to the payloads of an sfd file.
type Reader struct {
	data   []byte
	header *spec.Header
	base   tile.Params
	closer func() error
}

type readerConfig struct {
	ServerPrefix uint32
	Gzip         bool
	Lang         tile.Language
}

type ReaderOption func(*readerConfig)

// WithServerPrefix sets the server prefix of visited addresses.
func WithServerPrefix(prefix uint32) ReaderOption {
	return func(c *readerConfig) { c.ServerPrefix = prefix }
}

// WithGzip sets the gzip flag of visited addresses.
func WithGzip(gzip bool) ReaderOption {
	return func(c *readerConfig) { c.Gzip = gzip }
}

// WithLanguage sets the language of visited strings addresses.
func WithLanguage(lang tile.Language) ReaderOption {
	return func(c *readerConfig) { c.Lang = lang }
}

// NewReader returns a Reader over a complete sfd file held in data.
func NewReader(data []byte, opts ...ReaderOption) (*Reader, error) {
	config := readerConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	h, err := spec.DeserializeHeader(data)
	if err != nil {
		return nil, err
	}
	return &Reader{
		data:   data,
		header: h,
		base:   tile.Params{ServerPrefix: config.ServerPrefix, Gzip: config.Gzip, Lang: config.Lang},
		closer: func() error { return nil },
	}, nil
}

// OpenFile maps the sfd file at path into memory.
//
// The returned Reader must be closed after use.
func OpenFile(path string, opts ...ReaderOption) (*Reader, error) {
	data, err := mmapFile(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(data, opts...)
	if err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = func() error { return unix.Munmap(data) }
	return r, nil
}

func mmapFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < int64(spec.InitialHeaderLength) {
		return nil, fmt.Errorf("%s: %w: %d bytes", path, spec.ErrNotSFD, info.Size())
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	if err := unix.Madvise(data, syscall.MADV_RANDOM); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("madvise: %w", err)
	}
	return data, nil
}

func (r *Reader) Close() error {
	closer := r.closer
	r.closer = func() error { return nil }
	r.data = nil
	return closer()
}

func (r *Reader) Header() *spec.Header {
	return r.header
}

// locate returns the collection holding p and the global index of p's cell.
func (r *Reader) locate(p tile.Params) (*spec.TileCollection, int, bool) {
	base := 0
	for ci := range r.header.Collections {
		coll := &r.header.Collections[ci]
		if idx, ok := coll.CellIndex(p); ok {
			return coll, base + idx, true
		}
		base += coll.Cells()
	}
	return nil, 0, false
}

// ReadTile returns the payload addressed by p, or nil if the file has none.
func (r *Reader) ReadTile(p tile.Params) ([]byte, error) {
	coll, idx, ok := r.locate(p)
	if !ok {
		return nil, nil
	}
	offset, size, err := spec.GridEntry(r.data, r.header, idx)
	if err != nil {
		return nil, err
	}
	mr, err := spec.NewMultiBufferReader(r.data[offset:offset+size], coll, p, r.header.ReadDebugParams)
	if err != nil {
		return nil, err
	}
	// Data addresses carry no language; strings met on the way to a data
	// payload were written in the reader's language.
	lang := r.base.Lang
	if p.Kind == tile.KindStrings {
		lang = p.Lang
	}
	for mr.HasNext() {
		pb, err := mr.ReadNext(lang)
		if err != nil {
			return nil, err
		}
		if pb.Params.Layer == p.Layer && pb.Params.Importance == p.Importance && pb.Params.Kind == p.Kind {
			return pb.Data, nil
		}
	}
	return nil, nil
}

// ReadHeaderBuffer returns the header map stored under key, or nil.
func (r *Reader) ReadHeaderBuffer(key string) ([]byte, error) {
	i, found, err := spec.FindHeaderString(r.data, r.header, key)
	if err != nil || !found {
		return nil, err
	}
	return spec.HeaderMap(r.data, r.header, i)
}

// ReadBuffer implements tile.Reader. Grid keys are looked up in the grid,
// everything else among the header strings.
func (r *Reader) ReadBuffer(key string) ([]byte, error) {
	if tile.IsMapKey(key) {
		if p, err := tile.ParseParams(key); err == nil {
			return r.ReadTile(p)
		}
	}
	return r.ReadHeaderBuffer(key)
}

// VisitLocations visits the block location of every grid cell in file order.
func (r *Reader) VisitLocations(visitor func(spec.Cell, tile.Location) error) error {
	i := 0
	for ci := range r.header.Collections {
		for cell := range r.header.Collections[ci].CellSeq() {
			offset, size, err := spec.GridEntry(r.data, r.header, i)
			if err != nil {
				return err
			}
			if err := visitor(cell, tile.Location{Offset: uint64(offset), Length: uint64(size)}); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}

// VisitTiles visits every stored payload in canonical order. Addresses take
// server prefix, gzip flag and language from the reader options.
func (r *Reader) VisitTiles(visitor func(tile.Params, []byte) error) error {
	i := 0
	for ci := range r.header.Collections {
		coll := &r.header.Collections[ci]
		for cell := range coll.CellSeq() {
			offset, size, err := spec.GridEntry(r.data, r.header, i)
			if err != nil {
				return err
			}
			i++
			p := r.base
			p.Detail, p.Lat, p.Lon = cell.Detail, cell.Lat, cell.Lon
			mr, err := spec.NewMultiBufferReader(r.data[offset:offset+size], coll, p, r.header.ReadDebugParams)
			if err != nil {
				return err
			}
			for mr.HasNext() {
				pb, err := mr.ReadNext(r.base.Lang)
				if err != nil {
					return err
				}
				if pb.Data == nil {
					continue
				}
				if err := visitor(pb.Params, pb.Data); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// VisitBuffers implements tile.Visitor: header maps first, then grid payloads.
func (r *Reader) VisitBuffers(visitor func(key string, data []byte) error) error {
	strs, maps, err := spec.ReadHeaderStrings(r.data, r.header)
	if err != nil {
		return err
	}
	for i, s := range strs {
		if err := visitor(s, maps[i]); err != nil {
			return err
		}
	}
	return r.VisitTiles(func(p tile.Params, data []byte) error {
		return visitor(p.String(), data)
	})
}
