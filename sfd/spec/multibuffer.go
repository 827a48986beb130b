package spec

import (
	"encoding/binary"
	"math"

	"github.com/eak1mov/go-libsfd/tile"
)

// MaxBlockImportance is the largest importance a multi-buffer block can flag.
const MaxBlockImportance = 15

// ParamBuffer is a payload together with its decoded address.
// A nil Data means the payload is missing.
type ParamBuffer struct {
	Params tile.Params
	Data   []byte
}

// MultiBufferWriter packs the (data, strings) pairs of one grid cell into a block:
//
//	u8 nbrLayers
//	per layer: u8 layer, u16 importance mask,
//	  per pair: u32 len, data [, key NUL], u32 len, strings [, key NUL]
//
// Pairs must arrive sorted by layer then importance, all for the same cell.
type MultiBufferWriter struct {
	debug bool

	body      []byte
	nbrLayers int
	layer     int
	maskPos   int

	hasPrev bool
	prev    tile.Params
}

func NewMultiBufferWriter(debug bool) *MultiBufferWriter {
	w := &MultiBufferWriter{debug: debug}
	w.Reset()
	return w
}

func (w *MultiBufferWriter) Reset() {
	w.body = w.body[:0]
	w.nbrLayers = 0
	w.layer = -1
	w.maskPos = 0
	w.hasPrev = false
}

// Empty reports whether no pair has been offered since the last reset.
func (w *MultiBufferWriter) Empty() bool {
	return !w.hasPrev
}

func sameCell(a, b tile.Params) bool {
	return a.Lat == b.Lat && a.Lon == b.Lon && a.Detail == b.Detail
}

// WritePair appends one (data, strings) pair. A pair with a missing half is
// checked for order and otherwise skipped.
func (w *MultiBufferWriter) WritePair(data, strings ParamBuffer) error {
	dp, sp := data.Params, strings.Params
	if dp.Kind != tile.KindData || sp.Kind != tile.KindStrings {
		return Violationf("pair %v/%v is not (data, strings)", dp, sp)
	}
	if dp.Layer != sp.Layer || dp.Importance != sp.Importance || !sameCell(dp, sp) {
		return Violationf("pair halves %v and %v address different tiles", dp, sp)
	}
	if w.hasPrev {
		if !sameCell(w.prev, dp) {
			return Violationf("pair %v is not in the block's cell", dp)
		}
		if dp.Layer < w.prev.Layer || (dp.Layer == w.prev.Layer && dp.Importance <= w.prev.Importance) {
			return Violationf("pair layer %d importance %d out of order", dp.Layer, dp.Importance)
		}
	}
	if dp.Importance < 0 || dp.Importance > MaxBlockImportance {
		return Violationf("importance %d does not fit the block mask", dp.Importance)
	}
	if dp.Layer < 0 || dp.Layer > math.MaxUint8 {
		return Violationf("layer %d does not fit the block layer id", dp.Layer)
	}
	w.hasPrev = true
	w.prev = dp

	if data.Data == nil || strings.Data == nil {
		return nil
	}

	if dp.Layer != w.layer {
		w.layer = dp.Layer
		w.nbrLayers++
		w.body = append(w.body, byte(dp.Layer))
		w.maskPos = len(w.body)
		w.body = append(w.body, 0, 0)
	}
	mask := binary.BigEndian.Uint16(w.body[w.maskPos:])
	binary.BigEndian.PutUint16(w.body[w.maskPos:], mask|1<<uint(dp.Importance))

	w.appendBuffer(data)
	w.appendBuffer(strings)
	return nil
}

func (w *MultiBufferWriter) appendBuffer(b ParamBuffer) {
	w.body = binary.BigEndian.AppendUint32(w.body, uint32(len(b.Data)))
	w.body = append(w.body, b.Data...)
	if w.debug {
		w.body = appendCString(w.body, b.Params.String())
	}
}

// Bytes returns the finished block and resets the writer.
func (w *MultiBufferWriter) Bytes() []byte {
	out := make([]byte, 0, len(w.body)+1)
	out = append(out, byte(w.nbrLayers))
	out = append(out, w.body...)
	w.Reset()
	return out
}

// WriteMultiBuffer encodes a flat list of (data, strings) pairs of one cell.
func WriteMultiBuffer(pairs []ParamBuffer, debug bool) ([]byte, error) {
	if len(pairs)%2 != 0 {
		return nil, Violationf("odd number of buffers: %d", len(pairs))
	}
	w := NewMultiBufferWriter(debug)
	for i := 0; i < len(pairs); i += 2 {
		if err := w.WritePair(pairs[i], pairs[i+1]); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// MultiBufferReader replays a block written by MultiBufferWriter. For every
// layer present it yields each importance of the layer's range in the index,
// data then strings, with nil Data where the block has no payload.
type MultiBufferReader struct {
	dec   *decoder
	coll  *TileCollection
	cell  tile.Params
	debug bool

	layersLeft int
	inLayer    bool
	layer      int
	mask       uint16
	rng        LayerImportance
	importance int
	kind       tile.Kind

	cur ParamBuffer
}

// NewMultiBufferReader starts reading block. cell supplies the server
// prefix, gzip flag, detail and position shared by all payloads in the block.
func NewMultiBufferReader(block []byte, coll *TileCollection, cell tile.Params, debug bool) (*MultiBufferReader, error) {
	r := &MultiBufferReader{
		dec:   newDecoder(block, 0),
		coll:  coll,
		cell:  cell,
		debug: debug,
	}
	r.layersLeft = int(r.dec.u8("layer count"))
	if r.dec.err != nil {
		return nil, r.dec.err
	}
	return r, nil
}

func (r *MultiBufferReader) HasNext() bool {
	return r.inLayer || r.layersLeft > 0
}

func (r *MultiBufferReader) openLayer() error {
	r.layer = int(r.dec.u8("layer id"))
	r.mask = r.dec.u16("importance mask")
	if r.dec.err != nil {
		return r.dec.err
	}
	rng, err := r.coll.ImportanceRange(r.layer, r.cell.Detail, r.cell.Lat, r.cell.Lon)
	if err != nil {
		return err
	}
	for i := range MaxBlockImportance + 1 {
		if r.mask&(1<<uint(i)) != 0 && (i < rng.First || i > rng.Last) {
			return Violationf("layer %d flags importance %d outside %d..%d", r.layer, i, rng.First, rng.Last)
		}
	}
	r.layersLeft--
	r.inLayer = true
	r.rng = rng
	r.importance = rng.First
	r.kind = tile.KindData
	return nil
}

// ReadNext returns the next payload. Strings addresses get language lang.
// The returned Data aliases the block.
func (r *MultiBufferReader) ReadNext(lang tile.Language) (ParamBuffer, error) {
	if !r.inLayer {
		if r.layersLeft == 0 {
			return ParamBuffer{}, Violationf("read past end of block")
		}
		if err := r.openLayer(); err != nil {
			return ParamBuffer{}, err
		}
	}

	p := r.cell
	p.Layer = r.layer
	p.Importance = r.importance
	p.Kind = r.kind
	p.Lang = lang

	var data []byte
	if r.importance <= MaxBlockImportance && r.mask&(1<<uint(r.importance)) != 0 {
		n := r.dec.u32("buffer length")
		data = r.dec.bytes(int(n), "buffer")
		if r.debug {
			key := r.dec.cstring("debug key")
			if r.dec.err == nil && key != p.String() {
				return ParamBuffer{}, Violationf("debug key %q does not match %q", key, p.String())
			}
		}
		if r.dec.err != nil {
			return ParamBuffer{}, r.dec.err
		}
		if data == nil {
			data = []byte{}
		}
	}

	if r.kind == tile.KindData {
		r.kind = tile.KindStrings
	} else {
		r.kind = tile.KindData
		r.importance++
		if r.importance > r.rng.Last {
			r.inLayer = false
		}
	}

	r.cur = ParamBuffer{Params: p, Data: data}
	return r.cur, nil
}

// Current returns the payload last returned by ReadNext.
func (r *MultiBufferReader) Current() ParamBuffer {
	return r.cur
}
