package spec

import (
	"iter"

	"github.com/eak1mov/go-libsfd/tile"
)

// ParamIterator walks the tile addresses of a collection in canonical order:
// tile group, detail, lat, lon, layer, importance, kind.
//
// With firstImportanceOnly set, each (lat, lon, layer) step yields only the
// layer's first importance. A ParamIterator is a single cursor and must not
// be shared between goroutines.
type ParamIterator struct {
	coll                *TileCollection
	base                tile.Params
	firstImportanceOnly bool

	group      int
	notice     int
	lat        int32
	lon        int32
	layer      int
	importance int
	kind       tile.Kind
	end        bool

	key string
}

// NewParamIterator returns an iterator positioned at the start of coll.
// Server prefix, gzip flag and language of the yielded addresses are taken from base.
func NewParamIterator(coll *TileCollection, base tile.Params, firstImportanceOnly bool) *ParamIterator {
	it := &ParamIterator{
		coll:                coll,
		base:                base,
		firstImportanceOnly: firstImportanceOnly,
	}
	it.GoToStart()
	return it
}

// CopyWith returns a copy of it at the same position with firstImportanceOnly overridden.
func (it *ParamIterator) CopyWith(firstImportanceOnly bool) *ParamIterator {
	c := *it
	c.firstImportanceOnly = firstImportanceOnly
	return &c
}

func (it *ParamIterator) Clone() *ParamIterator {
	return it.CopyWith(it.firstImportanceOnly)
}

func (it *ParamIterator) GoToStart() {
	it.group, it.notice = 0, 0
	it.end = false
	it.seek()
}

func (it *ParamIterator) GoToEnd() {
	it.end = true
	it.key = ""
}

func (it *ParamIterator) AtEnd() bool {
	return it.end
}

// seek moves to the first cell of the first non-empty notice at or after
// (group, notice).
func (it *ParamIterator) seek() {
	it.key = ""
	for ; it.group < len(it.coll.Groups); it.group++ {
		notices := it.coll.Groups[it.group].Notices
		for ; it.notice < len(notices); it.notice++ {
			n := &notices[it.notice]
			if n.Empty() {
				continue
			}
			it.lat, it.lon = n.StartLat, n.StartLon
			it.layer = 0
			it.importance = n.Layers[0].First
			it.kind = tile.KindData
			return
		}
		it.notice = 0
	}
	it.end = true
}

func (it *ParamIterator) current() *TilesNotice {
	return &it.coll.Groups[it.group].Notices[it.notice]
}

// Next advances to the next address.
func (it *ParamIterator) Next() {
	if it.end {
		return
	}
	it.key = ""
	if it.kind == tile.KindData {
		it.kind = tile.KindStrings
		return
	}
	it.kind = tile.KindData

	n := it.current()
	if !it.firstImportanceOnly && it.importance < n.Layers[it.layer].Last {
		it.importance++
		return
	}
	if it.layer++; it.layer < len(n.Layers) {
		it.importance = n.Layers[it.layer].First
		return
	}
	it.layer = 0
	it.importance = n.Layers[0].First
	if it.lon++; it.lon <= n.EndLon {
		return
	}
	it.lon = n.StartLon
	if it.lat++; it.lat <= n.EndLat {
		return
	}
	it.notice++
	it.seek()
}

// Params returns the address at the current position. It must not be called at end.
func (it *ParamIterator) Params() tile.Params {
	p := it.base
	p.Layer = it.current().Layers[it.layer].Layer
	p.Importance = it.importance
	p.Kind = it.kind
	p.Lat = it.lat
	p.Lon = it.lon
	p.Detail = it.coll.Groups[it.group].StartDetail + it.notice
	return p
}

// Key returns the string form of Params, cached until the iterator moves.
func (it *ParamIterator) Key() string {
	if it.key == "" {
		it.key = it.Params().String()
	}
	return it.key
}

// Equal reports whether both iterators point at the same position of the same collection.
func (it *ParamIterator) Equal(other *ParamIterator) bool {
	if it.coll != other.coll {
		return false
	}
	if it.end || other.end {
		return it.end == other.end
	}
	return it.group == other.group &&
		it.notice == other.notice &&
		it.lat == other.lat &&
		it.lon == other.lon &&
		it.layer == other.layer &&
		it.importance == other.importance &&
		it.kind == other.kind
}

// All returns the remaining addresses without moving it.
func (it *ParamIterator) All() iter.Seq[tile.Params] {
	return func(yield func(tile.Params) bool) {
		for c := it.Clone(); !c.AtEnd(); c.Next() {
			if !yield(c.Params()) {
				return
			}
		}
	}
}
