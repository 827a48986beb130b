// Package index provides utilities for custom index formats.
package index

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"io"
	"math/bits"
	"slices"

	"github.com/eak1mov/go-libsfd/sfd/spec"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/hilbert"
)

// Item represents a single record in the index, mapping a grid cell
// (Group, Detail, Lat, Lon) to the location (Offset, Length) of its block.
// It is designed to be easily portable to other languages and utilities.
type Item struct {
	Group  int32
	Detail int32
	Lat    int32
	Lon    int32
	Length uint32
	Offset uint64
}

func NewItem(cell spec.Cell, loc tile.Location) Item {
	return Item{
		Group:  int32(cell.Group),
		Detail: int32(cell.Detail),
		Lat:    cell.Lat,
		Lon:    cell.Lon,
		Length: uint32(loc.Length),
		Offset: loc.Offset,
	}
}

func (i Item) Cell() spec.Cell {
	return spec.Cell{Group: int(i.Group), Detail: int(i.Detail), Lat: i.Lat, Lon: i.Lon}
}

func (i Item) Location() tile.Location {
	return tile.Location{Offset: i.Offset, Length: uint64(i.Length)}
}

func WriteAll(items []Item, writer io.Writer) error {
	return binary.Write(writer, binary.LittleEndian, items)
}

func ReadAll(indexData []byte) ([]Item, error) {
	count := len(indexData) / binary.Size(Item{})
	items := make([]Item, count)

	err := binary.Read(bytes.NewReader(indexData), binary.LittleEndian, items)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// SortHilbert orders items by tile group and detail level, and within one
// level along the Hilbert curve over the bounding square of that level's cells.
func SortHilbert(items []Item) {
	type level struct{ group, detail int32 }
	type bounds struct{ minLat, minLon, maxLat, maxLon int32 }
	levels := map[level]bounds{}
	for _, it := range items {
		b, ok := levels[level{it.Group, it.Detail}]
		if !ok {
			b = bounds{it.Lat, it.Lon, it.Lat, it.Lon}
		}
		b.minLat, b.minLon = min(b.minLat, it.Lat), min(b.minLon, it.Lon)
		b.maxLat, b.maxLon = max(b.maxLat, it.Lat), max(b.maxLon, it.Lon)
		levels[level{it.Group, it.Detail}] = b
	}

	curves := map[level]*hilbert.Hilbert{}
	for l, b := range levels {
		span := uint32(max(b.maxLat-b.minLat, b.maxLon-b.minLon)) + 1
		h, err := hilbert.NewHilbert(1 << bits.Len32(span-1))
		if err != nil {
			panic(err)
		}
		curves[l] = h
	}

	type keyed struct {
		code int
		item Item
	}
	sorted := make([]keyed, len(items))
	for i, it := range items {
		l := level{it.Group, it.Detail}
		b := levels[l]
		code, _ := curves[l].MapInverse(int(it.Lon-b.minLon), int(it.Lat-b.minLat))
		sorted[i] = keyed{code, it}
	}
	slices.SortStableFunc(sorted, func(a, b keyed) int {
		return cmp.Or(
			cmp.Compare(a.item.Group, b.item.Group),
			cmp.Compare(a.item.Detail, b.item.Detail),
			cmp.Compare(a.code, b.code))
	})
	for i := range sorted {
		items[i] = sorted[i].item
	}
}
