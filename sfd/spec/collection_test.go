package spec_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/eak1mov/go-libsfd/sfd/spec"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/go-cmp/cmp"
)

// grid returns a collection with one layer covering lat/lon ranges at one detail.
func grid(layer, detail int, lat0, lat1, lon0, lon1 int32, imp0, imp1 int) *spec.TileCollection {
	c := &spec.TileCollection{}
	for lat := lat0; lat <= lat1; lat++ {
		for lon := lon0; lon <= lon1; lon++ {
			for imp := imp0; imp <= imp1; imp++ {
				c.AddParams(tile.Params{Layer: layer, Detail: detail, Lat: lat, Lon: lon, Importance: imp}, nil)
			}
		}
	}
	c.MakeCompactDetail()
	c.UpdateOffset(0)
	return c
}

func TestCellOffsetRowMajor(t *testing.T) {
	c := grid(0, 2, 10, 11, 5, 6, 0, 0)

	var offsets []uint32
	for _, pos := range [][2]int32{{10, 5}, {10, 6}, {11, 5}, {11, 6}} {
		off, ok := c.CellOffset(tile.Params{Detail: 2, Lat: pos[0], Lon: pos[1]})
		if !ok {
			t.Fatalf("CellOffset(%v) not found", pos)
		}
		offsets = append(offsets, off)
	}
	if want := []uint32{0, 4, 8, 12}; !cmp.Equal(offsets, want) {
		t.Errorf("offsets = %v, want %v", offsets, want)
	}
}

func TestCellOffsetMisses(t *testing.T) {
	c := grid(0, 2, 10, 11, 5, 6, 1, 2)
	for _, p := range []tile.Params{
		{Detail: 2, Lat: 9, Lon: 5, Importance: 1},
		{Detail: 2, Lat: 10, Lon: 7, Importance: 1},
		{Detail: 3, Lat: 10, Lon: 5, Importance: 1},
		{Detail: 1, Lat: 10, Lon: 5, Importance: 1},
		{Detail: 2, Lat: 10, Lon: 5, Importance: 0},
		{Detail: 2, Lat: 10, Lon: 5, Importance: 3},
		{Detail: 2, Lat: 10, Lon: 5, Importance: 1, Layer: 2},
	} {
		if off, ok := c.CellOffset(p); ok {
			t.Errorf("CellOffset(%+v) = %d, want miss", p, off)
		}
	}
}

func TestCellOffsetIgnoresKindAndImportance(t *testing.T) {
	c := grid(3, 1, 0, 3, 0, 3, 0, 4)
	base := tile.Params{Layer: 3, Detail: 1, Lat: 2, Lon: 1}
	want, ok := c.CellOffset(base)
	if !ok {
		t.Fatalf("CellOffset(%+v) not found", base)
	}
	for imp := 0; imp <= 4; imp++ {
		for _, kind := range []tile.Kind{tile.KindData, tile.KindStrings} {
			p := base.WithImportance(imp).WithKind(kind)
			if got, _ := c.CellOffset(p); got != want {
				t.Errorf("CellOffset(%+v) = %d, want %d", p, got, want)
			}
		}
	}
}

func TestUpdateOffsetMonotonic(t *testing.T) {
	c := &spec.TileCollection{}
	for detail := 1; detail <= 4; detail++ {
		for lat := int32(0); lat < int32(detail); lat++ {
			for lon := int32(0); lon < int32(detail+1); lon++ {
				c.AddParams(tile.Params{Layer: 0, Detail: detail, Lat: lat, Lon: lon}, nil)
				c.AddParams(tile.Params{Layer: 2, Detail: detail + 1, Lat: lat, Lon: lon}, nil)
			}
		}
	}
	c.MakeCompactDetail()

	const start = 1000
	next := c.UpdateOffset(start)
	if want := uint32(start + c.Cells()*spec.EntrySize); next != want {
		t.Errorf("UpdateOffset = %d, want %d", next, want)
	}

	prev := uint32(0)
	for cell := range c.CellSeq() {
		layer := tile.LayerMap
		if c.LayerGroups[tile.LayerMap] != cell.Group {
			layer = tile.LayerPOI
		}
		off, ok := c.CellOffset(tile.Params{Layer: layer, Detail: cell.Detail, Lat: cell.Lat, Lon: cell.Lon})
		if !ok {
			t.Fatalf("CellOffset(%+v) not found", cell)
		}
		if off < prev || off < start || off >= next {
			t.Errorf("offset %d of %+v out of order (prev %d)", off, cell, prev)
		}
		prev = off
	}
}

func TestCellIndexMatchesCellSeq(t *testing.T) {
	c := &spec.TileCollection{}
	for _, p := range []tile.Params{
		{Layer: 0, Detail: 1, Lat: 0, Lon: 0},
		{Layer: 0, Detail: 1, Lat: 1, Lon: 2},
		{Layer: 0, Detail: 3, Lat: 5, Lon: 5},
		{Layer: 1, Detail: 2, Lat: -1, Lon: -1},
		{Layer: 1, Detail: 2, Lat: 0, Lon: 1},
	} {
		c.AddParams(p, nil)
	}
	c.MakeCompactDetail()

	i := 0
	for cell := range c.CellSeq() {
		layer := 0
		if cell.Group == c.LayerGroups[1] {
			layer = 1
		}
		got, ok := c.CellIndex(tile.Params{Layer: layer, Detail: cell.Detail, Lat: cell.Lat, Lon: cell.Lon})
		if !ok || got != i {
			t.Errorf("CellIndex(%+v) = %d, %v, want %d", cell, got, ok, i)
		}
		i++
	}
	if i != c.Cells() {
		t.Errorf("CellSeq yielded %d cells, Cells() = %d", i, c.Cells())
	}
}

func TestMakeCompactDetail(t *testing.T) {
	c := &spec.TileCollection{}
	c.AddParams(tile.Params{Layer: 0, Detail: 3, Lat: 1, Lon: 1}, nil)
	c.AddParams(tile.Params{Layer: 0, Detail: 5, Lat: 1, Lon: 1}, nil)

	g := c.Groups[0]
	if g.StartDetail != 0 || len(g.Notices) != 6 {
		t.Fatalf("before compaction: start %d, %d notices", g.StartDetail, len(g.Notices))
	}

	c.MakeCompactDetail()
	g = c.Groups[0]
	if g.StartDetail != 3 || len(g.Notices) != 3 {
		t.Errorf("after compaction: start %d, %d notices, want 3, 3", g.StartDetail, len(g.Notices))
	}
	if !g.Notices[1].Empty() {
		t.Errorf("detail 4 should stay empty")
	}
	if n := c.Notice(0, 5); n == nil || n.Cells() != 1 {
		t.Errorf("Notice(0, 5) = %+v", n)
	}
}

func TestSharedTileGroup(t *testing.T) {
	same := func(a, b int) bool { return true }
	c := &spec.TileCollection{}
	c.AddParams(tile.Params{Layer: tile.LayerMap, Detail: 1, Lat: 0, Lon: 0, Importance: 0}, same)
	c.AddParams(tile.Params{Layer: tile.LayerPOI, Detail: 1, Lat: 0, Lon: 1, Importance: 2}, same)

	if len(c.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(c.Groups))
	}
	want := []spec.LayerImportance{
		{Layer: tile.LayerMap, First: 0, Last: 0},
		{Layer: tile.LayerPOI, First: 2, Last: 2},
	}
	if diff := cmp.Diff(want, c.Groups[0].Notices[1].Layers); diff != "" {
		t.Errorf("layers mismatch (-want +got):\n%s", diff)
	}
}

func TestImportanceRange(t *testing.T) {
	c := grid(0, 2, 0, 1, 0, 1, 2, 5)

	got, err := c.ImportanceRange(0, 2, 1, 1)
	if err != nil {
		t.Fatalf("ImportanceRange failed: %v", err)
	}
	if want := (spec.LayerImportance{Layer: 0, First: 2, Last: 5}); got != want {
		t.Errorf("ImportanceRange = %+v, want %+v", got, want)
	}

	for _, args := range [][4]int{{1, 2, 0, 0}, {0, 3, 0, 0}, {0, 2, 5, 0}} {
		_, err := c.ImportanceRange(args[0], args[1], int32(args[2]), int32(args[3]))
		if !errors.Is(err, spec.ErrContractViolation) {
			t.Errorf("ImportanceRange(%v) error = %v, want contract violation", args, err)
		}
	}
}

func TestUpdateBBox(t *testing.T) {
	c := grid(0, 1, 10, 11, 5, 6, 0, 0)
	n := c.Notice(0, 1)
	n.UpdateBBox(12, 13, 5, 6)
	if n.StartLat != 10 || n.EndLat != 13 || n.StartLon != 5 || n.EndLon != 6 {
		t.Errorf("bbox = %d..%d x %d..%d", n.StartLat, n.EndLat, n.StartLon, n.EndLon)
	}
	if n.Cells() != 8 {
		t.Errorf("Cells() = %d, want 8", n.Cells())
	}
}

func TestCellSeqOrder(t *testing.T) {
	c := grid(0, 1, 0, 1, 0, 2, 0, 0)
	var got [][2]int32
	for cell := range c.CellSeq() {
		got = append(got, [2]int32{cell.Lat, cell.Lon})
	}
	want := [][2]int32{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}
	if !slices.Equal(got, want) {
		t.Errorf("CellSeq = %v, want %v", got, want)
	}
}
