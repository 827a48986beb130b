package spec_test

import (
	"testing"

	"github.com/eak1mov/go-libsfd/sfd/spec"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/go-cmp/cmp"
)

func TestParamIteratorLength(t *testing.T) {
	c := &spec.TileCollection{}
	triples := 0
	for _, layer := range []int{tile.LayerMap, tile.LayerPOI} {
		for detail := 2; detail <= 3; detail++ {
			for lat := int32(0); lat <= 1; lat++ {
				for lon := int32(0); lon <= 2; lon++ {
					for imp := 0; imp <= layer; imp++ {
						c.AddParams(tile.Params{Layer: layer, Detail: detail, Lat: lat, Lon: lon, Importance: imp}, nil)
						triples++
					}
				}
			}
		}
	}
	c.MakeCompactDetail()

	it := spec.NewParamIterator(c, tile.Params{}, false)
	n := 0
	for ; !it.AtEnd(); it.Next() {
		n++
	}
	if n != 2*triples {
		t.Errorf("iterator yielded %d addresses, want %d", n, 2*triples)
	}

	it.Next()
	if !it.AtEnd() {
		t.Errorf("Next past end left the iterator")
	}
}

func TestParamIteratorOrder(t *testing.T) {
	c := &spec.TileCollection{}
	same := func(a, b int) bool { return true }
	for lat := int32(0); lat <= 1; lat++ {
		c.AddParams(tile.Params{Layer: 0, Detail: 1, Lat: lat, Lon: 0, Importance: 0}, same)
		c.AddParams(tile.Params{Layer: 0, Detail: 1, Lat: lat, Lon: 0, Importance: 1}, same)
		c.AddParams(tile.Params{Layer: 2, Detail: 1, Lat: lat, Lon: 0, Importance: 3}, same)
	}
	c.MakeCompactDetail()

	base := tile.Params{ServerPrefix: 9, Gzip: true, Lang: tile.LangGerman}
	p := func(lat int32, layer, imp int, kind tile.Kind) tile.Params {
		q := base
		q.Detail, q.Lat, q.Layer, q.Importance, q.Kind = 1, lat, layer, imp, kind
		return q
	}

	var got []tile.Params
	for q := range spec.NewParamIterator(c, base, false).All() {
		got = append(got, q)
	}
	var want []tile.Params
	for lat := int32(0); lat <= 1; lat++ {
		want = append(want,
			p(lat, 0, 0, tile.KindData), p(lat, 0, 0, tile.KindStrings),
			p(lat, 0, 1, tile.KindData), p(lat, 0, 1, tile.KindStrings),
			p(lat, 2, 3, tile.KindData), p(lat, 2, 3, tile.KindStrings),
		)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	got = got[:0]
	for q := range spec.NewParamIterator(c, base, true).All() {
		got = append(got, q)
	}
	want = want[:0]
	for lat := int32(0); lat <= 1; lat++ {
		want = append(want,
			p(lat, 0, 0, tile.KindData), p(lat, 0, 0, tile.KindStrings),
			p(lat, 2, 3, tile.KindData), p(lat, 2, 3, tile.KindStrings),
		)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("first importance order mismatch (-want +got):\n%s", diff)
	}
}

func TestParamIteratorEqualAndCopy(t *testing.T) {
	c := grid(0, 1, 0, 1, 0, 1, 0, 2)

	a := spec.NewParamIterator(c, tile.Params{}, false)
	b := a.CopyWith(true)
	if !a.Equal(b) {
		t.Errorf("copy is not equal to its source")
	}

	a.Next()
	if a.Equal(b) {
		t.Errorf("iterators equal after moving one")
	}
	b.Next()
	if !a.Equal(b) {
		t.Errorf("iterators differ after the same step")
	}

	// Past the strings half of importance 0, the coarse copy skips to the next cell.
	a.Next()
	b.Next()
	if a.Equal(b) {
		t.Errorf("coarse copy visited the second importance")
	}
	if got := b.Params(); got.Lon != 1 || got.Importance != 0 {
		t.Errorf("coarse copy at %+v, want lon 1 importance 0", got)
	}

	// The fine iterator reaches the coarse position.
	steps := 0
	for !a.Equal(b) && !a.AtEnd() {
		a.Next()
		steps++
	}
	if steps != 4 {
		t.Errorf("fine iterator needed %d steps, want 4", steps)
	}

	a.GoToEnd()
	end := spec.NewParamIterator(c, tile.Params{}, false)
	end.GoToEnd()
	if !a.Equal(end) {
		t.Errorf("end iterators differ")
	}
	end.GoToStart()
	if end.AtEnd() || end.Params().Lat != 0 {
		t.Errorf("GoToStart did not restart")
	}

	other := grid(0, 1, 0, 1, 0, 1, 0, 2)
	if spec.NewParamIterator(other, tile.Params{}, false).Equal(spec.NewParamIterator(c, tile.Params{}, false)) {
		t.Errorf("iterators over different collections are equal")
	}
}

func TestParamIteratorKeyCache(t *testing.T) {
	c := grid(0, 1, 0, 0, 0, 1, 0, 0)
	it := spec.NewParamIterator(c, tile.Params{Gzip: true}, false)
	for ; !it.AtEnd(); it.Next() {
		if got, want := it.Key(), it.Params().String(); got != want {
			t.Errorf("Key() = %q, want %q", got, want)
		}
	}
}

func TestParamIteratorEmpty(t *testing.T) {
	it := spec.NewParamIterator(&spec.TileCollection{}, tile.Params{}, false)
	if !it.AtEnd() {
		t.Errorf("iterator over empty collection is not at end")
	}
}
