package sfd_test

import (
	"testing"

	"github.com/eak1mov/go-libsfd/internal"
	"github.com/eak1mov/go-libsfd/sfd"
	"github.com/eak1mov/go-libsfd/sfd/spec"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/stretchr/testify/require"
)

var base = tile.Params{Gzip: true, Lang: tile.LangEnglish}

var headerStrings = []string{"DXXX", "tmfd"}

func payload(name string, p tile.Params) []byte {
	return []byte(name + ":" + p.String())
}

// gridFile returns a file holding the grids, whose payloads are tagged with
// name. Grids sharing a detail level must be given in layer order.
func gridFile(t *testing.T, name string, debug bool, grids ...internal.Grid) *sfd.File {
	t.Helper()
	coll := &spec.TileCollection{}
	for _, g := range grids {
		for p := range g.Params(base) {
			coll.AddParams(p, nil)
		}
	}
	coll.MakeCompactDetail()

	f := sfd.New(name, debug)
	f.Header.Collections = []spec.TileCollection{*coll}
	for _, s := range headerStrings {
		f.Header.UpdateMetaData(s)
		f.HeaderStrings = append(f.HeaderStrings, s)
		f.HeaderMaps = append(f.HeaderMaps, sfd.NewMapBuff(s, []byte("desc "+s)))
	}
	for cell := range coll.CellSeq() {
		var pairs []spec.ParamBuffer
		for _, g := range grids {
			if g.Detail != cell.Detail || cell.Lat < g.Lat0 || cell.Lat > g.Lat1 || cell.Lon < g.Lon0 || cell.Lon > g.Lon1 {
				continue
			}
			for imp := g.Imp0; imp <= g.Imp1; imp++ {
				p := base
				p.Layer, p.Detail, p.Lat, p.Lon, p.Importance = g.Layer, cell.Detail, cell.Lat, cell.Lon, imp
				d, s := p.WithKind(tile.KindData), p.WithKind(tile.KindStrings)
				pairs = append(pairs,
					spec.ParamBuffer{Params: d, Data: payload(name, d)},
					spec.ParamBuffer{Params: s, Data: payload(name, s)})
			}
		}
		block, err := spec.WriteMultiBuffer(pairs, debug)
		require.NoError(t, err)
		f.Maps = append(f.Maps, sfd.NewMapBuff("", block))
	}
	return f
}

// readAll returns every payload of an encoded file keyed by address.
func readAll(t *testing.T, data []byte) map[string]string {
	t.Helper()
	r, err := sfd.NewReader(data, sfd.WithGzip(true), sfd.WithLanguage(base.Lang))
	require.NoError(t, err)
	out := map[string]string{}
	for p, payload := range tile.IterTiles(r) {
		out[p.String()] = string(payload)
	}
	return out
}
