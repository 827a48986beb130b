package internal

import (
	"fmt"
	"iter"

	"github.com/eak1mov/go-libsfd/tile"
)

// Grid describes a rectangle of tiles with one layer and an importance range.
type Grid struct {
	Layer      int
	Detail     int
	Lat0, Lat1 int32
	Lon0, Lon1 int32
	Imp0, Imp1 int
}

// Params yields the data and strings addresses of every tile of the grid.
func (g Grid) Params(base tile.Params) iter.Seq[tile.Params] {
	return func(yield func(tile.Params) bool) {
		for lat := g.Lat0; lat <= g.Lat1; lat++ {
			for lon := g.Lon0; lon <= g.Lon1; lon++ {
				for imp := g.Imp0; imp <= g.Imp1; imp++ {
					p := base
					p.Layer, p.Detail, p.Lat, p.Lon, p.Importance = g.Layer, g.Detail, lat, lon, imp
					if !yield(p.WithKind(tile.KindData)) || !yield(p.WithKind(tile.KindStrings)) {
						return
					}
				}
			}
		}
	}
}

// Payload is the deterministic test payload of key.
func Payload(key string) []byte {
	return []byte(fmt.Sprintf("payload:%s", key))
}

// GridBuffers returns payloads for every address of the grids plus the
// given header keys.
func GridBuffers(base tile.Params, others []string, grids ...Grid) map[string][]byte {
	out := make(map[string][]byte)
	for _, g := range grids {
		for p := range g.Params(base) {
			out[p.String()] = Payload(p.String())
		}
	}
	for _, key := range others {
		out[key] = Payload(key)
	}
	return out
}
