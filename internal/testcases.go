package internal

import (
	"context"
	"math/rand/v2"

	"github.com/eak1mov/go-libsfd/tile"
)

// MemoryFetcher serves buffers from a map. Each call answers a random subset
// of the requested (data, strings) pairs in random order, the way a batching
// remote source would. Unknown keys are answered with nil Data.
type MemoryFetcher struct {
	Buffers map[string][]byte

	// Keep is the fraction of requested pairs answered per call; at least one always is.
	Keep float64

	rng   *rand.Rand
	Calls int
}

func NewMemoryFetcher(buffers map[string][]byte, seed uint64) *MemoryFetcher {
	return &MemoryFetcher{
		Buffers: buffers,
		Keep:    0.6,
		rng:     rand.New(rand.NewPCG(seed, seed^0x5fd)),
	}
}

// units groups consecutive data and strings keys of one tile.
func units(keys []string) [][]string {
	var out [][]string
	for i := 0; i < len(keys); i++ {
		kind, ok := tile.KeyKind(keys[i])
		if ok && kind == tile.KindData && i+1 < len(keys) {
			if next, ok := tile.KeyKind(keys[i+1]); ok && next == tile.KindStrings {
				out = append(out, keys[i:i+2])
				i++
				continue
			}
		}
		out = append(out, keys[i:i+1])
	}
	return out
}

func (f *MemoryFetcher) FetchBuffers(ctx context.Context, keys []string) ([]tile.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.Calls++

	us := units(keys)
	f.rng.Shuffle(len(us), func(i, j int) { us[i], us[j] = us[j], us[i] })
	n := max(1, int(float64(len(us))*f.Keep))
	if len(us) == 0 {
		n = 0
	}

	var out []tile.Buffer
	for _, u := range us[:n] {
		for _, key := range u {
			out = append(out, tile.Buffer{Key: key, Data: f.Buffers[key]})
		}
	}
	return out, nil
}
