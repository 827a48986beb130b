package sfd

import (
	"context"
	"errors"
	"fmt"

	"github.com/eak1mov/go-libsfd/tile"
)

// ErrStalled is returned by Build when the source stops delivering requested buffers.
var ErrStalled = errors.New("libsfd: build stalled")

// MaxIdleRounds is the number of consecutive rounds without progress after
// which Build gives up.
const MaxIdleRounds = 16

// Build drives b to completion, fetching up to batch keys per round from
// fetcher. progress, if not nil, is called with the number of buffers
// stored in each round.
func Build(ctx context.Context, b *Builder, fetcher tile.Fetcher, batch int, progress func(int)) error {
	idle := 0
	for !b.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		keys := b.NextParams(batch)
		if len(keys) == 0 {
			return fmt.Errorf("%w: nothing to request with %d pairs pending", ErrStalled, b.Pending())
		}
		bufs, err := fetcher.FetchBuffers(ctx, keys)
		if err != nil {
			return err
		}

		before := b.progress()
		if err := b.AddBuffers(bufs); err != nil {
			return err
		}
		if progress != nil {
			progress(len(bufs))
		}

		if b.progress() == before {
			idle++
			if idle >= MaxIdleRounds {
				return fmt.Errorf("%w: no progress in %d rounds, %d pairs pending", ErrStalled, idle, b.Pending())
			}
		} else {
			idle = 0
		}
	}
	return nil
}

// progress counts the buffers the builder has resolved so far.
func (b *Builder) progress() int {
	n := len(b.otherMaps) + 2*b.nbrPairs
	for _, h := range b.pending {
		if h.haveData {
			n++
		}
		if h.haveStrs {
			n++
		}
	}
	return n
}
