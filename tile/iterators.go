package tile

import (
	"errors"
	"iter"
)

var errVisitCancelled = errors.New("visit cancelled")

// IterBuffers returns an iterator over all buffers in the store.
// Iteration panics on unrecoverable errors.
func IterBuffers(r Visitor) iter.Seq2[string, []byte] {
	return func(yield func(string, []byte) bool) {
		err := r.VisitBuffers(func(key string, data []byte) error {
			if !yield(key, data) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && err != errVisitCancelled {
			panic(err)
		}
	}
}

// ParamsVisitor is implemented by readers that expose decoded tile addresses.
type ParamsVisitor interface {
	VisitTiles(visitor func(Params, []byte) error) error
}

// IterTiles returns an iterator over all tiles and their payloads.
// Iteration panics on unrecoverable errors.
func IterTiles(r ParamsVisitor) iter.Seq2[Params, []byte] {
	return func(yield func(Params, []byte) bool) {
		err := r.VisitTiles(func(p Params, data []byte) error {
			if !yield(p, data) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && err != errVisitCancelled {
			panic(err)
		}
	}
}
