// Package tile provides the tile address type and common buffer interfaces.
package tile

import "context"

// Buffer is one payload keyed by its address string. A nil Data means the
// source has no payload for the key.
type Buffer struct {
	Key  string
	Data []byte
}

// Fetcher supplies buffers for requested keys.
type Fetcher interface {
	// FetchBuffers returns buffers for some or all of the requested keys, in any order.
	// Keys the source knows to be empty are returned with nil Data.
	// Keys missing from the result may be requested again later.
	FetchBuffers(ctx context.Context, keys []string) ([]Buffer, error)
}

// Writer defines an interface for writing buffers to a store.
type Writer interface {
	// WriteBuffer writes a single buffer to the store.
	WriteBuffer(key string, data []byte) error

	// Finalize completes the writing process.
	// It must be called before closing the Writer.
	Finalize() error
}

type Reader interface {
	// ReadBuffer reads a single buffer from the store.
	// If the buffer does not exist, it returns nil with no error.
	ReadBuffer(key string) ([]byte, error)
}

type Visitor interface {
	// VisitBuffers visits all buffers in the store, calling the visitor for each.
	// Order of buffers is implementation-defined.
	VisitBuffers(visitor func(key string, data []byte) error) error
}

type KeyVisitor interface {
	// VisitKeys visits the keys of all buffers in the store without loading them.
	VisitKeys(visitor func(key string) error) error
}

// Location represents the absolute location of a block inside a file.
type Location struct {
	Offset uint64
	Length uint64
}
