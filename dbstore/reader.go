// Package dbstore provides a buffer store in a single SQLite database.
//
// Note: User must properly initialize the sqlite3 library generic driver
// (e.g. import _ "github.com/mattn/go-sqlite3") before using this package.
package dbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eak1mov/go-libsfd/tile"
)

// Reader implements tile.Reader, tile.Fetcher and tile.Visitor over a store.
type Reader struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// NewReader opens the store at filePath read-only.
//
// The returned Reader must be closed after use to release database resources.
func NewReader(filePath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", filePath))
	if err != nil {
		return nil, err
	}

	stmt, err := db.Prepare("SELECT data FROM buffers WHERE key = ?")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Reader{db: db, stmt: stmt}, nil
}

func (r *Reader) Close() error {
	return errors.Join(r.stmt.Close(), r.db.Close())
}

func (r *Reader) ReadMetadata() (map[string]string, error) {
	metadata := make(map[string]string)

	rows, err := r.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return metadata, nil
}

func (r *Reader) readBuffer(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	if err := r.stmt.QueryRowContext(ctx, key).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if data == nil {
		data = make([]byte, 0)
	}
	return data, nil
}

func (r *Reader) ReadBuffer(key string) ([]byte, error) {
	return r.readBuffer(context.Background(), key)
}

// FetchBuffers answers every key, with nil Data for keys not in the store.
func (r *Reader) FetchBuffers(ctx context.Context, keys []string) ([]tile.Buffer, error) {
	out := make([]tile.Buffer, 0, len(keys))
	for _, key := range keys {
		data, err := r.readBuffer(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, tile.Buffer{Key: key, Data: data})
	}
	return out, nil
}

func (r *Reader) VisitKeys(visitor func(string) error) error {
	rows, err := r.db.Query("SELECT key FROM buffers")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		if err := visitor(key); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (r *Reader) VisitBuffers(visitor func(string, []byte) error) error {
	rows, err := r.db.Query("SELECT key, data FROM buffers")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var data []byte

		if err := rows.Scan(&key, &data); err != nil {
			return err
		}

		if err := visitor(key, data); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return err
	}

	return nil
}
