package dbstore

import (
	"database/sql"
	"errors"
	"log/slog"
)

// Writer implements tile.Writer for a new store.
type Writer struct {
	db     *sql.DB
	stmt   *sql.Stmt
	logger *slog.Logger
	count  int
}

type writerConfig struct {
	Metadata map[string]string
	Logger   *slog.Logger
}

type WriterOption func(*writerConfig)

func WithMetadata(metadata map[string]string) WriterOption {
	return func(c *writerConfig) { c.Metadata = metadata }
}

func WithLogger(logger *slog.Logger) WriterOption {
	return func(c *writerConfig) { c.Logger = logger }
}

// NewWriter creates a store at filePath and prepares it for writing buffers.
func NewWriter(filePath string, opts ...WriterOption) (*Writer, error) {
	config := writerConfig{
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}

	var err error
	db, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	_, err = db.Exec(`
		CREATE TABLE metadata (name TEXT, value TEXT);
		CREATE TABLE buffers (key TEXT, data BLOB);
	`)
	if err != nil {
		return nil, err
	}

	for k, v := range config.Metadata {
		_, err = db.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", k, v)
		if err != nil {
			return nil, err
		}
	}

	stmt, err := db.Prepare("INSERT INTO buffers (key, data) VALUES (?, ?)")
	if err != nil {
		return nil, err
	}

	return &Writer{db: db, stmt: stmt, logger: config.Logger}, nil
}

func (w *Writer) Close() error {
	return errors.Join(w.stmt.Close(), w.db.Close())
}

func (w *Writer) WriteBuffer(key string, data []byte) error {
	if data == nil {
		data = make([]byte, 0)
	}
	_, err := w.stmt.Exec(key, data)
	if err == nil {
		w.count++
	}
	return err
}

func (w *Writer) Finalize() error {
	w.logger.Debug("libsfd: creating index", "buffers", w.count)
	_, err := w.db.Exec("CREATE UNIQUE INDEX buffer_index ON buffers (key)")
	w.logger.Debug("libsfd: done!")
	return err
}
