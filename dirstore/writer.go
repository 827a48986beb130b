package dirstore

import (
	"os"
	"path/filepath"
)

// Writer implements tile.Writer interface for buffers in a directory.
type Writer struct {
	filePattern string
}

// NewWriter creates a new Writer for the given file pattern (e.g. "/home/user/cache/{initial}/{key}").
func NewWriter(filePattern string) (*Writer, error) {
	if err := validatePattern(filePattern); err != nil {
		return nil, err
	}
	return &Writer{filePattern}, nil
}

func (w *Writer) WriteBuffer(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	filePath := formatPattern(w.filePattern, key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}

	return os.WriteFile(filePath, data, 0644)
}

func (w *Writer) Finalize() error {
	return nil
}
