package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"strings"

	"github.com/eak1mov/go-libsfd/dbstore"
	"github.com/eak1mov/go-libsfd/dirstore"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/subcommands"
)

// exitIOError is returned when reading or writing a file fails.
const exitIOError subcommands.ExitStatus = 2

type storeReader interface {
	tile.Fetcher
	tile.Visitor
	tile.KeyVisitor
	io.Closer
}

type storeWriter interface {
	tile.Writer
	io.Closer
}

type dirWriter struct{ *dirstore.Writer }

func (dirWriter) Close() error { return nil }

type dirReader struct{ *dirstore.Reader }

func (dirReader) Close() error { return nil }

func deduceFormat(format, path string) string {
	if format == "" && (strings.HasSuffix(path, ".db") || strings.HasSuffix(path, ".sqlite")) {
		return "sqlite"
	}
	if format == "" && strings.Contains(path, "{key}") {
		return "dir"
	}
	return format
}

func openStore(format, path string) (storeReader, error) {
	switch deduceFormat(format, path) {
	case "sqlite":
		return dbstore.NewReader(path)
	case "dir":
		r, err := dirstore.NewReader(path)
		if err != nil {
			return nil, err
		}
		return dirReader{r}, nil
	}
	return nil, fmt.Errorf("invalid store format: %q", format)
}

func createStore(format, path string) (storeWriter, error) {
	switch deduceFormat(format, path) {
	case "sqlite":
		return dbstore.NewWriter(path, dbstore.WithLogger(slog.Default()))
	case "dir":
		w, err := dirstore.NewWriter(path)
		if err != nil {
			return nil, err
		}
		return dirWriter{w}, nil
	}
	return nil, fmt.Errorf("invalid store format: %q", format)
}

// failure logs err and maps it to an exit status.
func failure(err error) subcommands.ExitStatus {
	log.Println(err)
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return exitIOError
	}
	return subcommands.ExitFailure
}
