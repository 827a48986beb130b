package dirstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/eak1mov/go-libsfd/tile"
)

// Reader implements tile.Reader, tile.Fetcher and tile.Visitor for buffers in a directory.
type Reader struct {
	filePattern string
	rootDir     string
	pathRegexp  *regexp.Regexp
}

// NewReader creates a new Reader for the given file pattern (e.g. "/home/user/cache/{key}.bin").
func NewReader(filePattern string) (*Reader, error) {
	if err := validatePattern(filePattern); err != nil {
		return nil, err
	}

	regexPattern := regexp.QuoteMeta(filePattern)
	regexPattern = strings.Replace(regexPattern, regexp.QuoteMeta("{initial}"), "(?P<initial>[^/])", 1)
	regexPattern = strings.Replace(regexPattern, regexp.QuoteMeta("{key}"), "(?P<key>[^/]+)", 1)
	pathRegex, err := regexp.Compile("^" + regexPattern + "$")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	path0 := formatPattern(filePattern, "a")
	path1 := formatPattern(filePattern, "b")
	for path0 != path1 {
		path0 = filepath.Dir(path0)
		path1 = filepath.Dir(path1)
	}
	rootDir := path0

	return &Reader{filePattern, rootDir, pathRegex}, nil
}

func (r *Reader) ReadBuffer(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, nil
	}
	data, err := os.ReadFile(formatPattern(r.filePattern, key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// FetchBuffers answers every key, with nil Data for keys that have no file.
func (r *Reader) FetchBuffers(ctx context.Context, keys []string) ([]tile.Buffer, error) {
	out := make([]tile.Buffer, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := r.ReadBuffer(key)
		if err != nil {
			return nil, err
		}
		out = append(out, tile.Buffer{Key: key, Data: data})
	}
	return out, nil
}

func (r *Reader) walk(visitor func(key, filePath string) error) error {
	return filepath.WalkDir(r.rootDir, func(filePath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		matches := r.pathRegexp.FindStringSubmatch(filePath)
		if matches == nil {
			return nil
		}

		key := matches[r.pathRegexp.SubexpIndex("key")]
		if i := r.pathRegexp.SubexpIndex("initial"); i >= 0 && matches[i] != key[:1] {
			return nil
		}

		return visitor(key, filePath)
	})
}

func (r *Reader) VisitKeys(visitor func(string) error) error {
	return r.walk(func(key, _ string) error {
		return visitor(key)
	})
}

func (r *Reader) VisitBuffers(visitor func(string, []byte) error) error {
	return r.walk(func(key, filePath string) error {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}
		return visitor(key, data)
	})
}
