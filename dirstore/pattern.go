// Package dirstore provides API for reading and writing buffers in a directory,
// where every buffer is stored as an individual file with a path like "/root/{key}.bin".
//
// The optional "{initial}" placeholder expands to the first character of the key
// and can be used to spread files over subdirectories ("/root/{initial}/{key}").
package dirstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPattern = errors.New("libsfd: invalid file pattern")
	ErrInvalidKey     = errors.New("libsfd: key cannot be stored as a file name")
)

func validatePattern(pattern string) error {
	if strings.Count(pattern, "{key}") != 1 {
		return fmt.Errorf("%w: placeholder {key} must occur exactly once", ErrInvalidPattern)
	}
	if strings.Count(pattern, "{initial}") > 1 {
		return fmt.Errorf("%w: placeholder {initial} occurs more than once", ErrInvalidPattern)
	}
	return nil
}

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func formatPattern(pattern string, key string) string {
	result := pattern
	result = strings.ReplaceAll(result, "{initial}", key[:1])
	result = strings.ReplaceAll(result, "{key}", key)
	return result
}
