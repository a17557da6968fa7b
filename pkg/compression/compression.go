// Package compression implements the JWE "zip" compression methods and a
// registry resolving them by name.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1.3
package compression

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownMethod is returned for a method name that is not registered.
	ErrUnknownMethod = errors.New("unknown compression method")

	// ErrInvalidLevel is returned for a level outside 0-9 that is not the
	// default level.
	ErrInvalidLevel = errors.New("invalid compression level")

	// ErrDecompression is returned when compressed data cannot be inflated,
	// or inflates past the configured limit.
	ErrDecompression = errors.New("decompression failed")
)

// UnknownMethodError names the method that could not be resolved.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownMethod, e.Method)
}

func (e *UnknownMethodError) Unwrap() error {
	return ErrUnknownMethod
}

// InvalidLevelError carries the rejected compression level.
type InvalidLevelError struct {
	Level Level
}

func (e *InvalidLevelError) Error() string {
	return fmt.Sprintf("%v: %d (must be 0-9, or -1 for the default)", ErrInvalidLevel, e.Level)
}

func (e *InvalidLevelError) Unwrap() error {
	return ErrInvalidLevel
}

// Level is a compression level, 0 (store) through 9 (best), or
// DefaultLevel to use the underlying library's default.
type Level int

const (
	DefaultLevel Level = -1
	MinLevel     Level = 0
	MaxLevel     Level = 9
)

// Validate returns an InvalidLevelError for levels that are out of range.
func (l Level) Validate() error {
	if l == DefaultLevel || (l >= MinLevel && l <= MaxLevel) {
		return nil
	}
	return &InvalidLevelError{Level: l}
}

func (l Level) String() string {
	if l == DefaultLevel {
		return "default"
	}
	return strconv.Itoa(int(l))
}

// ParseLevel parses "default" or a number between 0 and 9.
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "default") {
		return DefaultLevel, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}

	l := Level(n)
	return l, l.Validate()
}

// Method is a compression capability identified by its "zip" name.
// Methods own no state across calls.
type Method interface {
	// Name returns the "zip" header value for the method, such as "DEF".
	Name() string

	// Compress compresses data at the given level.
	Compress(data []byte, level Level) ([]byte, error)

	// Uncompress inflates data, reading at most limit bytes of output
	// when limit is positive.
	Uncompress(data []byte, limit int64) ([]byte, error)
}
