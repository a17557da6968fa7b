package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/picatz/joseloader/pkg/jwa"
)

// Deflate is the raw DEFLATE (RFC 1951) "DEF" method.
type Deflate struct{}

func (Deflate) Name() string { return jwa.DEF }

func (Deflate) Compress(data []byte, level Level) ([]byte, error) {
	return compress(data, level, func(w io.Writer, level int) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})
}

func (Deflate) Uncompress(data []byte, limit int64) ([]byte, error) {
	return uncompress(limit, func() (io.ReadCloser, error) {
		return flate.NewReader(bytes.NewReader(data)), nil
	})
}

// Zlib is the zlib (RFC 1950) "ZLIB" method.
type Zlib struct{}

func (Zlib) Name() string { return jwa.ZLIB }

func (Zlib) Compress(data []byte, level Level) ([]byte, error) {
	return compress(data, level, func(w io.Writer, level int) (io.WriteCloser, error) {
		return zlib.NewWriterLevel(w, level)
	})
}

func (Zlib) Uncompress(data []byte, limit int64) ([]byte, error) {
	return uncompress(limit, func() (io.ReadCloser, error) {
		return zlib.NewReader(bytes.NewReader(data))
	})
}

// Gzip is the gzip (RFC 1952) "GZ" method.
type Gzip struct{}

func (Gzip) Name() string { return jwa.GZ }

func (Gzip) Compress(data []byte, level Level) ([]byte, error) {
	return compress(data, level, func(w io.Writer, level int) (io.WriteCloser, error) {
		return gzip.NewWriterLevel(w, level)
	})
}

func (Gzip) Uncompress(data []byte, limit int64) ([]byte, error) {
	return uncompress(limit, func() (io.ReadCloser, error) {
		return gzip.NewReader(bytes.NewReader(data))
	})
}

func compress(data []byte, level Level, newWriter func(io.Writer, int) (io.WriteCloser, error)) ([]byte, error) {
	err := level.Validate()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := newWriter(&buf, int(level))
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	_, err = w.Write(data)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to compress data: %w", err)
	}

	err = w.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}

	return buf.Bytes(), nil
}

func uncompress(limit int64, newReader func() (io.ReadCloser, error)) ([]byte, error) {
	r, err := newReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompression, err)
	}
	defer r.Close()

	var src io.Reader = r
	if limit > 0 {
		// One extra byte tells an exact fit apart from an overflow.
		src = io.LimitReader(r, limit+1)
	}

	out, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompression, err)
	}

	if limit > 0 && int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: output exceeds %d bytes", ErrDecompression, limit)
	}

	return out, nil
}
