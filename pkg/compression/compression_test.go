package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("You can trust us to stick with you through thick and thin. "), 64)

	for _, method := range DefaultMethods() {
		for _, level := range []Level{DefaultLevel, 0, 1, 6, 9} {
			t.Run(method.Name()+"/"+level.String(), func(t *testing.T) {
				compressed, err := method.Compress(data, level)
				require.NoError(t, err)
				if level != 0 {
					require.Less(t, len(compressed), len(data))
				}

				uncompressed, err := method.Uncompress(compressed, 0)
				require.NoError(t, err)
				require.Equal(t, data, uncompressed)
			})
		}
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{input: "default", want: DefaultLevel},
		{input: "", want: DefaultLevel},
		{input: "0", want: 0},
		{input: "9", want: 9},
		{input: "10", wantErr: true},
		{input: "-2", wantErr: true},
		{input: "fast", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.wantErr {
				require.ErrorIs(t, err, ErrInvalidLevel)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, level)
		})
	}

	t.Run("compress rejects out of range levels", func(t *testing.T) {
		for _, method := range DefaultMethods() {
			_, err := method.Compress([]byte("data"), 10)
			var levelErr *InvalidLevelError
			require.ErrorAs(t, err, &levelErr)
			require.Equal(t, Level(10), levelErr.Level)
		}
	})
}

func TestRegistry(t *testing.T) {
	r := Default()
	require.Equal(t, []string{"DEF", "ZLIB", "GZ"}, r.Names())
	require.True(t, r.Has("GZ"))
	require.False(t, r.Has("LZ4"))

	compressed, err := r.Compress("ZLIB", []byte("hello"), DefaultLevel)
	require.NoError(t, err)

	out, err := r.Uncompress("ZLIB", compressed)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), out)

	t.Run("unknown method", func(t *testing.T) {
		_, err := r.Uncompress("LZ4", compressed)
		require.ErrorIs(t, err, ErrUnknownMethod)

		var methodErr *UnknownMethodError
		require.ErrorAs(t, err, &methodErr)
		require.Equal(t, "LZ4", methodErr.Method)

		_, err = r.Compress("LZ4", []byte("hello"), DefaultLevel)
		require.ErrorIs(t, err, ErrUnknownMethod)
	})

	t.Run("methods are distinct", func(t *testing.T) {
		_, err := r.Uncompress("GZ", compressed)
		require.ErrorIs(t, err, ErrDecompression)
	})

	t.Run("only configured methods", func(t *testing.T) {
		r := NewRegistry([]Method{Deflate{}})
		require.Equal(t, []string{"DEF"}, r.Names())
		_, err := r.Get("GZ")
		require.ErrorIs(t, err, ErrUnknownMethod)
	})
}

func TestMaxSize(t *testing.T) {
	data := bytes.Repeat([]byte{0}, 1<<20)

	compressed, err := Deflate{}.Compress(data, 9)
	require.NoError(t, err)

	_, err = Default(WithMaxSize(1024)).Uncompress("DEF", compressed)
	require.ErrorIs(t, err, ErrDecompression)

	out, err := Default(WithMaxSize(int64(len(data)))).Uncompress("DEF", compressed)
	require.NoError(t, err)
	require.Len(t, out, len(data))
}

func TestUncompressGarbage(t *testing.T) {
	for _, method := range DefaultMethods() {
		t.Run(method.Name(), func(t *testing.T) {
			_, err := method.Uncompress([]byte("definitely not compressed"), 0)
			require.ErrorIs(t, err, ErrDecompression)
		})
	}
}
