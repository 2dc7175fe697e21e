package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archiveworks/mailarch/internal/archerrors"
)

func TestCleanCharset(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"unknown-8bit", "us-ascii"},
		{"x-unknown", "us-ascii"},
		{"x-gbk", "gbk"},
		{"iso-8859-8-i", "iso-8859-8"},
		{"iso-8858-1", "iso-8859-1"},
		{"iso885915", "iso-8859-15"},
		{"koi8r", "koi8-r"},
		{"cp 1252", "cp1252"},
		{"pt_PT", "iso-8859-1"},
		{"macintosh", "mac_roman"},
		{"cn-big5", "big5"},
		{"tscii", "us-ascii"},
		{"utf-8", "utf-8"},
		{"iso-8859-1", "iso-8859-1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanCharset(tt.in), "charset %s", tt.in)
	}
}

func TestDecodeWithCharset(t *testing.T) {
	t.Run("latin1", func(t *testing.T) {
		got, err := decodeWithCharset([]byte{'c', 'a', 'f', 0xe9}, "iso-8859-1")
		require.NoError(t, err)
		assert.Equal(t, "café", got)
	})

	t.Run("misspelled latin1", func(t *testing.T) {
		got, err := decodeWithCharset([]byte{'c', 'a', 'f', 0xe9}, "iso-8858-1")
		require.NoError(t, err)
		assert.Equal(t, "café", got)
	})

	t.Run("ascii drops high bytes", func(t *testing.T) {
		got, err := decodeWithCharset([]byte{'a', 0xff, 'b'}, "unknown-8bit")
		require.NoError(t, err)
		assert.Equal(t, "ab", got)
	})

	t.Run("utf8 drops invalid sequences", func(t *testing.T) {
		got, err := decodeWithCharset([]byte{'a', 0xc3, 0xa9, 0xff, 'b'}, "utf-8")
		require.NoError(t, err)
		assert.Equal(t, "aéb", got)
	})

	t.Run("unknown charset is ignorable", func(t *testing.T) {
		_, err := decodeWithCharset([]byte("x"), "no-such-charset")
		require.Error(t, err)
		assert.True(t, archerrors.IsIgnorable(err))
	})

	t.Run("windows1252", func(t *testing.T) {
		got, err := decodeWithCharset([]byte{0x93, 'h', 'i', 0x94}, "cp 1252")
		require.NoError(t, err)
		assert.Equal(t, "“hi”", got)
	})
}
