package parser

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/korean"

	"github.com/archiveworks/mailarch/internal/archerrors"
)

// cleanCharset corrects known-bad charset labels before decoding.
// Decades of non-compliant clients mislabel, misspell or invent
// charsets; unrecognized labels pass through unchanged.
func cleanCharset(charset string) string {
	lcharset := strings.ToLower(charset)
	switch lcharset {
	case "unknown-8bit", "x-unknown", "unknown":
		// We don't know. Assume us-ascii and throw away the rest
		// with replacements.
		return "us-ascii"
	case "0", "x-user-defined", "_autodetect_all", "default_charset":
		// Seriously broken charset definitions, map to us-ascii.
		return "us-ascii"
	case "x-gbk":
		// Some MUAs set it to x-gbk, but there is a valid
		// declaration as gbk.
		return "gbk"
	case "iso-8859-8-i":
		// -I is a special logical version, but should be the same
		// charset.
		return "iso-8859-8"
	case "iso-8859-11":
		// Never registered with IANA; windows-874 is the same
		// thing.
		return "windows-874"
	case "iso-88-59-1", "iso-8858-1":
		// Strange way of saying 8859...
		return "iso-8859-1"
	case "iso885915":
		return "iso-8859-15"
	case "iso-latin-2":
		return "iso-8859-2"
	case "iso-850":
		// Strange spelling of cp850 (windows charset)
		return "cp850"
	case "koi8r":
		return "koi8-r"
	case "cp 1252":
		return "cp1252"
	case "iso-8859-1,iso-8859-2", "iso-8859-1:utf8:us-ascii":
		// Why did this show up more than once?!
		return "iso-8859-1"
	case "x-windows-949":
		return "ms949"
	case "pt_pt", "de_latin", "de":
		// This is a locale, not a charset, but most likely it's this
		// one.
		return "iso-8859-1"
	case "iso-8858-15":
		// How is this a *common* mistake?
		return "iso-8859-15"
	case "macintosh":
		return "mac_roman"
	case "cn-big5":
		return "big5"
	case "x-unicode-2-0-utf-7":
		return "utf-7"
	case "tscii":
		// No decoder for this charset. Map it down to ascii and
		// throw away the rest; sucks, but we have to.
		return "us-ascii"
	}
	return charset
}

// Labels the index lookups don't know under these spellings.
var specialEncodings = map[string]encoding.Encoding{
	"cp850":     charmap.CodePage850,
	"mac_roman": charmap.Macintosh,
	"ms949":     korean.EUCKR,
	"cp1252":    charmap.Windows1252,
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if enc, ok := specialEncodings[strings.ToLower(name)]; ok {
		return enc, nil
	}
	if enc, err := htmlindex.Get(name); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := ianaindex.MIME.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	return nil, archerrors.Ignorablef("unknown charset '%s'", name)
}

// decodeWithCharset converts raw bytes to a Unicode string using the
// (repaired) charset label. Lookup failures are ignorable: the
// message is skipped, not the run.
func decodeWithCharset(b []byte, charset string) (string, error) {
	cs := strings.ToLower(cleanCharset(charset))
	switch cs {
	case "us-ascii", "ascii":
		return asciiLossy(b), nil
	case "utf-8", "utf8":
		return utf8Lossy(b), nil
	case "utf-7":
		// No utf-7 decoder available; take the ascii subset.
		return asciiLossy(b), nil
	}

	enc, err := lookupEncoding(cs)
	if err != nil {
		return "", archerrors.Ignorablef("failed to get unicode payload: %s", err)
	}
	decoded, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return asciiLossy(b), nil
	}
	return utf8Lossy(decoded), nil
}

// asciiLossy keeps the 7-bit subset and drops everything else, the
// moral equivalent of decoding us-ascii with error replacement.
func asciiLossy(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c < 0x80 {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func utf8Lossy(b []byte) string {
	return strings.ToValidUTF8(string(b), "")
}
