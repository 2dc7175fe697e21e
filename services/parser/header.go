package parser

import (
	"io"
	"mime"
	"regexp"
	"strings"

	"github.com/archiveworks/mailarch/internal/archerrors"
	"github.com/archiveworks/mailarch/internal/utils"
)

// Certain versions of the gmail web client wrap encoded-words in
// double quotes, which keeps the decoder from touching them. Strip
// the quotes so the word decodes.
var reGmailWorkaround = regexp.MustCompile(`"(=\?[^?]+\?[QqBb]\?[^?]+\?=)"`)

var headerDecoder = mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		data, err := io.ReadAll(input)
		if err != nil {
			return nil, err
		}
		s, err := decodeWithCharset(data, charset)
		if err != nil {
			return nil, err
		}
		return strings.NewReader(s), nil
	},
}

// DecodeHeader turns a raw RFC 2047 header value into a Unicode
// string. Unfolds continuation lines, repairs known client bugs and
// decodes each encoded-word with the repaired charset table. A
// header in an unknown charset makes the whole message ignorable; a
// structurally broken header degrades to its ascii subset instead.
func DecodeHeader(hdr string) (string, error) {
	if hdr == "" {
		return "", nil
	}

	hdr = strings.ReplaceAll(hdr, "\n\t", " ")
	hdr = strings.ReplaceAll(hdr, "\n ", " ")
	hdr = reGmailWorkaround.ReplaceAllString(hdr, `$1`)

	decoded, err := headerDecoder.DecodeHeader(hdr)
	if err != nil {
		if archerrors.IsIgnorable(err) {
			return "", err
		}
		decoded = asciiLossy([]byte(hdr))
	}
	return utils.StripNul(utils.SanitizeUTF8(decoded)), nil
}
