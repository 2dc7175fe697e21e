package parser

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/archiveworks/mailarch/internal/archerrors"
)

// Node is one part of a parsed MIME tree. A message body is either a
// single Leaf or a Multipart container of further nodes.
type Node interface {
	node()
}

// Leaf is a non-multipart body part with its transfer encoding
// already undone.
type Leaf struct {
	// ContentType is the lowercased media type, or "" when the part
	// carried no parsable Content-Type header.
	ContentType string
	// HasParams records whether a Content-Type header was present
	// and parsable at all. Parts without one get no charset handling
	// and are never treated as attachments.
	HasParams   bool
	Params      map[string]string
	Disposition string
	Filename    string
	Description string
	Payload     []byte
}

// Multipart is a container part. Children appear in wire order;
// parts the boundary scanner could not recover are simply absent.
type Multipart struct {
	Subtype  string
	Children []Node
}

func (*Leaf) node()      {}
func (*Multipart) node() {}

type rawMessage struct {
	header mail.Header
	root   Node
}

// parseRawMessage parses the full message into headers and a body
// tree. Messages arriving from an mbox keep their envelope From
// line, which the header parser does not accept, so it is stripped
// first. Any structural failure is ignorable.
func parseRawMessage(raw []byte) (*rawMessage, error) {
	if bytes.HasPrefix(raw, []byte("From ")) {
		if idx := bytes.IndexByte(raw, '\n'); idx >= 0 {
			raw = raw[idx+1:]
		}
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, archerrors.Ignorablef("failed to parse message: %s", err)
	}
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, archerrors.Ignorablef("failed to read message body: %s", err)
	}
	return &rawMessage{
		header: msg.Header,
		root:   buildNode(textproto.MIMEHeader(msg.Header), body),
	}, nil
}

func buildNode(h textproto.MIMEHeader, body []byte) Node {
	ctHeader := h.Get("Content-Type")
	mediatype, params, err := mime.ParseMediaType(ctHeader)
	if ctHeader == "" || err != nil {
		return &Leaf{
			HasParams:   false,
			Disposition: dispositionOf(h),
			Description: h.Get("Content-Description"),
			Payload:     decodeTransfer(body, h.Get("Content-Transfer-Encoding")),
		}
	}

	if strings.HasPrefix(mediatype, "multipart/") {
		boundary := params["boundary"]
		if boundary != "" {
			mp := &Multipart{Subtype: strings.TrimPrefix(mediatype, "multipart/")}
			mr := multipart.NewReader(bytes.NewReader(body), boundary)
			for {
				part, err := mr.NextRawPart()
				if err != nil {
					// EOF, or a boundary too mangled to carry on
					// with. Keep the parts we did recover.
					break
				}
				pb, err := io.ReadAll(part)
				if err != nil {
					break
				}
				mp.Children = append(mp.Children, buildNode(part.Header, pb))
			}
			return mp
		}
		// Claims multipart but has no boundary. Fall through and
		// treat the whole body as a single opaque part.
	}

	filename := ""
	dv := h.Get("Content-Disposition")
	if dv != "" {
		if _, dparams, err := mime.ParseMediaType(dv); err == nil {
			filename = dparams["filename"]
		}
	}
	if filename == "" {
		filename = params["name"]
	}

	return &Leaf{
		ContentType: strings.ToLower(mediatype),
		HasParams:   true,
		Params:      params,
		Disposition: dispositionOf(h),
		Filename:    filename,
		Description: h.Get("Content-Description"),
		Payload:     decodeTransfer(body, h.Get("Content-Transfer-Encoding")),
	}
}

func dispositionOf(h textproto.MIMEHeader) string {
	dv := h.Get("Content-Disposition")
	if dv == "" {
		return ""
	}
	if disp, _, err := mime.ParseMediaType(dv); err == nil {
		return strings.ToLower(disp)
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(dv, ";", 2)[0]))
}

// decodeTransfer undoes the Content-Transfer-Encoding. Truncated or
// corrupt encodings yield whatever prefix decodes cleanly rather
// than failing the message.
func decodeTransfer(b []byte, cte string) []byte {
	switch strings.ToLower(strings.TrimSpace(cte)) {
	case "base64":
		cleaned := stripWhitespace(b)
		if decoded, err := base64.StdEncoding.DecodeString(string(cleaned)); err == nil {
			return decoded
		}
		decoded, _ := io.ReadAll(base64.NewDecoder(base64.StdEncoding, bytes.NewReader(cleaned)))
		return decoded
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(b)))
		if err != nil && len(decoded) == 0 {
			return b
		}
		return decoded
	default:
		return b
	}
}

func stripWhitespace(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			out = append(out, c)
		}
	}
	return out
}

// payloadAsUnicode converts a leaf payload to text using its
// declared charset. The second return value reports whether a
// usable (possibly empty) body was found.
func payloadAsUnicode(l *Leaf) (string, bool, error) {
	if len(l.Payload) == 0 {
		return "", true, nil
	}
	if !l.HasParams {
		return asciiLossy(l.Payload), true, nil
	}
	if cs, ok := l.Params["charset"]; ok && cs != "" {
		s, err := decodeWithCharset(l.Payload, cs)
		if err != nil {
			return "", false, err
		}
		return s, true, nil
	}
	return utf8Lossy(l.Payload), true, nil
}
