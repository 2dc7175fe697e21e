package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/archiveworks/mailarch/internal/archerrors"
	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/utils"
)

// Trailing subscription footer appended by the list software. It is
// not part of what the author wrote, so it is cut from stored
// bodies.
var reListFooter = regexp.MustCompile(`(?s)\A(.*)--\s+\nSent via \S+ mailing list \([^)]+\)\nTo make changes to your subscription:\nhttp://\S+/mailpref/\S+\s*\z`)

// ExtractBody finds the canonical plaintext body of a message.
// Plaintext parts always win; HTML parts are stripped to text only
// when no plaintext exists anywhere in the tree. A message whose
// parts are all present but empty yields an empty body; a message
// with no readable part at all is ignorable.
func ExtractBody(root Node, msgid string, log logger.Logger) (string, error) {
	body, err := bodyCandidate(root, msgid, log)
	if err != nil {
		return "", err
	}
	if m := reListFooter.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	return utils.StripNul(utils.SanitizeUTF8(body)), nil
}

func bodyCandidate(root Node, msgid string, log logger.Logger) (string, error) {
	hasEmpty := false

	switch n := root.(type) {
	case *Leaf:
		s, found, err := payloadAsUnicode(n)
		if err != nil {
			return "", err
		}
		if found {
			if s != "" {
				return s, nil
			}
			hasEmpty = true
		}
	case *Multipart:
		s, found, err := firstTextPart(n, false, msgid, log)
		if err != nil {
			return "", err
		}
		if found {
			if s != "" {
				return s, nil
			}
			hasEmpty = true
		}

		// No plaintext anywhere. Settle for HTML stripped down to
		// text.
		s, found, err = firstTextPart(n, true, msgid, log)
		if err != nil {
			return "", err
		}
		if found {
			if s != "" {
				if cleaned := htmlToText(s); cleaned != "" {
					return cleaned, nil
				}
			}
			hasEmpty = true
		}
	}

	if hasEmpty {
		log.Debugf("found empty body in %s", msgid)
		return "", nil
	}
	return "", archerrors.Ignorablef("don't know how to read the body from %s", msgid)
}

// firstTextPart walks the tree depth first and returns the first
// non-attachment text part. With htmlInstead set, text/html parts
// qualify instead of text/plain.
func firstTextPart(mp *Multipart, htmlInstead bool, msgid string, log logger.Logger) (string, bool, error) {
	for _, child := range mp.Children {
		switch p := child.(type) {
		case *Leaf:
			if !p.HasParams {
				// Part with no MIME type at all. Assume it is the
				// text/plain body and take it as-is.
				log.Debugf("multipart message '%s' has part without content type, assuming text/plain", msgid)
				return payloadAsUnicode(p)
			}
			if p.Disposition == "attachment" {
				continue
			}
			want := "text/plain"
			if htmlInstead {
				want = "text/html"
			}
			if p.ContentType == want {
				s, found, err := payloadAsUnicode(p)
				if err != nil {
					return "", false, err
				}
				if found && s != "" {
					return s, true, nil
				}
				// Empty part, keep looking for a non-empty one.
			}
		case *Multipart:
			s, found, err := firstTextPart(p, htmlInstead, msgid, log)
			if err != nil {
				return "", false, err
			}
			if found {
				return s, true, nil
			}
		}
	}
	return "", false, nil
}

// htmlToText strips tags from an HTML body, turning paragraph and
// line breaks into newlines. Comments and script contents are
// discarded.
func htmlToText(s string) string {
	var sb strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tokenizer.Text())
			}
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				skipDepth++
			case "p", "div", "tr", "br":
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "br" {
				sb.WriteByte('\n')
			}
		}
	}
}
