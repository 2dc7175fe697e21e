package parser

import (
	"strings"

	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/utils"
)

// Attachment is a body part that should be stored separately from
// the message text. Filename may be empty; the storage layer
// substitutes a placeholder.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExtractAttachments collects the attachment parts of a message
// tree. Signature parts and alternative renderings of the body are
// never attachments. A second unnamed text/plain part is usually a
// duplicated body or footer injected by list software and is kept as
// an attachment so the content survives.
func ExtractAttachments(root Node, log logger.Logger) []Attachment {
	var atts []Attachment
	seenFirstPlain := false
	collectAttachments(root, &atts, &seenFirstPlain, log)
	return atts
}

func collectAttachments(n Node, atts *[]Attachment, seenFirstPlain *bool, log logger.Logger) {
	switch p := n.(type) {
	case *Multipart:
		switch p.Subtype {
		case "mixed", "signed":
			for _, child := range p.Children {
				if leaf, ok := child.(*Leaf); ok && !leaf.HasParams {
					log.Debugf("skipping multipart part without parameters")
					continue
				}
				collectAttachments(child, atts, seenFirstPlain, log)
			}
		case "alternative":
			// Same content in multiple renderings, one of which is
			// the body. Nothing here is an attachment, but the body
			// slot is now taken.
			*seenFirstPlain = true
		default:
			// Unknown multipart flavor, stay out of it.
		}
	case *Leaf:
		collectLeaf(p, atts, seenFirstPlain)
	}
}

func collectLeaf(p *Leaf, atts *[]Attachment, seenFirstPlain *bool) {
	switch p.ContentType {
	case "application/pgp-signature", "application/pkcs7-signature", "application/x-pkcs7-signature":
		// Signatures of the body, not attachments in their own
		// right.
		return
	}

	if !p.HasParams {
		return
	}

	if p.ContentType != "text/plain" {
		*atts = append(*atts, Attachment{
			Filename:    attachmentFilename(p),
			ContentType: p.ContentType,
			Content:     p.Payload,
		})
		return
	}

	if name := p.Params["name"]; name != "" || p.Filename != "" || p.Disposition == "attachment" {
		*atts = append(*atts, Attachment{
			Filename:    attachmentFilename(p),
			ContentType: p.ContentType,
			Content:     p.Payload,
		})
		return
	}

	if *seenFirstPlain {
		// The body slot is taken; a second anonymous text part is
		// usually a footer or copy injected by list software. Keep
		// it so nothing is lost.
		*atts = append(*atts, Attachment{
			ContentType: p.ContentType,
			Content:     p.Payload,
		})
		return
	}
	*seenFirstPlain = true
}

// attachmentFilename resolves the stored filename of an attachment
// part. Filenames arrive RFC 2047 encoded more often than the
// standard would have you believe.
func attachmentFilename(p *Leaf) string {
	name := p.Filename
	if name == "" {
		name = p.Description
	}
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "=?") {
		if decoded, err := DecodeHeader(name); err == nil && decoded != "" {
			return decoded
		}
	}
	return utils.SanitizeUTF8(name)
}
