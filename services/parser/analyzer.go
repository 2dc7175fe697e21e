package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/archiveworks/mailarch/internal/archerrors"
	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/utils"
)

// AnalyzedMessage is the complete result of parsing one raw message.
// It carries everything the storage layer needs and nothing else;
// analysis itself touches no external state.
type AnalyzedMessage struct {
	MessageID   string
	From        string
	To          string
	CC          string
	Subject     string
	Date        time.Time
	BodyTxt     string
	Attachments []Attachment
	// Parents holds candidate parent message-ids, most immediate
	// first: In-Reply-To, then References walked backwards.
	Parents []string
	RawTxt  []byte
}

func (m *AnalyzedMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// Analyzer parses raw messages into AnalyzedMessages.
type Analyzer struct {
	log logger.Logger
	now func() time.Time
}

func NewAnalyzer(log logger.Logger) *Analyzer {
	return &Analyzer{log: log, now: time.Now}
}

var reCleanMessageID = regexp.MustCompile(`^\s*<(.*)>\s*`)

// Clients put all sorts of garbage around and inside message-ids.
// Strip the angle brackets and any embedded spaces; with
// ignoreBroken a hopeless id becomes "" instead of an error, used
// for references to other messages where we can afford to drop one.
func (a *Analyzer) cleanMessageID(messageID string, ignoreBroken bool) (string, error) {
	m := reCleanMessageID.FindStringSubmatch(messageID)
	if m == nil {
		if ignoreBroken {
			a.log.Debugf("could not parse message id '%s', ignoring it", messageID)
			return "", nil
		}
		return "", archerrors.Ignorablef("could not parse message id '%s'", messageID)
	}
	return strings.ReplaceAll(m[1], " ", ""), nil
}

var reReceivedDate = regexp.MustCompile(`(?is)^from .*;([^(]+)(\(envelope-from.*)?`)

// Analyze parses one raw message. dateOverride, when non-empty,
// replaces the Date header entirely; it is used for re-runs of
// messages whose dates were known-bad. The returned message is
// self-contained; errors from hopeless input are ignorable, so one
// broken message never stops a run.
func (a *Analyzer) Analyze(raw []byte, dateOverride string) (*AnalyzedMessage, error) {
	rm, err := parseRawMessage(raw)
	if err != nil {
		return nil, err
	}

	rawMsgID := rm.header.Get("Message-Id")
	if rawMsgID == "" {
		return nil, archerrors.Ignorablef("message has no Message-ID header")
	}
	decodedMsgID, err := DecodeHeader(rawMsgID)
	if err != nil {
		return nil, err
	}
	msgid, err := a.cleanMessageID(decodedMsgID, false)
	if err != nil {
		return nil, err
	}

	from, err := DecodeHeader(rm.header.Get("From"))
	if err != nil {
		return nil, err
	}
	if from == "" {
		return nil, archerrors.Ignorablef("message %s has no From header", msgid)
	}

	to, err := DecodeHeader(rm.header.Get("To"))
	if err != nil {
		return nil, err
	}
	cc, err := DecodeHeader(rm.header.Get("Cc"))
	if err != nil {
		return nil, err
	}
	subject, err := DecodeHeader(rm.header.Get("Subject"))
	if err != nil {
		return nil, err
	}

	date, err := a.resolveDate(rm, msgid, dateOverride)
	if err != nil {
		return nil, err
	}

	body, err := ExtractBody(rm.root, msgid, a.log)
	if err != nil {
		return nil, err
	}

	attachments := ExtractAttachments(rm.root, a.log)
	if len(attachments) > 0 {
		a.log.Debugf("message %s has %d attachments", msgid, len(attachments))
	}

	parents, err := a.parentCandidates(rm)
	if err != nil {
		return nil, err
	}

	return &AnalyzedMessage{
		MessageID:   msgid,
		From:        from,
		To:          to,
		CC:          cc,
		Subject:     subject,
		Date:        date,
		BodyTxt:     body,
		Attachments: attachments,
		Parents:     parents,
		RawTxt:      raw,
	}, nil
}

func (a *Analyzer) resolveDate(rm *rawMessage, msgid, dateOverride string) (time.Time, error) {
	if dateOverride != "" {
		return DecodeDate(dateOverride)
	}

	rawDate := rm.header.Get("Date")
	if rawDate == "" {
		return time.Time{}, archerrors.Ignorablef("message %s has no Date header", msgid)
	}
	decoded, err := DecodeHeader(rawDate)
	if err != nil {
		return time.Time{}, err
	}
	date, err := DecodeDate(decoded)
	if err != nil {
		return time.Time{}, err
	}

	// Messages from machines with insane clocks claim dates far in
	// the future, which would pin them to the top of the archive
	// forever. Fall back to the earliest plausible Received stamp.
	maxdate := a.now().UTC().Add(4 * time.Hour)
	if date.After(maxdate) {
		if received, ok := earliestReceivedDate(rm.header["Received"], maxdate); ok {
			a.log.Debugf("message %s dated %s in the future, using Received date %s", msgid, date, received)
			date = received
		}
	}
	return date, nil
}

func earliestReceivedDate(received []string, maxdate time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	for _, r := range received {
		m := reReceivedDate.FindStringSubmatch(r)
		if m == nil {
			continue
		}
		t, err := DecodeDate(strings.TrimSpace(m[1]))
		if err != nil {
			continue
		}
		if t.Before(maxdate) && (!found || t.Before(best)) {
			best = t
			found = true
		}
	}
	return best, found
}

func (a *Analyzer) parentCandidates(rm *rawMessage) ([]string, error) {
	var parents []string

	irt, err := DecodeHeader(rm.header.Get("In-Reply-To"))
	if err != nil {
		return nil, err
	}
	if irt != "" {
		if id, _ := a.cleanMessageID(irt, true); id != "" {
			parents = append(parents, id)
		}
	}

	refs, err := DecodeHeader(rm.header.Get("References"))
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(refs)
	for i := len(fields) - 1; i >= 0; i-- {
		id, _ := a.cleanMessageID(fields[i], true)
		if id == "" || utils.IsStringInSlice(id, parents) {
			continue
		}
		parents = append(parents, id)
	}
	return parents, nil
}

// IsMessageID reports whether the raw message carries the given
// message-id. Used to pick a single message out of a mailbox;
// unparsable messages never match.
func (a *Analyzer) IsMessageID(raw []byte, msgid string) bool {
	rm, err := parseRawMessage(raw)
	if err != nil {
		return false
	}
	decoded, err := DecodeHeader(rm.header.Get("Message-Id"))
	if err != nil {
		return false
	}
	id, err := a.cleanMessageID(decoded, false)
	if err != nil {
		return false
	}
	return id == msgid
}
