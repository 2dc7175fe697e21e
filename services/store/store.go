package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/models"
	"github.com/archiveworks/mailarch/internal/runstatus"
	"github.com/archiveworks/mailarch/internal/tracing"
	"github.com/archiveworks/mailarch/services/parser"
	"github.com/archiveworks/mailarch/services/purge"
)

const unknownFilename = "unknown_filename"

// Service persists analyzed messages and resolves threading. All
// writes for one message happen inside the caller's transaction,
// which must hold the load serialization lock: thread resolution
// reads and rewrites rows across the whole graph and two concurrent
// resolvers would race each other into split threads.
type Service struct {
	log logger.Logger
}

func New(log logger.Logger) *Service {
	return &Service{log: log}
}

type parentRow struct {
	ID        int    `gorm:"column:id"`
	MessageID string `gorm:"column:messageid"`
	ThreadID  int64  `gorm:"column:threadid"`
}

type childRow struct {
	Message  int   `gorm:"column:message"`
	Priority int   `gorm:"column:priority"`
	ThreadID int64 `gorm:"column:threadid"`
}

// Store writes one analyzed message. The returned bool reports
// whether anything changed (a row written or updated); duplicates
// and no-op overwrites return false. Cache keys for everything
// touched are added to purges, and counters on status are bumped.
//
// In overwrite mode the message must already exist: its content
// fields are replaced in place while threading, provenance and
// hidden status stay untouched.
func (s *Service) Store(ctx context.Context, tx *gorm.DB, m *parser.AnalyzedMessage, listID int, overwrite bool, purges *purge.Set, status *runstatus.RunStatus) (bool, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "StoreService.Store")
	defer span.Finish()
	tracing.TagComponentService(span)

	existing, err := s.getExisting(tx, m.MessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}

	if overwrite {
		changed, err := s.overwrite(tx, existing, m, purges, status)
		if err != nil {
			tracing.TraceErr(span, err)
		}
		return changed, err
	}

	year, month := m.Date.Year(), int(m.Date.Month())
	if err := s.ensureListMonth(tx, listID, year, month, purges); err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}

	if existing != nil {
		if err := s.tagDuplicate(tx, existing, listID, year, month, purges, status); err != nil {
			tracing.TraceErr(span, err)
			return false, err
		}
		return false, nil
	}

	changed, err := s.storeNew(tx, m, listID, purges, status)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return changed, err
}

func (s *Service) getExisting(tx *gorm.DB, messageID string) (*models.Message, error) {
	var existing models.Message
	err := tx.Where("messageid = ?", messageID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "looking up message")
	}
	return &existing, nil
}

// ensureListMonth marks that this list has mail in this month. The
// first message of a month invalidates the cached month index.
func (s *Service) ensureListMonth(tx *gorm.DB, listID, year, month int, purges *purge.Set) error {
	res := tx.Exec(`INSERT INTO list_months (listid, year, month)
SELECT ?, ?, ?
WHERE NOT EXISTS (SELECT 1 FROM list_months WHERE listid = ? AND year = ? AND month = ?)`,
		listID, year, month, listID, year, month)
	if res.Error != nil {
		return errors.Wrap(res.Error, "recording list month")
	}
	if res.RowsAffected > 0 {
		purges.AddListMonth(listID, year, month)
	}
	return nil
}

// tagDuplicate handles a message that is already archived. Arriving
// on a list whose threads don't know it yet tags the thread onto
// that list; otherwise it is a plain duplicate and nothing changes.
func (s *Service) tagDuplicate(tx *gorm.DB, existing *models.Message, listID, year, month int, purges *purge.Set, status *runstatus.RunStatus) error {
	var tagged bool
	err := tx.Raw(`SELECT EXISTS (SELECT 1 FROM list_threads WHERE threadid = ? AND listid = ?)`,
		existing.ThreadID, listID).Scan(&tagged).Error
	if err != nil {
		return errors.Wrap(err, "checking list tag")
	}
	if tagged {
		s.log.Debugf("message %s already stored", existing.MessageID)
		status.Dupes++
		return nil
	}

	s.log.Debugf("tagging message %s with list %d", existing.MessageID, listID)
	err = tx.Exec(`INSERT INTO list_threads (threadid, listid) VALUES (?, ?)`,
		existing.ThreadID, listID).Error
	if err != nil {
		return errors.Wrap(err, "tagging thread")
	}
	purges.AddListMonth(listID, year, month)
	purges.AddThread(existing.ThreadID)
	status.Tagged++
	return nil
}

// overwrite replaces the content of an already-archived message,
// used after a parser fix. Threading is left alone: the message
// keeps its thread, parent and children. An overwrite that would
// change nothing is detected on the body and skipped.
func (s *Service) overwrite(tx *gorm.DB, existing *models.Message, m *parser.AnalyzedMessage, purges *purge.Set, status *runstatus.RunStatus) (bool, error) {
	if existing == nil {
		return false, errors.Errorf("attempt to overwrite message %s that does not exist", m.MessageID)
	}
	if existing.BodyTxt == m.BodyTxt {
		return false, nil
	}

	err := tx.Model(&models.Message{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
		"_from":          m.From,
		"_to":            m.To,
		"cc":             m.CC,
		"subject":        m.Subject,
		"date":           m.Date,
		"has_attachment": m.HasAttachments(),
		"bodytxt":        m.BodyTxt,
	}).Error
	if err != nil {
		return false, errors.Wrap(err, "overwriting message")
	}

	if err := tx.Exec(`DELETE FROM attachments WHERE message = ?`, existing.ID).Error; err != nil {
		return false, errors.Wrap(err, "deleting old attachments")
	}
	if err := s.createAttachments(tx, existing.ID, m.Attachments); err != nil {
		return false, err
	}

	purges.AddThread(existing.ThreadID)
	status.Stored++
	return true, nil
}

// storeNew inserts a brand new message, resolving its place in the
// thread graph: adopt the best already-arrived parent, collect
// children that were waiting for us, merge the threads this message
// turns out to connect, and record the still-missing parents.
func (s *Service) storeNew(tx *gorm.DB, m *parser.AnalyzedMessage, listID int, purges *purge.Set, status *runstatus.RunStatus) (bool, error) {
	var (
		parentID  *int
		threadID  int64
		remaining = m.Parents
	)

	if len(m.Parents) > 0 {
		var rows []parentRow
		err := tx.Raw(`SELECT id, messageid, threadid FROM messages WHERE messageid = ANY(?::text[])`,
			stringArray(m.Parents)).Scan(&rows).Error
		if err != nil {
			return false, errors.Wrap(err, "resolving parents")
		}
		if idx, row, ok := pickBestParent(m.Parents, rows); ok {
			parentID = &row.ID
			threadID = row.ThreadID
			remaining = m.Parents[:idx]
			s.log.Debugf("message %s resolved to existing thread %d, waiting for %d better parents",
				m.MessageID, threadID, idx)
		}
	}

	var children []childRow
	err := tx.Raw(`SELECT um.message, um.priority, m.threadid
FROM unresolved_messages um
INNER JOIN messages m ON m.id = um.message
WHERE um.msgid = ?
ORDER BY m.threadid`, m.MessageID).Scan(&children).Error
	if err != nil {
		return false, errors.Wrap(err, "resolving children")
	}

	var childIDs []int64
	if len(children) > 0 {
		survivor := threadID
		if survivor == 0 {
			survivor = children[0].ThreadID
		}
		if losers := loserThreads(survivor, children); len(losers) > 0 {
			if err := s.MergeThreads(tx, survivor, losers, purges); err != nil {
				return false, err
			}
		}
		threadID = survivor

		for _, c := range children {
			childIDs = append(childIDs, int64(c.Message))
			// The child found its parent; references it held at this
			// priority or worse are now moot.
			err := tx.Exec(`DELETE FROM unresolved_messages WHERE message = ? AND priority >= ?`,
				c.Message, c.Priority).Error
			if err != nil {
				return false, errors.Wrap(err, "clearing resolved references")
			}
		}
	}

	if threadID == 0 {
		if err := tx.Raw(`SELECT nextval('threadid_seq')`).Scan(&threadID).Error; err != nil {
			return false, errors.Wrap(err, "allocating thread id")
		}
		s.log.Debugf("message %s resolved to no parent (out of %d candidates) and no child, new thread %d",
			m.MessageID, len(m.Parents), threadID)
	}

	res := tx.Exec(`INSERT INTO list_threads (threadid, listid)
SELECT ?, ?
WHERE NOT EXISTS (SELECT 1 FROM list_threads WHERE threadid = ? AND listid = ?)`,
		threadID, listID, threadID, listID)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "tagging thread")
	}
	if res.RowsAffected > 0 {
		s.log.Debugf("tagged thread %d with list %d", threadID, listID)
	}

	msg := models.Message{
		MessageID:     m.MessageID,
		ThreadID:      threadID,
		ParentID:      parentID,
		From:          m.From,
		To:            m.To,
		CC:            m.CC,
		Subject:       m.Subject,
		Date:          m.Date,
		HasAttachment: m.HasAttachments(),
		BodyTxt:       m.BodyTxt,
		RawTxt:        m.RawTxt,
		Refs:          m.Parents,
	}
	if err := tx.Create(&msg).Error; err != nil {
		return false, errors.Wrap(err, "storing message")
	}

	if err := s.createAttachments(tx, msg.ID, m.Attachments); err != nil {
		return false, err
	}

	if len(childIDs) > 0 {
		s.log.Debugf("setting %d messages as children of %s", len(childIDs), m.MessageID)
		err := tx.Exec(`UPDATE messages SET parentid = ? WHERE id = ANY(?::bigint[])`,
			msg.ID, int64Array(childIDs)).Error
		if err != nil {
			return false, errors.Wrap(err, "adopting children")
		}
	}

	for i, p := range remaining {
		unresolved := models.UnresolvedMessage{MessageID: msg.ID, Priority: i, MsgID: p}
		if err := tx.Create(&unresolved).Error; err != nil {
			return false, errors.Wrap(err, "recording unresolved reference")
		}
	}

	status.Stored++
	return true, nil
}

func (s *Service) createAttachments(tx *gorm.DB, messageID int, attachments []parser.Attachment) error {
	for _, a := range attachments {
		filename := a.Filename
		if filename == "" {
			filename = unknownFilename
		}
		att := models.Attachment{
			MessageID:   messageID,
			Filename:    filename,
			ContentType: a.ContentType,
			Attachment:  a.Content,
		}
		if err := tx.Create(&att).Error; err != nil {
			return errors.Wrap(err, "storing attachment")
		}
	}
	return nil
}
