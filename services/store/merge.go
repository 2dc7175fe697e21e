package store

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/archiveworks/mailarch/services/purge"
)

// MergeThreads folds the loser threads into the survivor: every
// message moves over and the survivor inherits the union of list
// tags. Afterwards no row references a loser id, so the cached
// pages for each loser are purged. Caller must hold the load
// serialization lock.
func (s *Service) MergeThreads(tx *gorm.DB, survivor int64, losers []int64, purges *purge.Set) error {
	s.log.Debugf("merging threads %v into thread %d", losers, survivor)

	err := tx.Exec(`UPDATE messages SET threadid = ? WHERE threadid = ANY(?::bigint[])`,
		survivor, int64Array(losers)).Error
	if err != nil {
		return errors.Wrap(err, "moving messages between threads")
	}

	err = tx.Exec(`INSERT INTO list_threads (threadid, listid)
SELECT DISTINCT ?, listid FROM list_threads
WHERE threadid = ANY(?::bigint[])
  AND listid NOT IN (SELECT listid FROM list_threads WHERE threadid = ?)`,
		survivor, int64Array(losers), survivor).Error
	if err != nil {
		return errors.Wrap(err, "copying list tags")
	}

	err = tx.Exec(`DELETE FROM list_threads WHERE threadid = ANY(?::bigint[])`, int64Array(losers)).Error
	if err != nil {
		return errors.Wrap(err, "dropping merged thread tags")
	}

	for _, l := range losers {
		purges.AddThread(l)
	}
	return nil
}
