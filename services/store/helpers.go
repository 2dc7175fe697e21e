package store

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

// pickBestParent chooses the parent among the candidates that
// already arrived. Candidate order encodes authority, so the match
// closest to the front of the chain wins and everything before it
// stays on the waiting list.
func pickBestParent(parents []string, rows []parentRow) (int, parentRow, bool) {
	bestIdx := -1
	var best parentRow
	for _, row := range rows {
		for idx, p := range parents {
			if p == row.MessageID && (bestIdx == -1 || idx < bestIdx) {
				bestIdx = idx
				best = row
			}
		}
	}
	if bestIdx == -1 {
		return 0, parentRow{}, false
	}
	return bestIdx, best, true
}

// loserThreads lists the distinct threads among the children that
// are not the survivor, in order of appearance.
func loserThreads(survivor int64, children []childRow) []int64 {
	var losers []int64
	seen := map[int64]struct{}{survivor: {}}
	for _, c := range children {
		if _, ok := seen[c.ThreadID]; ok {
			continue
		}
		seen[c.ThreadID] = struct{}{}
		losers = append(losers, c.ThreadID)
	}
	return losers
}

func stringArray(values []string) driver.Valuer {
	return pq.Array(values)
}

func int64Array(values []int64) driver.Valuer {
	return pq.Array(values)
}
