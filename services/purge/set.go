package purge

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/archiveworks/mailarch/interfaces"
)

// ListMonthKey identifies one month page of one list in the
// frontend cache.
type ListMonthKey struct {
	ListID int
	Year   int
	Month  int
}

// Set accumulates cache keys touched by a run. Keys are
// deduplicated; a run that stores a thousand messages into one
// month still purges that month once.
type Set struct {
	listMonths map[ListMonthKey]struct{}
	threads    map[int64]struct{}
}

func NewSet() *Set {
	return &Set{
		listMonths: make(map[ListMonthKey]struct{}),
		threads:    make(map[int64]struct{}),
	}
}

func (s *Set) AddListMonth(listID, year, month int) {
	s.listMonths[ListMonthKey{ListID: listID, Year: year, Month: month}] = struct{}{}
}

func (s *Set) AddThread(threadID int64) {
	s.threads[threadID] = struct{}{}
}

// AddThreadForMessage resolves a message id to the thread holding it
// and marks that thread for purging.
func (s *Set) AddThreadForMessage(ctx context.Context, messages interfaces.MessageRepository, messageID string) error {
	msg, err := messages.GetByMessageID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return errors.Errorf("message %s not found", messageID)
	}
	s.AddThread(msg.ThreadID)
	return nil
}

func (s *Set) Empty() bool {
	return len(s.listMonths) == 0 && len(s.threads) == 0
}

func (s *Set) ListMonths() []ListMonthKey {
	keys := make([]ListMonthKey, 0, len(s.listMonths))
	for k := range s.listMonths {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.ListID != b.ListID {
			return a.ListID < b.ListID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})
	return keys
}

func (s *Set) Threads() []int64 {
	threads := make([]int64, 0, len(s.threads))
	for t := range s.threads {
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i] < threads[j] })
	return threads
}
