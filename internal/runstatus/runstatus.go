package runstatus

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// RunStatus carries per-run state through the pipeline: a run id for
// correlating load-error rows, the verbosity flag and the operation
// counters printed as the final tally.
type RunStatus struct {
	RunID   string
	Verbose bool

	Stored int
	Tagged int
	Dupes  int
	Failed int
}

func New(verbose bool) *RunStatus {
	id, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 12)
	if err != nil {
		panic(err)
	}
	return &RunStatus{
		RunID:   "run_" + id,
		Verbose: verbose,
	}
}

func (r *RunStatus) Summary() string {
	return fmt.Sprintf("%d stored, %d new-list tagged, %d dupes, %d failed",
		r.Stored, r.Tagged, r.Dupes, r.Failed)
}
