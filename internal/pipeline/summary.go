package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kolikaran1992/reddit-watcher/internal/batch"
)

// Summary aggregates what one run did, for logs and notification.
type Summary struct {
	RunID        string
	Pipeline     string
	BatchIndex   int
	TotalBatches int
	Processed    int
	Succeeded    int
	Failed       int
	Inserted     int
	Skipped      int
	Duration     time.Duration
}

func newSummary(pipeline string, snap *batch.Snapshot, processed int) *Summary {
	s := &Summary{
		RunID:     uuid.NewString(),
		Pipeline:  pipeline,
		Processed: processed,
	}
	if snap != nil {
		s.BatchIndex = snap.CurrentBatchIndex
		s.TotalBatches = snap.TotalBatches
	}
	return s
}

// Header is the notification title line.
func (s *Summary) Header() string {
	return fmt.Sprintf("Reddit Watcher: %s pipeline", s.Pipeline)
}

// Message renders the run summary in Slack mrkdwn.
func (s *Summary) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "> *Run Time:* %.1fs", s.Duration.Seconds())
	if s.TotalBatches > 0 {
		fmt.Fprintf(&b, "  |  *Batch:* %d/%d", s.BatchIndex+1, s.TotalBatches)
	}
	fmt.Fprintf(&b, "\n\n*Processed:* `%d`\n", s.Processed)
	fmt.Fprintf(&b, "*Inserted:* `%d`  |  *Skipped duplicates:* `%d`\n", s.Inserted, s.Skipped)
	fmt.Fprintf(&b, "• Succeeded: `%d`\n", s.Succeeded)
	fmt.Fprintf(&b, "• Failed: `%d`\n\n", s.Failed)
	if s.Failed == 0 {
		b.WriteString("_All good!_")
	} else {
		b.WriteString("_Some errors occurred. Check logs._")
	}
	fmt.Fprintf(&b, "\nrun id: `%s`", s.RunID)
	return b.String()
}
