package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"truckbuild/internal/model"
)

// aggregator collects terminal outcomes, one per job. A second record for
// the same job is a bug in the caller; it is logged and dropped so the
// first terminal state stands.
type aggregator struct {
	mu       sync.Mutex
	outcomes map[string]model.Outcome
	log      *zap.Logger
}

func newAggregator(log *zap.Logger) *aggregator {
	return &aggregator{
		outcomes: make(map[string]model.Outcome),
		log:      log,
	}
}

func (a *aggregator) record(o model.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.outcomes[o.JobID]; dup {
		a.log.Error("duplicate terminal outcome dropped", zap.String("job_id", o.JobID))
		return
	}
	a.outcomes[o.JobID] = o
}

func (a *aggregator) finalize(runID string, total int, elapsed time.Duration) model.RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := model.RunSummary{
		RunID:     runID,
		Total:     total,
		TotalTime: elapsed,
		Outcomes:  make(map[string]model.Outcome, len(a.outcomes)),
	}
	for id, o := range a.outcomes {
		s.Outcomes[id] = o
		switch {
		case o.Succeeded:
			s.Succeeded++
		case o.Cancelled:
			s.Cancelled++
		default:
			s.Failed++
		}
	}
	if len(s.Outcomes) != total {
		a.log.Error("outcome count does not match admitted jobs",
			zap.Int("outcomes", len(s.Outcomes)),
			zap.Int("total", total))
	}
	return s
}
