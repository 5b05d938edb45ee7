package model

import "time"

// Job is one admitted spreadsheet on its way through the build pipeline.
// It is owned by the goroutine driving it; nothing else mutates it.
type Job struct {
	JobID    string `json:"job_id"`
	Index    int    `json:"index"`
	SpecPath string `json:"spec_path"`

	Stage     string `json:"stage"`
	Attempt   int    `json:"attempt,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Outcome is the single terminal record a job leaves behind.
type Outcome struct {
	JobID        string        `json:"job_id"`
	Succeeded    bool          `json:"succeeded"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	FailedStage  string        `json:"failed_stage,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Attempts     int           `json:"attempts,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
}

// RunSummary is the consolidated result of one run. Outcomes holds exactly
// one entry per admitted job; it is immutable once finalized.
type RunSummary struct {
	RunID     string             `json:"run_id"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Cancelled int                `json:"cancelled"`
	TotalTime time.Duration      `json:"total_time_ns"`
	Outcomes  map[string]Outcome `json:"outcomes"`
}

// FailureGroups buckets failed outcomes by failing stage, then by reason,
// for the scannable end-of-run report. Cancelled jobs group under the
// cancelled stage like any other non-success.
func (s RunSummary) FailureGroups() map[string]map[string][]string {
	groups := make(map[string]map[string][]string)
	for id, o := range s.Outcomes {
		if o.Succeeded {
			continue
		}
		stage := o.FailedStage
		if stage == "" {
			stage = StageFailed
		}
		reason := o.Reason
		if reason == "" {
			reason = "unknown"
		}
		if groups[stage] == nil {
			groups[stage] = make(map[string][]string)
		}
		groups[stage][reason] = append(groups[stage][reason], id)
	}
	return groups
}

// AverageDuration reports the mean wall time of successful jobs, zero when
// none succeeded.
func (s RunSummary) AverageDuration() time.Duration {
	var total time.Duration
	n := 0
	for _, o := range s.Outcomes {
		if !o.Succeeded {
			continue
		}
		total += o.Duration
		n++
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
