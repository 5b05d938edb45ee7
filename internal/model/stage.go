package model

import "github.com/cockroachdb/errors"

const (
	StageQueued         = "queued"
	StageAuthenticating = "authenticating"
	StageFetching       = "fetching"
	StageBuilding       = "building"
	StageDownloading    = "downloading"
	StageSucceeded      = "succeeded"
	StageFailed         = "failed"
	StageCancelled      = "cancelled"
)

// allowedTransitions encodes the pipeline order. Failure and cancellation are
// reachable from every non-terminal stage; nothing leaves a terminal stage.
var allowedTransitions = map[string]map[string]bool{
	StageQueued: {
		StageAuthenticating: true,
		StageFailed:         true,
		StageCancelled:      true,
	},
	StageAuthenticating: {
		StageFetching:  true,
		StageFailed:    true,
		StageCancelled: true,
	},
	StageFetching: {
		StageBuilding:  true,
		StageFailed:    true,
		StageCancelled: true,
	},
	StageBuilding: {
		StageDownloading: true,
		StageFailed:      true,
		StageCancelled:   true,
	},
	StageDownloading: {
		StageSucceeded: true,
		StageFailed:    true,
		StageCancelled: true,
	},
	StageSucceeded: {},
	StageFailed:    {},
	StageCancelled: {},
}

func IsKnownStage(stage string) bool {
	_, ok := allowedTransitions[stage]
	return ok
}

func IsTerminalStage(stage string) bool {
	switch stage {
	case StageSucceeded, StageFailed, StageCancelled:
		return true
	}
	return false
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// TransitionJob advances the job to the given stage and resets the per-stage
// attempt counter. Attempts are re-counted from one inside each stage.
func TransitionJob(job *Job, toStage string) error {
	if !CanTransition(job.Stage, toStage) {
		return errors.Newf("invalid job stage transition: %q -> %q (job_id=%s)", job.Stage, toStage, job.JobID)
	}
	job.Stage = toStage
	job.Attempt = 0
	return nil
}
