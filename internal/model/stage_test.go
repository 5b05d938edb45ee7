package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StageQueued, StageAuthenticating},
		{StageAuthenticating, StageFetching},
		{StageFetching, StageBuilding},
		{StageBuilding, StageDownloading},
		{StageDownloading, StageSucceeded},
		{StageQueued, StageCancelled},
		{StageFetching, StageFailed},
		{StageBuilding, StageCancelled},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StageQueued, StageBuilding},
		{StageFetching, StageDownloading},
		{StageSucceeded, StageFailed},
		{StageFailed, StageAuthenticating},
		{StageCancelled, StageQueued},
		{"not_a_stage", StageQueued},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionJob_ResetsAttemptCounter(t *testing.T) {
	job := Job{JobID: "alpha", Stage: StageFetching, Attempt: 3}
	if err := TransitionJob(&job, StageBuilding); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if job.Attempt != 0 {
		t.Fatalf("expected attempt counter reset, got %d", job.Attempt)
	}
}

func TestTransitionJob_BlocksIllegalTransition(t *testing.T) {
	job := Job{JobID: "alpha", Stage: StageSucceeded}
	if err := TransitionJob(&job, StageFetching); err == nil {
		t.Fatalf("expected illegal transition error")
	}
}

func TestFailureGroups_BucketsByStageAndReason(t *testing.T) {
	s := RunSummary{Outcomes: map[string]Outcome{
		"a": {JobID: "a", Succeeded: true},
		"b": {JobID: "b", FailedStage: StageBuilding, Reason: "spec rejected"},
		"c": {JobID: "c", FailedStage: StageBuilding, Reason: "spec rejected"},
		"d": {JobID: "d", FailedStage: StageFetching, Reason: "timeout"},
	}}

	groups := s.FailureGroups()
	if len(groups) != 2 {
		t.Fatalf("expected 2 stage buckets, got %d", len(groups))
	}
	if got := len(groups[StageBuilding]["spec rejected"]); got != 2 {
		t.Fatalf("expected 2 jobs under building/spec rejected, got %d", got)
	}
	if got := len(groups[StageFetching]["timeout"]); got != 1 {
		t.Fatalf("expected 1 job under fetching/timeout, got %d", got)
	}
}
