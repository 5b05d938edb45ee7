package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"truckbuild/internal/board"
	"truckbuild/internal/buildsvc"
	"truckbuild/internal/config"
	"truckbuild/internal/model"
)

// errReauthFailed marks stage errors caused by a failed re-authentication.
// Those terminate the job at the authenticating stage regardless of where
// the original rejection happened.
var errReauthFailed = errors.New("re-authentication failed")

// jobRunner drives one job through the stage sequence. It is single-owner:
// only its goroutine touches the embedded Job.
type jobRunner struct {
	job     model.Job
	cfg     config.Config
	builder Builder
	tokens  TokenSource
	specs   SpecReader
	sink    Sink
	board   Reporter
	log     *zap.Logger

	maxAttempt int
}

func (r *jobRunner) run(ctx context.Context) model.Outcome {
	start := time.Now()

	if err := r.transition(model.StageAuthenticating, ""); err != nil {
		return r.failedOutcome(ctx, start, err)
	}
	if _, err := r.tokens.Token(ctx); err != nil {
		return r.failedOutcome(ctx, start, errors.Mark(err, errReauthFailed))
	}

	// Fetching: parse the spreadsheet, resolve single-spec details, submit.
	if err := r.transition(model.StageFetching, "reading specs"); err != nil {
		return r.failedOutcome(ctx, start, err)
	}
	req, err := r.specs.Read(r.job.SpecPath)
	if err != nil {
		return r.failedOutcome(ctx, start, err)
	}

	var handle string
	err = r.callStage(ctx, "submitting", func(ctx context.Context, token string) error {
		if ids := ggSpecIDs(req.Items); len(ids) > 0 {
			details, err := r.builder.FetchSpecDetails(ctx, token, ids)
			if err != nil {
				return err
			}
			for i := range req.Items {
				if req.Items[i].GG {
					req.Items[i].SpecDetail = details[req.Items[i].SpecID]
				}
			}
		}
		h, err := r.builder.Submit(ctx, token, req)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		return r.failedOutcome(ctx, start, err)
	}

	// Building: poll until the remote build settles or the poll window
	// closes.
	if err := r.transition(model.StageBuilding, "waiting for build"); err != nil {
		return r.failedOutcome(ctx, start, err)
	}
	resultURL, err := r.awaitBuild(ctx, handle)
	if err != nil {
		return r.failedOutcome(ctx, start, err)
	}

	// Downloading: fetch the artifact and persist it.
	if err := r.transition(model.StageDownloading, "downloading artifact"); err != nil {
		return r.failedOutcome(ctx, start, err)
	}
	var data []byte
	err = r.callStage(ctx, "downloading artifact", func(ctx context.Context, token string) error {
		d, err := r.builder.Download(ctx, token, resultURL)
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	if err != nil {
		return r.failedOutcome(ctx, start, err)
	}
	artifactPath, err := r.sink.Write(r.job.JobID, data)
	if err != nil {
		return r.failedOutcome(ctx, start, errors.Wrap(err, "persist artifact"))
	}

	if err := r.transition(model.StageSucceeded, ""); err != nil {
		return r.failedOutcome(ctx, start, err)
	}
	r.log.Info("job succeeded",
		zap.String("artifact", artifactPath),
		zap.Duration("elapsed", time.Since(start)))
	return model.Outcome{
		JobID:        r.job.JobID,
		Succeeded:    true,
		ArtifactPath: artifactPath,
		Attempts:     r.maxAttempt,
		Duration:     time.Since(start),
	}
}

// awaitBuild polls the build until ready or failed. Transient poll errors
// consume stage budget; a successful poll restores it. The poll window is
// bounded so a build stuck pending cannot hang the run.
func (r *jobRunner) awaitBuild(ctx context.Context, handle string) (string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, r.cfg.PollTimeout)
	defer cancel()

	for {
		var status buildsvc.BuildStatus
		err := r.callStage(pollCtx, "waiting for build", func(ctx context.Context, token string) error {
			s, err := r.builder.PollBuild(ctx, token, handle)
			if err != nil {
				return err
			}
			status = s
			return nil
		})
		if err != nil {
			if pollCtx.Err() != nil && ctx.Err() == nil {
				return "", errors.Newf("build still pending after %s", r.cfg.PollTimeout)
			}
			return "", err
		}
		r.job.Attempt = 0

		switch status.State {
		case buildsvc.BuildReady:
			return status.ResultURL, nil
		case buildsvc.BuildFailed:
			reason := status.Reason
			if reason == "" {
				reason = "build failed"
			}
			return "", errors.Wrapf(buildsvc.ErrRejected, "%s", reason)
		}

		select {
		case <-time.After(r.cfg.PollInterval):
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", errors.Newf("build still pending after %s", r.cfg.PollTimeout)
		}
	}
}

// callStage runs one remote operation under the stage retry policy:
// transient failures retry with exponential backoff up to the attempt
// ceiling; a credential rejection invalidates the used token and retries
// immediately after re-authenticating, once per stage without consuming
// budget — further rejections count against the ceiling like transient
// failures; anything else is terminal for the job.
func (r *jobRunner) callStage(ctx context.Context, label string, fn func(ctx context.Context, token string) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.BackoffInitial
	bo.MaxInterval = r.cfg.BackoffMax
	bo.Reset()

	freeAuthRetry := true
	for {
		r.job.Attempt++
		if r.job.Attempt > r.maxAttempt {
			r.maxAttempt = r.job.Attempt
		}
		r.publish(label)

		cred, err := r.tokens.Token(ctx)
		if err != nil {
			return errors.Mark(err, errReauthFailed)
		}

		err = fn(ctx, cred.Token)
		switch {
		case err == nil:
			return nil

		case ctx.Err() != nil:
			return err

		case buildsvc.IsAuth(err):
			r.tokens.Invalidate(cred.Token)
			if freeAuthRetry {
				freeAuthRetry = false
				r.job.Attempt--
			} else {
				// A fresh credential was already rejected once; further
				// rejections burn the stage budget like transient failures.
				if r.job.Attempt >= r.cfg.StageAttempts {
					return errors.Wrapf(err, "gave up after %d attempts", r.job.Attempt)
				}
				wait := bo.NextBackOff()
				r.log.Warn("fresh credential rejected, backing off",
					zap.String("stage", r.job.Stage),
					zap.Int("attempt", r.job.Attempt),
					zap.Duration("backoff", wait))
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			r.log.Warn("credential rejected, re-authenticating",
				zap.String("stage", r.job.Stage))
			if _, err := r.tokens.Token(ctx); err != nil {
				return errors.Mark(err, errReauthFailed)
			}

		case buildsvc.IsTransient(err):
			if r.job.Attempt >= r.cfg.StageAttempts {
				return errors.Wrapf(err, "gave up after %d attempts", r.job.Attempt)
			}
			wait := bo.NextBackOff()
			r.log.Warn("transient failure, backing off",
				zap.String("stage", r.job.Stage),
				zap.Int("attempt", r.job.Attempt),
				zap.Duration("backoff", wait),
				zap.Error(err))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}

		default:
			return err
		}
	}
}

func (r *jobRunner) transition(stage, label string) error {
	if err := model.TransitionJob(&r.job, stage); err != nil {
		return err
	}
	r.publish(label)
	return nil
}

func (r *jobRunner) publish(label string) {
	r.board.Publish(board.Update{
		JobID:   r.job.JobID,
		Stage:   r.job.Stage,
		Attempt: r.job.Attempt,
		Label:   label,
	})
}

// failedOutcome converts any stage error into the job's terminal record. A
// cancelled run context wins over every other classification.
func (r *jobRunner) failedOutcome(ctx context.Context, start time.Time, err error) model.Outcome {
	if ctx.Err() != nil || errors.IsAny(err, context.Canceled, context.DeadlineExceeded) {
		return r.cancelledOutcome(start, "run aborted")
	}

	failedStage := r.job.Stage
	if errors.Is(err, errReauthFailed) {
		failedStage = model.StageAuthenticating
	}
	attempts := r.job.Attempt

	if trErr := model.TransitionJob(&r.job, model.StageFailed); trErr != nil {
		r.log.Error("terminal transition rejected", zap.Error(trErr))
	}
	r.job.LastError = err.Error()
	r.publish(err.Error())
	r.log.Warn("job failed",
		zap.String("stage", failedStage),
		zap.Int("attempts", attempts),
		zap.Error(err))

	return model.Outcome{
		JobID:       r.job.JobID,
		FailedStage: failedStage,
		Reason:      err.Error(),
		Attempts:    attempts,
		Duration:    time.Since(start),
	}
}

func (r *jobRunner) cancelledOutcome(start time.Time, reason string) model.Outcome {
	if trErr := model.TransitionJob(&r.job, model.StageCancelled); trErr != nil {
		r.log.Error("terminal transition rejected", zap.Error(trErr))
	}
	r.publish(reason)
	return model.Outcome{
		JobID:       r.job.JobID,
		Cancelled:   true,
		FailedStage: model.StageCancelled,
		Reason:      reason,
		Duration:    time.Since(start),
	}
}

func ggSpecIDs(items []buildsvc.BuildItem) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, item := range items {
		if !item.GG || seen[item.SpecID] {
			continue
		}
		seen[item.SpecID] = true
		ids = append(ids, item.SpecID)
	}
	return ids
}
