// Package pipeline drives spec spreadsheets through the remote build
// service: authenticate, submit, poll, download. It owns the concurrency
// discipline of a run; everything remote or on-disk comes in behind small
// interfaces.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"truckbuild/internal/auth"
	"truckbuild/internal/board"
	"truckbuild/internal/buildsvc"
	"truckbuild/internal/config"
	"truckbuild/internal/gate"
	"truckbuild/internal/model"
)

// Item is one admitted input: a spreadsheet and its run-unique job id.
type Item struct {
	JobID    string
	SpecPath string
}

// Builder is the remote build service surface the pipeline consumes. All
// methods must be safe to retry on transient failures; the worst case is
// duplicate remote-side work.
type Builder interface {
	FetchSpecDetails(ctx context.Context, token string, specIDs []string) (map[string]json.RawMessage, error)
	Submit(ctx context.Context, token string, req buildsvc.SubmitRequest) (string, error)
	PollBuild(ctx context.Context, token, handle string) (buildsvc.BuildStatus, error)
	Download(ctx context.Context, token, resultURL string) ([]byte, error)
}

// TokenSource hands out the shared credential and accepts rejection reports.
type TokenSource interface {
	Token(ctx context.Context) (auth.Credential, error)
	Invalidate(token string)
}

// SpecReader turns one spreadsheet into a submission payload. Parse failures
// are terminal; the pipeline never retries them.
type SpecReader interface {
	Read(path string) (buildsvc.SubmitRequest, error)
}

// Sink persists a finished artifact. Write failures are terminal.
type Sink interface {
	Write(jobID string, data []byte) (string, error)
}

// Reporter receives fire-and-forget stage transitions.
type Reporter interface {
	Publish(board.Update)
}

type Options struct {
	RunID  string
	Items  []Item
	Config config.Config

	Builder Builder
	Tokens  TokenSource
	Specs   SpecReader
	Sink    Sink
	Board   Reporter
	Log     *zap.Logger
}

// Run drives every item to exactly one terminal outcome and returns the
// consolidated summary. Job failures never fail the run; only a broken
// initial login or an empty item list does. A cancelled context drains
// in-flight jobs into cancelled outcomes instead of abandoning them.
func Run(ctx context.Context, opts Options) (model.RunSummary, error) {
	if len(opts.Items) == 0 {
		return model.RunSummary{}, errors.New("no input items")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	// Prime the credential once before admitting jobs so the first wave
	// shares one login instead of stampeding the auth endpoint.
	if _, err := opts.Tokens.Token(ctx); err != nil {
		return model.RunSummary{}, errors.Wrap(err, "initial authentication")
	}

	g := gate.New(opts.Config.Concurrency)
	agg := newAggregator(log)
	start := time.Now()

	var wg sync.WaitGroup
	for i, item := range opts.Items {
		wg.Add(1)
		go func(index int, item Item) {
			defer wg.Done()

			job := model.Job{
				JobID:    item.JobID,
				Index:    index + 1,
				SpecPath: item.SpecPath,
				Stage:    model.StageQueued,
			}
			r := &jobRunner{
				job:     job,
				cfg:     opts.Config,
				builder: opts.Builder,
				tokens:  opts.Tokens,
				specs:   opts.Specs,
				sink:    opts.Sink,
				board:   opts.Board,
				log:     log.With(zap.String("job_id", job.JobID)),
			}
			r.publish("waiting for slot")

			if err := g.Acquire(ctx); err != nil {
				agg.record(r.cancelledOutcome(time.Now(), "run aborted before admission"))
				return
			}
			// The slot is held for the whole job and given back exactly
			// once, on the terminal transition.
			defer g.Release()

			agg.record(r.run(ctx))
		}(i, item)
	}
	wg.Wait()

	return agg.finalize(opts.RunID, len(opts.Items), time.Since(start)), nil
}
