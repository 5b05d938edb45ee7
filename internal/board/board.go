// Package board renders live multi-row run progress. Jobs publish stage
// transitions fire-and-forget; rendering never blocks a job.
package board

import (
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"truckbuild/internal/model"
)

// Board feeds job progress to either a bubbletea program (interactive
// terminals) or plain log lines (pipes, CI).
type Board struct {
	prog *tea.Program
	log  *zap.Logger
	done chan struct{}
}

// New builds a board for the given number of jobs. With interactive=false
// every transition becomes one structured log line instead.
func New(interactive bool, total int, log *zap.Logger) *Board {
	b := &Board{log: log, done: make(chan struct{})}
	if !interactive {
		close(b.done)
		return b
	}
	b.prog = tea.NewProgram(newBoardModel(total))
	go func() {
		defer close(b.done)
		_, _ = b.prog.Run()
	}()
	return b
}

// Publish records one stage transition. Never blocks job progress beyond the
// program's own message intake.
func (b *Board) Publish(u Update) {
	if b.prog != nil {
		b.prog.Send(u)
		return
	}
	fields := []zap.Field{
		zap.String("job_id", u.JobID),
		zap.String("stage", u.Stage),
	}
	if u.Attempt > 1 {
		fields = append(fields, zap.Int("attempt", u.Attempt))
	}
	if u.Label != "" {
		fields = append(fields, zap.String("detail", u.Label))
	}
	switch u.Stage {
	case model.StageFailed:
		b.log.Warn("job failed", fields...)
	case model.StageCancelled:
		b.log.Info("job cancelled", fields...)
	case model.StageSucceeded:
		b.log.Info("job done", fields...)
	default:
		b.log.Info("job progress", fields...)
	}
}

// Stop performs the final render and shuts the program down. Safe to call
// once all jobs have reached a terminal stage.
func (b *Board) Stop() {
	if b.prog != nil {
		b.prog.Send(stopMsg{})
	}
	<-b.done
}
