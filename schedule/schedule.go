// Package schedule triggers the push engine's full-push entrypoint on a
// cron schedule, and lets the schedule be changed live without a restart.
package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/docuhub/gsadapt/common"
)

// Pusher is the subset of push.Engine the scheduler needs.
type Pusher interface {
	TriggerFullPush(ctx context.Context) error
}

// Scheduler wraps a robfig/cron/v3 instance with a single live entry for
// the full-push job, so changing adaptor.fullListingSchedule at runtime
// only has to remove and re-add that one entry.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	entry  cron.EntryID
	hasJob bool
	pusher Pusher
	logger *common.ContextLogger
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Scheduler bound to a Pusher. Call Start to begin
// running the cron loop.
func New(pusher Pusher) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		pusher: pusher,
		logger: common.ServiceLogger("schedule"),
	}
}

// Start begins the underlying cron loop with the given spec (e.g. "@daily"
// per adaptor.fullListingSchedule's default).
func (s *Scheduler) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(context.Background())

	id, err := s.cron.AddFunc(spec, s.runPush)
	if err != nil {
		return fmt.Errorf("schedule: invalid cron spec %q: %w", spec, err)
	}
	s.entry = id
	s.hasJob = true
	s.cron.Start()
	s.logger.WithField("spec", spec).Info("scheduler started")
	return nil
}

// Reschedule swaps the live entry's spec without stopping the cron loop,
// so a config-file change can take effect without a process restart.
func (s *Scheduler) Reschedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasJob {
		s.cron.Remove(s.entry)
	}
	id, err := s.cron.AddFunc(spec, s.runPush)
	if err != nil {
		return fmt.Errorf("schedule: invalid cron spec %q: %w", spec, err)
	}
	s.entry = id
	s.hasJob = true
	s.logger.WithField("spec", spec).Info("scheduler rescheduled")
	return nil
}

func (s *Scheduler) runPush() {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.pusher.TriggerFullPush(ctx); err != nil {
		s.logger.WithError(err).Warn("scheduled full push did not complete cleanly")
	}
}

// Stop removes the scheduled entry then blocks until any in-flight job's
// context has been observed canceled and the cron loop has drained —
// cancellation steps 1 and 3 of the process shutdown sequence.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.hasJob {
		s.cron.Remove(s.entry)
		s.hasJob = false
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}
