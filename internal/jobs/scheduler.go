package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"bustrack/internal/tasks"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any) (string, error)
}

type Scheduler struct {
	cron          *cron.Cron
	queue         Enqueuer
	pruneSchedule string
	log           zerolog.Logger
}

func NewScheduler(queue Enqueuer, pruneSchedule string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:          c,
		queue:         queue,
		pruneSchedule: pruneSchedule,
		log:           log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.pruneSchedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.pruneSchedule, s.enqueuePrune); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.pruneSchedule).Msg("history prune scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running job, up to five seconds.
func (s *Scheduler) Stop() {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueuePrune() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The worker computes the cutoff from its own retention setting.
	id, err := s.queue.Enqueue(ctx, tasks.TypePrune, tasks.PruneTask{})
	if err != nil {
		s.log.Error().Err(err).Msg("enqueue prune failed")
		return
	}
	s.log.Debug().Str("message_id", id).Msg("prune enqueued")
}
