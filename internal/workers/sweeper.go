package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/mroshb/tiktok_claims/pkg/logger"
)

type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]models.Claim, error)
}

type Submitter interface {
	Submit(event models.ClaimEvent) bool
}

// Sweeper periodically redelivers claims still unprocessed, covering events
// lost to crashes, full queues or store faults.
type Sweeper struct {
	lister    PendingLister
	submitter Submitter
	batchSize int
	interval  time.Duration
	scheduler gocron.Scheduler
}

func NewSweeper(lister PendingLister, submitter Submitter, interval time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		lister:    lister,
		submitter: submitter,
		batchSize: batchSize,
		interval:  interval,
	}
}

// SweepOnce submits one batch of pending claims and returns how many were accepted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	claims, err := s.lister.ListPending(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	accepted := 0
	for i := range claims {
		if !s.submitter.Submit(claims[i].Event()) {
			break
		}
		accepted++
	}
	return accepted, nil
}

// Start schedules SweepOnce every interval, starting immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			n, err := s.SweepOnce(ctx)
			if err != nil {
				logger.Error("Claim sweep failed", "error", err)
				return
			}
			if n > 0 {
				logger.Info("Redelivered pending claims", "count", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule claim sweep: %w", err)
	}

	s.scheduler = sched
	sched.Start()
	return nil
}

func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}
