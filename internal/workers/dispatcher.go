package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/mroshb/tiktok_claims/internal/services"
	"github.com/mroshb/tiktok_claims/pkg/logger"
)

type ClaimHandler interface {
	Process(ctx context.Context, event models.ClaimEvent) (*models.ClaimOutcome, error)
}

// Dispatcher runs claim events on a fixed pool of workers. An event whose
// claim is already queued or running in this process is dropped; cross-process
// duplicates are left to the processor's idempotency.
type Dispatcher struct {
	handler  ClaimHandler
	queue    chan models.ClaimEvent
	workers  int
	inflight sync.Map // claimID -> struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(handler ClaimHandler, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		handler: handler,
		queue:   make(chan models.ClaimEvent, queueSize),
		workers: workers,
	}
}

// Submit enqueues an event without blocking. It returns false when the queue
// is full; the claim stays unprocessed and the next sweep picks it up.
func (d *Dispatcher) Submit(event models.ClaimEvent) bool {
	if _, loaded := d.inflight.LoadOrStore(event.ClaimID, struct{}{}); loaded {
		return true
	}

	select {
	case d.queue <- event:
		return true
	default:
		d.inflight.Delete(event.ClaimID)
		logger.Warn("Claim queue full, deferring to sweep", "claim_id", event.ClaimID)
		return false
	}
}

// Run processes events until ctx is cancelled, then waits for running claims.
func (d *Dispatcher) Run(ctx context.Context) error {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	<-ctx.Done()
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			// A started claim runs to completion even during shutdown.
			d.handle(context.WithoutCancel(ctx), event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event models.ClaimEvent) {
	defer d.inflight.Delete(event.ClaimID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Claim processing panicked", "claim_id", event.ClaimID, "panic", fmt.Sprint(r))
		}
	}()

	outcome, err := d.handler.Process(ctx, event)
	if err != nil {
		if services.IsRetryable(err) {
			logger.Error("Claim processing failed, will retry on next sweep", "claim_id", event.ClaimID, "error", err)
		} else {
			logger.Error("Claim processing failed", "claim_id", event.ClaimID, "error", err)
		}
		return
	}

	logger.Debug("Claim settled", "claim_id", outcome.ClaimID, "processed", outcome.Processed, "reason", outcome.Reason, "duplicate", outcome.Duplicate)
}
