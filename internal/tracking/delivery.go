package tracking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cheapfinder/backend/internal/model"
)

const deliveryBuffer = 64

type queuedEvent struct {
	ctx   context.Context
	event model.AlertEvent
	log   *slog.Logger
}

// deliveryQueue hands alert events from scrape tasks to a few delivery
// workers, so a slow transport never holds a scrape slot. Events are
// delivered under their own timeout, detached from the run's cancellation;
// whatever a timeout cuts short stays pending and is resumed by the next run.
type deliveryQueue struct {
	dispatcher Dispatcher
	timeout    time.Duration
	events     chan queuedEvent
	wg         sync.WaitGroup
}

// startDeliveries returns nil when there is no dispatcher.
func (o *Orchestrator) startDeliveries() *deliveryQueue {
	if o.dispatcher == nil {
		return nil
	}
	q := &deliveryQueue{
		dispatcher: o.dispatcher,
		timeout:    o.config.DispatchTimeout,
		events:     make(chan queuedEvent, deliveryBuffer),
	}
	for i := 0; i < o.config.DispatchWorkers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

func (q *deliveryQueue) enqueue(ctx context.Context, event model.AlertEvent, log *slog.Logger) {
	if q == nil {
		return
	}
	q.events <- queuedEvent{ctx: ctx, event: event, log: log}
}

func (q *deliveryQueue) work() {
	defer q.wg.Done()
	for item := range q.events {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(item.ctx), q.timeout)
		err := q.dispatcher.Dispatch(ctx, item.event)
		cancel()
		if err != nil {
			item.log.Warn("Alert delivery incomplete",
				slog.Int64("event_id", item.event.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// close waits for every queued event to be handled.
func (q *deliveryQueue) close() {
	if q == nil {
		return
	}
	close(q.events)
	q.wg.Wait()
}
