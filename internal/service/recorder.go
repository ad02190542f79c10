package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shortlyhq/shortly/internal/models"
)

const (
	defaultVisitWorkers = 3
	defaultVisitBuffer  = 1024
	visitWriteTimeout   = 5 * time.Second
)

type visitStore interface {
	RecordVisit(ctx context.Context, linkID string, info models.VisitorInfo) error
}

type visitEvent struct {
	linkID string
	info   models.VisitorInfo
}

// VisitRecorder writes visit records in the background so a redirect never
// waits on, or fails because of, analytics persistence. Events are queued
// on a buffered channel and drained by a small worker pool; when the buffer
// is full the event is dropped with a warning rather than blocking the
// request.
type VisitRecorder struct {
	store   visitStore
	logger  *slog.Logger
	events  chan visitEvent
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewVisitRecorder(store visitStore, logger *slog.Logger) *VisitRecorder {
	return &VisitRecorder{
		store:   store,
		logger:  logger,
		events:  make(chan visitEvent, defaultVisitBuffer),
		workers: defaultVisitWorkers,
	}
}

// Start launches the worker pool.
func (r *VisitRecorder) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

// Stop signals the workers to finish and waits for them. Events already
// queued are drained and written out before the workers exit.
func (r *VisitRecorder) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Record queues a visit for persistence. It never blocks: when the buffer
// is full the visit is lost and a warning is logged.
func (r *VisitRecorder) Record(linkID string, info models.VisitorInfo) {
	select {
	case r.events <- visitEvent{linkID: linkID, info: info}:
	default:
		r.logger.Warn("visit buffer full, dropping event", slog.String("link_id", linkID))
	}
}

func (r *VisitRecorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			// Drain what was already queued before exiting.
			for {
				select {
				case ev := <-r.events:
					r.process(ev)
				default:
					return
				}
			}
		case ev := <-r.events:
			r.process(ev)
		}
	}
}

func (r *VisitRecorder) process(ev visitEvent) {
	// Detached from the request context: an abandoned redirect must not
	// cancel a write that was already issued.
	ctx, cancel := context.WithTimeout(context.Background(), visitWriteTimeout)
	defer cancel()

	if err := r.store.RecordVisit(ctx, ev.linkID, ev.info); err != nil {
		r.logger.Error("failed to record visit",
			slog.String("link_id", ev.linkID),
			slog.Any("err", err),
		)
	}
}
