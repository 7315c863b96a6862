// Package clicks records redirect telemetry off the request path. A failed
// counter bump or event insert never affects the redirect outcome.
package clicks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Akmalwizdom/onyx-shortener/internal/events"
	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/logger"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/links"

	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// CounterStore bumps the aggregate click count on a link.
type CounterStore interface {
	IncClickCount(ctx context.Context, urlID string) error
}

// EventStore appends one row per click attempt.
type EventStore interface {
	InsertEvent(ctx context.Context, event *links.ClickEvent) error
}

// Publisher forwards click events to the streaming pipeline. Optional.
type Publisher interface {
	Publish(ctx context.Context, event events.ClickRecorded) error
}

type Recorder struct {
	counters  CounterStore
	eventRepo EventStore
	publisher Publisher
	now       func() time.Time

	// dispatch runs the deferred writes; tests swap it to run inline.
	dispatch func(func())
}

func NewRecorder(counters CounterStore, eventRepo EventStore, publisher Publisher) *Recorder {
	return &Recorder{
		counters:  counters,
		eventRepo: eventRepo,
		publisher: publisher,
		now:       time.Now,
		dispatch:  func(fn func()) { go fn() },
	}
}

// Record fires the counter bump and the event insert as two independent
// writes. Partial success is acceptable.
func (r *Recorder) Record(urlID, code, referrer, userAgent string) {
	occurredAt := r.now().UTC()
	eventID := uuid.NewString()

	r.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if r.counters != nil {
			if err := r.counters.IncClickCount(ctx, urlID); err != nil {
				logger.Warn("click count bump failed",
					zap.String("urlId", urlID),
					zap.String("code", code),
					zap.Error(err))
			}
		}

		if r.eventRepo != nil {
			event := &links.ClickEvent{
				EventID:   eventID,
				URLID:     urlID,
				Referrer:  referrer,
				UserAgent: userAgent,
				ClickedAt: occurredAt,
			}
			if err := r.eventRepo.InsertEvent(ctx, event); err != nil {
				logger.Warn("click event insert failed",
					zap.String("urlId", urlID),
					zap.String("code", code),
					zap.Error(err))
			}
		}

		if r.publisher != nil {
			msg := events.ClickRecorded{
				EventID:    eventID,
				Code:       code,
				URLID:      urlID,
				Referrer:   referrer,
				UserAgent:  userAgent,
				OccurredAt: occurredAt.Format(time.RFC3339),
			}
			if err := r.publisher.Publish(ctx, msg); err != nil {
				logger.Warn("click event publish failed",
					zap.String("code", code),
					zap.Error(err))
			}
		}
	})
}
