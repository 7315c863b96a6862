package clicks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/internal/events"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/links"
)

type fakeCounters struct {
	incFn    func(ctx context.Context, urlID string) error
	incCalls []string
}

func (f *fakeCounters) IncClickCount(ctx context.Context, urlID string) error {
	f.incCalls = append(f.incCalls, urlID)
	if f.incFn != nil {
		return f.incFn(ctx, urlID)
	}
	return nil
}

type fakeEventStore struct {
	insertFn func(ctx context.Context, event *links.ClickEvent) error
	inserted []*links.ClickEvent
}

func (f *fakeEventStore) InsertEvent(ctx context.Context, event *links.ClickEvent) error {
	f.inserted = append(f.inserted, event)
	if f.insertFn != nil {
		return f.insertFn(ctx, event)
	}
	return nil
}

type fakePublisher struct {
	published []events.ClickRecorded
}

func (f *fakePublisher) Publish(_ context.Context, event events.ClickRecorded) error {
	f.published = append(f.published, event)
	return nil
}

func inlineRecorder(counters CounterStore, eventRepo EventStore, publisher Publisher) *Recorder {
	r := NewRecorder(counters, eventRepo, publisher)
	r.dispatch = func(fn func()) { fn() }
	r.now = func() time.Time { return time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC) }
	return r
}

func TestRecord_WritesCounterEventAndStream(t *testing.T) {
	counters := &fakeCounters{}
	eventStore := &fakeEventStore{}
	publisher := &fakePublisher{}
	r := inlineRecorder(counters, eventStore, publisher)

	r.Record("url-1", "abc1234", "https://ref.example", "curl/8.0")

	if len(counters.incCalls) != 1 || counters.incCalls[0] != "url-1" {
		t.Fatalf("counter calls = %v, want one call for url-1", counters.incCalls)
	}

	if len(eventStore.inserted) != 1 {
		t.Fatalf("inserted %d events, want 1", len(eventStore.inserted))
	}
	got := eventStore.inserted[0]
	if got.URLID != "url-1" || got.Referrer != "https://ref.example" || got.UserAgent != "curl/8.0" {
		t.Errorf("unexpected event %+v", got)
	}
	if got.EventID == "" {
		t.Error("event id must be populated")
	}
	if !got.ClickedAt.Equal(time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("clickedAt = %v", got.ClickedAt)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(publisher.published))
	}
	msg := publisher.published[0]
	if msg.Code != "abc1234" || msg.URLID != "url-1" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.EventID != got.EventID {
		t.Error("stream message must carry the same event id as the stored event")
	}
	if msg.OccurredAt != "2026-03-15T09:30:00Z" {
		t.Errorf("occurredAt = %q", msg.OccurredAt)
	}
}

func TestRecord_RepeatedClicksAreDistinctEvents(t *testing.T) {
	counters := &fakeCounters{}
	eventStore := &fakeEventStore{}
	r := inlineRecorder(counters, eventStore, nil)

	// Click tracking is not idempotent: the same visitor hitting the same
	// link twice is two clicks. Each call bumps the counter and lands as a
	// separate event under its own id, so the store never dedups them.
	r.Record("url-1", "abc1234", "", "curl/8.0")
	r.Record("url-1", "abc1234", "", "curl/8.0")

	if len(counters.incCalls) != 2 {
		t.Fatalf("counter calls = %d, want 2", len(counters.incCalls))
	}
	if len(eventStore.inserted) != 2 {
		t.Fatalf("inserted %d events, want 2", len(eventStore.inserted))
	}
	first, second := eventStore.inserted[0], eventStore.inserted[1]
	if first.EventID == "" || first.EventID == second.EventID {
		t.Errorf("event ids %q and %q must be distinct", first.EventID, second.EventID)
	}
}

func TestRecord_CounterFailureStillInsertsEvent(t *testing.T) {
	counters := &fakeCounters{
		incFn: func(context.Context, string) error { return errors.New("mongo down") },
	}
	eventStore := &fakeEventStore{}
	r := inlineRecorder(counters, eventStore, nil)

	r.Record("url-2", "zzz9999", "", "")

	if len(eventStore.inserted) != 1 {
		t.Fatalf("inserted %d events, want 1 despite counter failure", len(eventStore.inserted))
	}
}

func TestRecord_NilDependenciesAreSkipped(t *testing.T) {
	r := inlineRecorder(nil, nil, nil)

	// Must not panic.
	r.Record("url-3", "abc0000", "", "")
}
