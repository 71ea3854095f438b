package api

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// flakyQueueStore fails the first n EnqueueEvents calls, then succeeds.
type flakyQueueStore struct {
	*mockStore
	qmu      sync.Mutex
	calls    int
	failures int
	done     chan struct{}
}

func (s *flakyQueueStore) EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return fmt.Errorf("transient queue error %d", s.calls)
	}
	if s.done != nil {
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}
	return s.mockStore.EnqueueEvents(ctx, userID, events)
}

func (s *flakyQueueStore) callCount() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.calls
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	store := &flakyQueueStore{mockStore: newMockStore(), failures: 2}
	pubStore = store
	pubLog = log.New()
	pubTimeout = time.Second
	pubMaxAttempts = 5
	t.Cleanup(shutdownEventPublisher)

	deliver(publishJob{userID: "u1", events: []domain.Event{{ID: "e1"}}})

	if store.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.callCount())
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.events) != 1 || store.events[0].ID != "e1" {
		t.Fatalf("event not delivered: %+v", store.events)
	}
}

func TestDeliverDropsAfterMaxAttempts(t *testing.T) {
	store := &flakyQueueStore{mockStore: newMockStore(), failures: 100}
	pubStore = store
	pubLog = log.New()
	pubTimeout = time.Second
	pubMaxAttempts = 2
	t.Cleanup(shutdownEventPublisher)

	deliver(publishJob{userID: "u1", events: []domain.Event{{ID: "e1"}}})

	if store.callCount() != 2 {
		t.Fatalf("expected exactly 2 attempts before the drop, got %d", store.callCount())
	}
}

func TestPublisherDeliversInBackground(t *testing.T) {
	store := &flakyQueueStore{mockStore: newMockStore(), done: make(chan struct{})}
	initEventPublisher(store, log.New())
	t.Cleanup(shutdownEventPublisher)

	if !tryPublish(publishJob{userID: "u1", events: []domain.Event{{ID: "e1"}}}) {
		t.Fatal("expected job to be accepted")
	}

	select {
	case <-store.done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered in the background")
	}
}

func TestTryPublishWithoutInit(t *testing.T) {
	shutdownEventPublisher()
	if tryPublish(publishJob{userID: "u1"}) {
		t.Fatal("expected tryPublish to refuse without a running publisher")
	}
}

func TestPublishWriteEventFallsBackInline(t *testing.T) {
	shutdownEventPublisher()
	store := newMockStore()
	e := echo.New()

	publishWriteEvent(store, e.Logger, "u1", newEvent("task", "t1", domain.EventTaskCreated, map[string]string{"title": "Fix bug"}))

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.events) != 1 {
		t.Fatalf("expected inline delivery, got %d events", len(store.events))
	}
}

func TestNewEventShape(t *testing.T) {
	ev := newEvent("task", "t1", domain.EventTaskCreated, map[string]string{"title": "Fix bug"})

	if ev.ID == "" || ev.Timestamp == 0 {
		t.Fatalf("missing identity fields: %+v", ev)
	}
	if ev.EntityType != "task" || ev.EntityID != "t1" || ev.Type != domain.EventTaskCreated {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !strings.Contains(string(ev.Data), "Fix bug") {
		t.Fatalf("payload not marshalled: %s", ev.Data)
	}
}

func TestExponentialBackoffBounds(t *testing.T) {
	initial := 250 * time.Millisecond
	max := time.Second

	for attempt := 1; attempt <= 10; attempt++ {
		d := exponentialBackoff(attempt, initial, max)
		if d < 0 {
			t.Fatalf("attempt %d: negative backoff %v", attempt, d)
		}
		if d > time.Duration(float64(max)*1.2) {
			t.Fatalf("attempt %d: backoff %v above jittered cap", attempt, d)
		}
	}
	if d := exponentialBackoff(0, initial, max); d != initial {
		t.Fatalf("attempt 0 should return the initial delay, got %v", d)
	}
}
