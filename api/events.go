package api

import (
	"context"
	"math"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// The publisher delivers post-commit write events to the event queue in the
// background. Events are advisory notifications for downstream read models:
// delivery retries with backoff, but a dropped event never rolls back or
// fails the write it describes.

type publishJob struct {
	userID string
	events []domain.Event
}

var (
	pubOnce        sync.Once
	pubJobs        chan publishJob
	pubStore       Storage
	pubLog         *log.Logger
	pubWG          sync.WaitGroup
	pubTimeout     time.Duration
	pubMaxAttempts int
	bg             = context.Background()
)

func initEventPublisher(store Storage, logger *log.Logger) {
	pubOnce.Do(func() {
		if store == nil {
			panic("storage is required")
		}
		if logger == nil {
			panic("logger is required")
		}
		pubStore = store
		pubLog = logger

		workers := envInt("EVENT_WORKERS", 4)
		buf := envInt("EVENT_BUFFER", 256)
		pubTimeout = envDur("EVENT_PUBLISH_TIMEOUT", 30*time.Second)
		pubMaxAttempts = envInt("EVENT_PUBLISH_ATTEMPTS", 5)
		if workers <= 0 {
			workers = 1
		}
		if buf <= 0 {
			buf = workers * 2
		}
		if pubMaxAttempts <= 0 {
			pubMaxAttempts = 1
		}

		pubJobs = make(chan publishJob, buf)
		for i := 0; i < workers; i++ {
			pubWG.Add(1)
			go publishWorker()
		}
	})
}

func publishWorker() {
	defer pubWG.Done()
	for job := range pubJobs {
		deliver(job)
	}
}

func deliver(job publishJob) {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(bg, pubTimeout)
		err := pubStore.EnqueueEvents(ctx, job.userID, job.events)
		cancel()
		if err == nil {
			return
		}
		if attempt+1 >= pubMaxAttempts {
			pubLog.WithError(err).Errorf("dropping %d write events, user=%s, attempts=%d", len(job.events), job.userID, attempt+1)
			return
		}
		pubLog.WithError(err).Warnf("event publish failed, user=%s, attempt=%d", job.userID, attempt+1)
		time.Sleep(exponentialBackoff(attempt+1, 250*time.Millisecond, 10*time.Second))
	}
}

func tryPublish(job publishJob) bool {
	if pubJobs == nil {
		return false
	}
	select {
	case pubJobs <- job:
		return true
	default:
		return false
	}
}

// publishWriteEvent hands a committed write's event to the background
// publisher, falling back to inline publication when the buffer is
// saturated so events are not silently dropped under load.
func publishWriteEvent(store Storage, logger echo.Logger, userID string, ev domain.Event) {
	job := publishJob{userID: userID, events: []domain.Event{ev}}
	if tryPublish(job) {
		return
	}

	if pubLog != nil {
		pubLog.Warn("event buffer saturated; publishing inline")
	}

	timeout := pubTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(bg, timeout)
	defer cancel()
	if err := store.EnqueueEvents(ctx, userID, job.events); err != nil {
		logger.Errorf("inline event publish failed: %v", err)
	}
}

func newEvent(entityType, entityID, evType string, payload any) domain.Event {
	data, err := sonic.Marshal(payload)
	if err != nil {
		data = nil
	}
	return domain.Event{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Type:       evType,
		Data:       sonic.NoCopyRawMessage(data),
		Timestamp:  nextTimestamp(),
	}
}

// shutdownEventPublisher stops worker goroutines and clears shared state. It is intended for tests.
func shutdownEventPublisher() {
	if pubJobs != nil {
		close(pubJobs)
		pubJobs = nil
	}

	pubWG.Wait()

	pubStore = nil
	pubLog = nil
	pubTimeout = 0
	pubMaxAttempts = 0
	pubOnce = sync.Once{}
	pubWG = sync.WaitGroup{}
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		if initial <= 0 {
			return time.Second
		}
		return initial
	}
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
