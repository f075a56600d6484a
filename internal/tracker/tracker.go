package tracker

import (
	"context"
	"log"
	"time"

	"match-service/internal/models"
	"match-service/internal/service"
	"match-service/pkg/debounce"
)

// SaveFunc delivers one full progress snapshot to the server.
type SaveFunc func(ctx context.Context, snapshot *service.ProgressSnapshot) error

// Tracker keeps server-side progress approximately in sync with the client's
// answer state. Every Update re-arms a debounce timer so a burst of edits
// collapses into one save carrying the final snapshot. Last write wins; an
// in-flight save is never aborted, it is superseded by value.
type Tracker struct {
	save      SaveFunc
	debouncer *debounce.Debouncer
	onError   func(error)

	snapshot *service.ProgressSnapshot
}

// New builds a tracker with the given debounce delay (1s is the product
// default). onError receives save failures for a non-blocking warning; the
// next edit retries implicitly by re-triggering the save path.
func New(save SaveFunc, delay time.Duration, onError func(error)) *Tracker {
	if delay <= 0 {
		delay = time.Second
	}
	return &Tracker{
		save:      save,
		debouncer: debounce.New(delay),
		onError:   onError,
	}
}

// Update records the latest client state and schedules a debounced save.
// The snapshot is copied so later mutations by the caller do not race the
// pending write.
func (t *Tracker) Update(snapshot *service.ProgressSnapshot) {
	t.snapshot = copySnapshot(snapshot)

	pending := t.snapshot
	t.debouncer.Schedule(func() {
		t.deliver(context.Background(), pending)
	})
}

// Flush cancels any pending timer and saves synchronously. Called when the
// page becomes hidden.
func (t *Tracker) Flush(ctx context.Context) error {
	var err error
	t.debouncer.Flush(func() {
		if t.snapshot != nil {
			err = t.save(ctx, t.snapshot)
		}
	})
	return err
}

// Beacon is the unload path: fire-and-forget, at most once, no delivery
// guarantee. It never blocks the caller and drops any error.
func (t *Tracker) Beacon() {
	t.debouncer.Cancel()

	snapshot := t.snapshot
	if snapshot == nil {
		return
	}

	go func() {
		if err := t.save(context.Background(), snapshot); err != nil {
			log.Printf("Warning: beacon save dropped: %v", err)
		}
	}()
}

func (t *Tracker) deliver(ctx context.Context, snapshot *service.ProgressSnapshot) {
	if err := t.save(ctx, snapshot); err != nil {
		if t.onError != nil {
			t.onError(err)
		}
	}
}

func copySnapshot(snapshot *service.ProgressSnapshot) *service.ProgressSnapshot {
	out := &service.ProgressSnapshot{
		Responses:     make(map[string]models.Answer, len(snapshot.Responses)),
		CurrentStep:   snapshot.CurrentStep,
		QuestionIndex: snapshot.QuestionIndex,
		ProgramID:     snapshot.ProgramID,
	}
	for k, v := range snapshot.Responses {
		out.Responses[k] = v
	}
	return out
}
