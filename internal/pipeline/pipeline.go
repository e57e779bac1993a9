// Package pipeline turns free-text check-ins into the displayed mood state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"moodspace/internal/auth"
	"moodspace/internal/mood"
	"moodspace/internal/notify"
	"moodspace/internal/session"
)

var (
	// ErrEmptyInput is returned for text that is blank after trimming.
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy is returned while another submission is outstanding.
	ErrBusy = errors.New("analysis already in progress")
)

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, userID string, n notify.Notification)
}

// Recorder persists completed classifications.
type Recorder interface {
	Append(ctx context.Context, r *session.Record) error
}

// Pipeline owns the displayed mood state of one UI instance.
type Pipeline struct {
	classifier mood.Classifier
	recorder   Recorder
	notifier   Notifier
	logger     *zap.Logger

	inFlight atomic.Bool
	writes   sync.WaitGroup

	mu      sync.RWMutex
	current mood.State
}

// New creates a pipeline showing the welcome state. recorder and notifier
// may be nil.
func New(classifier mood.Classifier, recorder Recorder, notifier Notifier, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		classifier: classifier,
		recorder:   recorder,
		notifier:   notifier,
		logger:     logger,
		current:    mood.Welcome(),
	}
}

// Current returns the displayed state.
func (p *Pipeline) Current() mood.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Submit classifies text and replaces the displayed state on success. At
// most one submission runs at a time; overlapping calls get ErrBusy.
func (p *Pipeline) Submit(ctx context.Context, text string) (mood.State, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return mood.State{}, ErrEmptyInput
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return mood.State{}, ErrBusy
	}
	defer p.inFlight.Store(false)

	userID, hasUser := auth.UserFrom(ctx)
	notifyUser := userID
	if !hasUser {
		notifyUser = auth.Anonymous
	}

	state, err := p.classifier.Classify(ctx, text)
	if err == nil {
		state, err = mood.Normalize(state)
	}
	if err != nil {
		p.logger.Warn("mood classification failed", zap.String("user", notifyUser), zap.Error(err))
		p.notify(ctx, notifyUser, notify.Error("Error", "Failed to process your input"))
		return mood.State{}, fmt.Errorf("classify: %w", err)
	}

	p.mu.Lock()
	p.current = state
	p.mu.Unlock()

	p.notify(ctx, notifyUser, notify.Info("Mood detected", mood.Summary(state)))

	if hasUser && p.recorder != nil {
		p.persist(context.WithoutCancel(ctx), userID, state)
	}
	return state, nil
}

// persist writes the record in the background. A failed write is reported
// and dropped.
func (p *Pipeline) persist(ctx context.Context, userID string, state mood.State) {
	p.writes.Add(1)
	go func() {
		defer p.writes.Done()
		rec := session.NewRecord(userID, state)
		if err := p.recorder.Append(ctx, rec); err != nil {
			p.logger.Error("mood session not saved", zap.String("user", userID), zap.Error(err))
			p.notify(ctx, userID, notify.Error("Error", "Failed to save mood session"))
		}
	}()
}

func (p *Pipeline) notify(ctx context.Context, userID string, n notify.Notification) {
	if p.notifier != nil {
		p.notifier.Notify(ctx, userID, n)
	}
}

// Close waits for pending persistence writes.
func (p *Pipeline) Close() {
	p.writes.Wait()
}
