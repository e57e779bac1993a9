package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"moodspace/internal/auth"
	"moodspace/internal/mood"
	"moodspace/internal/notify"
	"moodspace/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, _ string, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingNotifier) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.got...)
}

type failingRecorder struct{}

func (failingRecorder) Append(context.Context, *session.Record) error {
	return errors.New("disk full")
}

func TestPipeline_StartsWithWelcome(t *testing.T) {
	p := New(mood.NewKeywordClassifier(), nil, nil, nil)
	defer p.Close()
	assert.Equal(t, mood.Welcome(), p.Current())
}

func TestPipeline_EmptyInput(t *testing.T) {
	called := false
	cls := mood.ClassifierFunc(func(context.Context, string) (mood.State, error) {
		called = true
		return mood.Welcome(), nil
	})
	n := &recordingNotifier{}
	p := New(cls, nil, n, nil)
	defer p.Close()

	_, err := p.Submit(context.Background(), "   \n\t")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.False(t, called)
	assert.Empty(t, n.all())
}

func TestPipeline_SuccessReplacesStateAndNotifies(t *testing.T) {
	n := &recordingNotifier{}
	p := New(mood.NewKeywordClassifier(), nil, n, nil)
	defer p.Close()

	got, err := p.Submit(context.Background(), "I'm so happy today")
	require.NoError(t, err)
	assert.Equal(t, mood.Happy, got.Emotion)
	assert.Equal(t, got, p.Current())

	notes := n.all()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelInfo, notes[0].Level)
	assert.Equal(t, "Mood detected", notes[0].Title)
	assert.Equal(t, mood.Summary(got), notes[0].Description)
}

func TestPipeline_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	cls := mood.ClassifierFunc(func(ctx context.Context, text string) (mood.State, error) {
		if text == "happy today" {
			close(entered)
			<-release
		}
		return mood.NewKeywordClassifier().Classify(ctx, text)
	})
	p := New(cls, nil, nil, nil)
	defer p.Close()

	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), "happy today")
		done <- err
	}()
	<-entered

	_, err := p.Submit(context.Background(), "sad today")
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, mood.Happy, p.Current().Emotion)

	// the slot frees up once the first call returns
	_, err = p.Submit(context.Background(), "sad today")
	require.NoError(t, err)
	assert.Equal(t, mood.Sad, p.Current().Emotion)
}

func TestPipeline_FailureKeepsStateAndNotifiesOnce(t *testing.T) {
	boom := errors.New("gateway down")
	calls := 0
	fail := false
	cls := mood.ClassifierFunc(func(ctx context.Context, text string) (mood.State, error) {
		calls++
		if fail {
			return mood.State{}, boom
		}
		return mood.NewKeywordClassifier().Classify(ctx, text)
	})
	n := &recordingNotifier{}
	p := New(cls, nil, n, nil)
	defer p.Close()

	before, err := p.Submit(context.Background(), "feeling calm and relaxed")
	require.NoError(t, err)

	fail = true
	_, err = p.Submit(context.Background(), "whatever")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, p.Current())
	assert.Equal(t, 2, calls, "no retry on failure")

	notes := n.all()
	require.Len(t, notes, 2)
	assert.Equal(t, notify.Error("Error", "Failed to process your input").Title, notes[1].Title)
	assert.Equal(t, "Failed to process your input", notes[1].Description)
	assert.Equal(t, notify.LevelError, notes[1].Level)
}

func TestPipeline_UnknownEmotionBecomesNeutral(t *testing.T) {
	cls := mood.ClassifierFunc(func(context.Context, string) (mood.State, error) {
		return mood.State{Emotion: "furious", Intensity: 0.5, Message: "Noted."}, nil
	})
	p := New(cls, nil, nil, nil)
	defer p.Close()

	got, err := p.Submit(context.Background(), "grr")
	require.NoError(t, err)
	assert.Equal(t, mood.Neutral, got.Emotion)
	assert.Equal(t, got, p.Current())
	assert.Equal(t, "Noted.", p.Current().Message)
}

func TestPipeline_NaNIntensityIsFailure(t *testing.T) {
	cls := mood.ClassifierFunc(func(context.Context, string) (mood.State, error) {
		return mood.State{Emotion: mood.Happy, Intensity: math.NaN()}, nil
	})
	n := &recordingNotifier{}
	p := New(cls, nil, n, nil)
	defer p.Close()

	_, err := p.Submit(context.Background(), "grr")
	assert.ErrorIs(t, err, mood.ErrInvalidState)
	assert.Equal(t, mood.Welcome(), p.Current())

	notes := n.all()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelError, notes[0].Level)
}

func TestPipeline_PersistsForAuthenticatedUser(t *testing.T) {
	store := session.NewMemoryStore()
	p := New(mood.NewKeywordClassifier(), store, nil, nil)

	ctx := auth.WithUser(context.Background(), "alice")
	_, err := p.Submit(ctx, "so anxious and worried")
	require.NoError(t, err)
	_, err = p.Submit(context.Background(), "happy")
	require.NoError(t, err)
	p.Close()

	recs, err := store.Recent(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, mood.Anxious, recs[0].Emotion)
}

func TestPipeline_PersistFailureDoesNotChangeState(t *testing.T) {
	n := &recordingNotifier{}
	p := New(mood.NewKeywordClassifier(), failingRecorder{}, n, nil)

	ctx, cancel := context.WithCancel(auth.WithUser(context.Background(), "alice"))
	got, err := p.Submit(ctx, "excited and amazing")
	cancel()
	require.NoError(t, err)
	p.Close()

	assert.Equal(t, got, p.Current())
	assert.Eventually(t, func() bool { return len(n.all()) == 2 }, time.Second, 10*time.Millisecond)
	notes := n.all()
	assert.Equal(t, notify.LevelInfo, notes[0].Level)
	assert.Equal(t, "Failed to save mood session", notes[1].Description)
}
