package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodspace/internal/auth"
	"moodspace/internal/breathing"
	"moodspace/internal/feed"
	"moodspace/internal/journal"
	"moodspace/internal/mood"
	"moodspace/internal/notify"
	"moodspace/internal/player"
	"moodspace/internal/protocol"
	"moodspace/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGuider struct {
	text string
	err  error
}

func (f fakeGuider) Guide(_ context.Context, actionType, label string, emotion mood.Emotion) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text + " " + label + " " + string(emotion), nil
}

// idleTicker never fires, so breathing sessions stay on their first phase.
type idleTicker struct{ ch chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.ch }
func (t idleTicker) Stop()               {}

type testEnv struct {
	srv     *Server
	handler http.Handler
	store   *session.MemoryStore
	broker  *feed.LocalBroker
	notices *notify.Center
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	broker := feed.NewLocalBroker()
	t.Cleanup(func() { broker.Close() })
	store := session.NewMemoryStore()
	notices := notify.NewCenter(broker, nil)
	j, err := journal.NewFileStore(filepath.Join(t.TempDir(), "journal.json"))
	if err != nil {
		t.Fatalf("journal: %v", err)
	}

	opts := Options{
		Classifier: mood.NewKeywordClassifier(),
		Guider:     fakeGuider{text: "Breathe in slowly."},
		Sessions:   session.NewRecorder(store, broker, nil),
		Broker:     broker,
		Notices:    notices,
		Catalog:    player.NewCatalog(),
		Journal:    j,
		NewTicker:  func() breathing.Ticker { return idleTicker{make(chan time.Time)} },
	}
	for _, m := range mutate {
		m(&opts)
	}
	srv := New(opts)
	return &testEnv{srv: srv, handler: srv.Handler(), store: store, broker: broker, notices: notices}
}

func (e *testEnv) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestServer_Healthz(t *testing.T) {
	env := newTestServer(t)
	w := env.do("GET", "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestServer_AnalyzeMood(t *testing.T) {
	env := newTestServer(t)

	w := env.do("POST", "/api/analyze-mood", `{"text":"I'm so happy and excited today!"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var state mood.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, mood.Happy, state.Emotion)
	assert.NotEmpty(t, state.Message)

	w = env.do("POST", "/api/analyze-mood", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/api/analyze-mood", "invalid json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_AnalyzeMoodFailure(t *testing.T) {
	env := newTestServer(t, func(o *Options) {
		o.Classifier = mood.ClassifierFunc(func(context.Context, string) (mood.State, error) {
			return mood.State{}, errors.New("AI gateway error: 500")
		})
	})

	w := env.do("POST", "/api/analyze-mood", `{"text":"hello"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "AI gateway error: 500", body["error"])
	assert.Equal(t, "Failed to analyze mood", body["details"])
}

func TestServer_ActionGuidance(t *testing.T) {
	env := newTestServer(t)
	w := env.do("POST", "/api/action-guidance", `{"actionType":"breathing","actionLabel":"Box Breathing","emotion":"anxious"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Breathe in slowly. Box Breathing anxious", body["guidance"])

	w = env.do("POST", "/api/action-guidance", `{"actionType":"breathing"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	failing := newTestServer(t, func(o *Options) { o.Guider = fakeGuider{err: errors.New("boom")} })
	w = failing.do("POST", "/api/action-guidance", `{"actionType":"a","actionLabel":"b"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Failed to generate action guidance", body["details"])
}

func TestServer_Sessions(t *testing.T) {
	env := newTestServer(t)

	for i := 0; i < 9; i++ {
		w := env.do("POST", "/api/sessions", `{"emotion":"calm","intensity":0.4,"message":"m","musicAction":"a","visualAction":"b","microAction":"c"}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := env.do("POST", "/api/sessions", `{"emotion":"furious","intensity":0.4}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("GET", "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var recs []session.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	assert.Len(t, recs, session.HistoryWindow)
	for _, r := range recs {
		assert.Equal(t, auth.Anonymous, r.UserID)
	}

	w = env.do("GET", "/api/sessions?limit=2", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	assert.Len(t, recs, 2)

	w = env.do("GET", "/api/sessions?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Catalogs(t *testing.T) {
	env := newTestServer(t)

	w := env.do("GET", "/api/actions/anxious", "")
	require.Equal(t, http.StatusOK, w.Code)
	var actions []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &actions))
	assert.Len(t, actions, 3)

	w = env.do("GET", "/api/playlists/calm", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tracks []player.Track
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tracks))
	assert.Equal(t, player.NewCatalog().Playlist(mood.Calm), tracks)

	w = env.do("GET", "/api/breathing/patterns", "")
	require.Equal(t, http.StatusOK, w.Code)
	var patterns []breathing.Pattern
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &patterns))
	assert.Len(t, patterns, 3)
}

func TestServer_JournalAndNotifications(t *testing.T) {
	env := newTestServer(t)

	w := env.do("POST", "/api/journal", `{"prompt":"What's on your mind right now?","entry":"deadlines"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do("POST", "/api/journal", `{"prompt":"p","entry":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("GET", "/api/journal", "")
	var entries []journal.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "deadlines", entries[0].Entry)

	w = env.do("GET", "/api/notifications", "")
	var notes []notify.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "Your journal entry has been saved", notes[0].Description)
}

func TestServer_AuthRequired(t *testing.T) {
	v := auth.NewVerifier("test-secret")
	env := newTestServer(t, func(o *Options) { o.Verifier = v })

	w := env.do("GET", "/api/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := v.Issue("alice", time.Hour)
	require.NoError(t, err)
	w = env.do("POST", "/api/sessions", `{"emotion":"sad","intensity":0.7}`, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, w.Code)

	recs, err := env.store.Recent(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	// health stays open
	assert.Equal(t, http.StatusOK, env.do("GET", "/healthz", "").Code)
}

func TestServer_CORSHeaders(t *testing.T) {
	env := newTestServer(t)
	w := env.do("OPTIONS", "/api/analyze-mood", "",
		"Origin", "http://localhost:5173",
		"Access-Control-Request-Method", "POST",
	)

	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS Allow-Origin header")
	}
}

// wsConn wraps a test WebSocket with typed reads.
type wsConn struct {
	t  *testing.T
	ws *websocket.Conn
}

func dialWS(t *testing.T, env *testEnv) *wsConn {
	t.Helper()
	httpSrv := httptest.NewServer(env.handler)
	t.Cleanup(httpSrv.Close)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return &wsConn{t: t, ws: ws}
}

func (c *wsConn) send(msgType string, payload interface{}) {
	c.t.Helper()
	msg := map[string]interface{}{
		"type":      msgType,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("write failed: %v", err)
	}
}

// next reads until a message of msgType arrives.
func (c *wsConn) next(msgType string) protocol.Message {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		c.ws.SetReadDeadline(deadline)
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.t.Fatalf("decode: %v", err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

// collect reads until one message of every listed type has arrived. Types
// produced by different goroutines may interleave in any order.
func (c *wsConn) collect(types ...string) map[string]protocol.Message {
	c.t.Helper()
	want := make(map[string]bool, len(types))
	for _, ty := range types {
		want[ty] = true
	}
	got := make(map[string]protocol.Message, len(types))
	deadline := time.Now().Add(3 * time.Second)
	for len(got) < len(want) {
		c.ws.SetReadDeadline(deadline)
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.t.Fatalf("waiting for %v: %v", types, err)
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.t.Fatalf("decode: %v", err)
		}
		if _, seen := got[msg.Type]; want[msg.Type] && !seen {
			got[msg.Type] = msg
		}
	}
	return got
}

func TestServer_WebSocketInitialView(t *testing.T) {
	env := newTestServer(t)
	c := dialWS(t, env)

	var state mood.State
	require.NoError(t, json.Unmarshal(c.next(protocol.TypeMoodUpdate).Payload, &state))
	assert.Equal(t, mood.Welcome(), state)

	var ps player.State
	require.NoError(t, json.Unmarshal(c.next(protocol.TypePlayerState).Payload, &ps))
	assert.Equal(t, mood.Neutral, ps.Emotion)
	assert.False(t, ps.Playing)

	var hist protocol.HistoryUpdatePayload
	require.NoError(t, json.Unmarshal(c.next(protocol.TypeHistoryUpdate).Payload, &hist))
	assert.Empty(t, hist.Sessions)

	assert.Eventually(t, func() bool { return env.srv.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestServer_WebSocketMoodSubmit(t *testing.T) {
	env := newTestServer(t)
	c := dialWS(t, env)
	c.next(protocol.TypeHistoryUpdate)

	c.send(protocol.TypeMoodSubmit, map[string]string{"text": "feeling sad and down"})
	msgs := c.collect(protocol.TypeMoodUpdate, protocol.TypePlayerState, protocol.TypeHistoryUpdate)

	var state mood.State
	require.NoError(t, json.Unmarshal(msgs[protocol.TypeMoodUpdate].Payload, &state))
	assert.Equal(t, mood.Sad, state.Emotion)

	var ps player.State
	require.NoError(t, json.Unmarshal(msgs[protocol.TypePlayerState].Payload, &ps))
	assert.Equal(t, mood.Sad, ps.Emotion)
	assert.Equal(t, 0, ps.Index)

	// the persisted record comes back through the change feed
	var hist protocol.HistoryUpdatePayload
	require.NoError(t, json.Unmarshal(msgs[protocol.TypeHistoryUpdate].Payload, &hist))
	require.Len(t, hist.Sessions, 1)
	assert.Equal(t, mood.Sad, hist.Sessions[0].Emotion)

	assert.Eventually(t, func() bool {
		for _, n := range env.notices.Recent(auth.Anonymous) {
			if n.Title == "Mood detected" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestServer_WebSocketAnalysisFailure(t *testing.T) {
	env := newTestServer(t, func(o *Options) {
		o.Classifier = mood.ClassifierFunc(func(context.Context, string) (mood.State, error) {
			return mood.State{}, errors.New("gateway down")
		})
	})
	c := dialWS(t, env)

	c.send(protocol.TypeMoodSubmit, map[string]string{"text": "hello"})
	msgs := c.collect(protocol.TypeError, protocol.TypeNotification)

	var p protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(msgs[protocol.TypeError].Payload, &p))
	assert.Equal(t, protocol.ErrAnalysisFailed, p.Code)

	var n notify.Notification
	require.NoError(t, json.Unmarshal(msgs[protocol.TypeNotification].Payload, &n))
	assert.Equal(t, notify.LevelError, n.Level)
	assert.Equal(t, "Failed to process your input", n.Description)
}

func TestServer_WebSocketToastStaysOnOriginatingConnection(t *testing.T) {
	env := newTestServer(t, func(o *Options) {
		o.Classifier = mood.ClassifierFunc(func(context.Context, string) (mood.State, error) {
			return mood.State{}, errors.New("gateway down")
		})
	})
	a := dialWS(t, env)
	b := dialWS(t, env)
	a.next(protocol.TypeHistoryUpdate)
	b.next(protocol.TypeHistoryUpdate)

	a.send(protocol.TypeMoodSubmit, map[string]string{"text": "hello"})
	a.collect(protocol.TypeError, protocol.TypeNotification)

	// a user-wide toast reaches every connection, so it is the first one b sees
	w := env.do(http.MethodPost, "/api/journal", `{"prompt":"p","entry":"a quiet day"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var n notify.Notification
	require.NoError(t, json.Unmarshal(b.next(protocol.TypeNotification).Payload, &n))
	assert.Equal(t, "✓ Saved", n.Title)
}

func TestServer_WebSocketGuidanceAndPlayer(t *testing.T) {
	env := newTestServer(t)
	c := dialWS(t, env)
	c.next(protocol.TypePlayerState)

	c.send(protocol.TypeGuidanceRequest, map[string]string{"actionType": "gratitude", "actionLabel": "Gratitude List", "emotion": "happy"})
	var g protocol.GuidanceResultPayload
	require.NoError(t, json.Unmarshal(c.next(protocol.TypeGuidanceResult).Payload, &g))
	assert.Equal(t, "Breathe in slowly. Gratitude List happy", g.Guidance)

	c.send(protocol.TypePlayerSelect, map[string]string{"emotion": "calm"})
	c.next(protocol.TypePlayerState)
	c.send(protocol.TypePlayerPlay, map[string]string{})
	var ps player.State
	require.NoError(t, json.Unmarshal(c.next(protocol.TypePlayerState).Payload, &ps))
	assert.True(t, ps.Playing)
	assert.Equal(t, mood.Calm, ps.Emotion)

	c.send(protocol.TypePlayerNext, map[string]string{})
	require.NoError(t, json.Unmarshal(c.next(protocol.TypePlayerState).Payload, &ps))
	assert.Equal(t, 1, ps.Index)
}

func TestServer_WebSocketBreathing(t *testing.T) {
	env := newTestServer(t)
	c := dialWS(t, env)

	c.send(protocol.TypeBreathingStart, map[string]string{"pattern": "4-7-8"})
	var tick breathing.Tick
	require.NoError(t, json.Unmarshal(c.next(protocol.TypeBreathingTick).Payload, &tick))
	assert.Equal(t, breathing.Tick{Phase: breathing.Inhale, Count: 4}, tick)

	c.send(protocol.TypeBreathingStart, map[string]string{"description": "Slow Breathing"})
	require.NoError(t, json.Unmarshal(c.next(protocol.TypeBreathingTick).Payload, &tick))
	assert.Equal(t, breathing.Tick{Phase: breathing.Inhale, Count: 5}, tick)

	c.send(protocol.TypeBreathingStop, map[string]string{})
}

func TestServer_WebSocketInvalidMessage(t *testing.T) {
	env := newTestServer(t)
	c := dialWS(t, env)

	// Send invalid message.
	c.ws.WriteMessage(websocket.TextMessage, []byte("not json"))

	var p protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(c.next(protocol.TypeError).Payload, &p))
	assert.Equal(t, protocol.ErrInvalidMessage, p.Code)
}

// slowStore delays every write so a shutdown can catch it in flight.
type slowStore struct {
	*session.MemoryStore
	saved atomic.Int32
}

func (s *slowStore) Append(ctx context.Context, r *session.Record) error {
	time.Sleep(100 * time.Millisecond)
	if err := s.MemoryStore.Append(ctx, r); err != nil {
		return err
	}
	s.saved.Add(1)
	return nil
}

func TestServer_CloseWaitsForPendingWrites(t *testing.T) {
	store := &slowStore{MemoryStore: session.NewMemoryStore()}
	env := newTestServer(t, func(o *Options) {
		o.Sessions = session.NewRecorder(store, o.Broker, nil)
	})
	c := dialWS(t, env)
	c.next(protocol.TypeHistoryUpdate)

	c.send(protocol.TypeMoodSubmit, map[string]string{"text": "so happy today"})
	c.next(protocol.TypeMoodUpdate)

	env.srv.Close()
	assert.Equal(t, int32(1), store.saved.Load())
	assert.Equal(t, 0, env.srv.ClientCount())

	// drain anything queued before the close, then expect the connection gone
	c.ws.SetReadDeadline(time.Now().Add(time.Second))
	var err error
	for err == nil {
		_, _, err = c.ws.ReadMessage()
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection should be closed by the server")
	}
}

func TestServer_OnCatalogReload(t *testing.T) {
	env := newTestServer(t)
	c := dialWS(t, env)
	c.next(protocol.TypeHistoryUpdate)
	assert.Eventually(t, func() bool { return env.srv.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, env.srv.opts.Catalog.Replace(map[mood.Emotion][]player.Track{
		mood.Neutral: {{Title: "Reloaded", Artist: "A", Source: "/a.mp3"}},
	}))
	env.srv.OnCatalogReload()

	var ps player.State
	require.NoError(t, json.Unmarshal(c.next(protocol.TypePlayerState).Payload, &ps))
	assert.Equal(t, "Reloaded", ps.Track.Title)
}
