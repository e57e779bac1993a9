package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"moodspace/internal/auth"
	"moodspace/internal/breathing"
	"moodspace/internal/feed"
	"moodspace/internal/mood"
	"moodspace/internal/pipeline"
	"moodspace/internal/player"
	"moodspace/internal/protocol"
	"moodspace/internal/session"
)

// client is one UI instance: a WebSocket connection with its own mood
// pipeline, player cursor and breathing timer.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
	userID string
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	pipeline *pipeline.Pipeline
	player   *player.Player

	breathMu sync.Mutex
	breath   *breathing.Timer

	// guidanceSeq numbers guidance requests; only the latest result is sent.
	guidanceSeq atomic.Uint64

	// work tracks handler goroutines so close can wait for them.
	workMu sync.Mutex
	work   sync.WaitGroup
	closed bool

	subID string
}

func newClient(s *Server, conn *websocket.Conn, userID string) *client {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(feed.WithOrigin(auth.WithUser(context.Background(), userID), id))
	logger := s.logger.With(zap.String("user", userID), zap.String("conn", id))
	c := &client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		server: s,
		userID: userID,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var recorder pipeline.Recorder
	if s.opts.Sessions != nil {
		recorder = s.opts.Sessions
	}
	c.pipeline = pipeline.New(s.opts.Classifier, recorder, s.opts.Notices, logger)
	c.player = player.New(s.opts.Catalog, logPlayback{logger})
	return c
}

// logPlayback is the server side of the audio port. The browser owns the
// audio element and follows player.state messages.
type logPlayback struct{ logger *zap.Logger }

func (p logPlayback) Play(t player.Track) {
	p.logger.Debug("playback started", zap.String("title", t.Title), zap.String("source", t.Source))
}

func (p logPlayback) Pause() {
	p.logger.Debug("playback paused")
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// close tears down everything the connection owns. Safe to call more than
// once.
func (c *client) close() {
	c.once.Do(func() {
		c.cancel()
		close(c.done)
		c.stopBreathing()
		if c.subID != "" && c.server.opts.Broker != nil {
			c.server.opts.Broker.Unsubscribe(c.userID, c.subID)
		}
		c.server.removeClient(c)
		c.conn.Close()

		c.workMu.Lock()
		c.closed = true
		c.workMu.Unlock()
		c.work.Wait()
		c.pipeline.Close()
	})
}

// spawn runs f on its own goroutine unless the client is closing.
func (c *client) spawn(f func()) {
	c.workMu.Lock()
	defer c.workMu.Unlock()
	if c.closed {
		return
	}
	c.work.Add(1)
	go func() {
		defer c.work.Done()
		f()
	}()
}

// sendMessage enqueues a message without blocking. Messages for a closed
// client or a full queue are dropped.
func (c *client) sendMessage(msgType string, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		c.logger.Error("encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	c.enqueue(msg)
}

func (c *client) enqueue(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		// Client buffer full, skip.
	}
}

func (c *client) sendError(code, message string) {
	msg, _ := protocol.NewErrorMessage(code, message)
	c.enqueue(msg)
}

// handleMessage processes a validated client message.
func (c *client) handleMessage(raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		c.sendError(protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeMoodSubmit:
		p, _ := protocol.DecodePayload(msg, &protocol.MoodSubmitPayload{})
		c.spawn(func() { c.submitMood(p.Text) })
	case protocol.TypeGuidanceRequest:
		p, _ := protocol.DecodePayload(msg, &protocol.GuidanceRequestPayload{})
		seq := c.guidanceSeq.Add(1)
		c.spawn(func() { c.requestGuidance(seq, *p) })
	case protocol.TypeBreathingStart:
		p, _ := protocol.DecodePayload(msg, &protocol.BreathingStartPayload{})
		c.startBreathing(*p)
	case protocol.TypeBreathingStop:
		c.stopBreathing()
	case protocol.TypePlayerPlay:
		c.sendMessage(protocol.TypePlayerState, c.player.Play())
	case protocol.TypePlayerPause:
		c.sendMessage(protocol.TypePlayerState, c.player.Pause())
	case protocol.TypePlayerNext:
		c.sendMessage(protocol.TypePlayerState, c.player.Advance())
	case protocol.TypePlayerEnded:
		c.sendMessage(protocol.TypePlayerState, c.player.Ended())
	case protocol.TypePlayerSelect:
		p, _ := protocol.DecodePayload(msg, &protocol.PlayerSelectPayload{})
		c.sendMessage(protocol.TypePlayerState, c.player.SetEmotion(mood.ParseEmotion(p.Emotion)))
	case protocol.TypeHistoryRequest:
		c.spawn(c.sendHistory)
	}
}

func (c *client) submitMood(text string) {
	state, err := c.pipeline.Submit(c.ctx, text)
	switch {
	case err == nil:
		c.sendMessage(protocol.TypeMoodUpdate, state)
		c.sendMessage(protocol.TypePlayerState, c.player.SetEmotion(state.Emotion))
	case errors.Is(err, pipeline.ErrEmptyInput):
		c.sendError(protocol.ErrEmptyInput, err.Error())
	case errors.Is(err, pipeline.ErrBusy):
		c.sendError(protocol.ErrBusy, err.Error())
	case c.ctx.Err() != nil:
		// Client went away mid-analysis.
	default:
		c.sendError(protocol.ErrAnalysisFailed, "Failed to analyze mood")
	}
}

func (c *client) requestGuidance(seq uint64, p protocol.GuidanceRequestPayload) {
	guider := c.server.opts.Guider
	if guider == nil {
		c.sendError(protocol.ErrGuidanceFailed, "Failed to generate action guidance")
		return
	}
	emotion := mood.ParseEmotion(p.Emotion)
	if p.Emotion == "" {
		emotion = c.pipeline.Current().Emotion
	}
	text, err := guider.Guide(c.ctx, p.ActionType, p.ActionLabel, emotion)
	if c.ctx.Err() != nil || c.guidanceSeq.Load() != seq {
		return
	}
	if err != nil {
		c.logger.Warn("guidance failed", zap.String("action", p.ActionLabel), zap.Error(err))
		c.sendError(protocol.ErrGuidanceFailed, "Failed to generate action guidance")
		return
	}
	c.sendMessage(protocol.TypeGuidanceResult, protocol.GuidanceResultPayload{
		ActionType:  p.ActionType,
		ActionLabel: p.ActionLabel,
		Guidance:    text,
	})
}

// startBreathing replaces any running timer.
func (c *client) startBreathing(p protocol.BreathingStartPayload) {
	pattern := breathing.Lookup(p.Pattern)
	if p.Pattern == "" && p.Description != "" {
		pattern = breathing.PatternFor(p.Description)
	}

	c.breathMu.Lock()
	defer c.breathMu.Unlock()
	if c.breath != nil {
		c.breath.Stop()
		c.breath = nil
	}
	timer, err := breathing.Start(pattern, c.server.opts.NewTicker(), func(t breathing.Tick) {
		c.sendMessage(protocol.TypeBreathingTick, t)
	})
	if err != nil {
		c.sendError(protocol.ErrBreathingPattern, err.Error())
		return
	}
	c.breath = timer
}

func (c *client) stopBreathing() {
	c.breathMu.Lock()
	defer c.breathMu.Unlock()
	if c.breath != nil {
		c.breath.Stop()
		c.breath = nil
	}
}

// sendHistory pushes the user's most recent sessions.
func (c *client) sendHistory() {
	sessions := c.server.opts.Sessions
	if sessions == nil || c.userID == "" {
		return
	}
	recs, err := sessions.Recent(c.ctx, c.userID, session.HistoryWindow)
	if err != nil {
		if c.ctx.Err() == nil {
			c.logger.Warn("history fetch failed", zap.Error(err))
			c.sendError(protocol.ErrHistoryFailed, "Failed to load mood history")
		}
		return
	}
	if recs == nil {
		recs = []session.Record{}
	}
	c.sendMessage(protocol.TypeHistoryUpdate, protocol.HistoryUpdatePayload{Sessions: recs})
}

// subscribeFeed forwards this user's change events until the subscription
// is closed.
func (c *client) subscribeFeed() error {
	broker := c.server.opts.Broker
	if broker == nil {
		return nil
	}
	subID, ch, err := broker.Subscribe(c.ctx, c.userID)
	if err != nil {
		return err
	}
	c.subID = subID

	c.spawn(func() {
		for ev := range ch {
			switch ev.Kind {
			case feed.KindSessionInserted:
				c.sendHistory()
			case feed.KindNotification:
				if !ev.For(c.id) {
					continue
				}
				c.enqueue(&protocol.Message{
					Type:      protocol.TypeNotification,
					Payload:   ev.Payload,
					Timestamp: ev.Timestamp,
				})
			}
		}
	})
	return nil
}
