package realtime

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moodspace/internal/auth"
	"moodspace/internal/breathing"
	"moodspace/internal/guidance"
	"moodspace/internal/journal"
	"moodspace/internal/mood"
	"moodspace/internal/notify"
	"moodspace/internal/session"
)

const maxSessionLimit = 100

type analyzeMoodRequest struct {
	Text string `json:"text"`
}

type actionGuidanceRequest struct {
	ActionType  string `json:"actionType" binding:"required"`
	ActionLabel string `json:"actionLabel" binding:"required"`
	Emotion     string `json:"emotion"`
}

type journalRequest struct {
	Prompt string `json:"prompt"`
	Entry  string `json:"entry"`
}

func userOf(c *gin.Context) string {
	id, _ := auth.UserFrom(c.Request.Context())
	return id
}

func (s *Server) handleAnalyzeMood(c *gin.Context) {
	var req analyzeMoodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	state, err := s.opts.Classifier.Classify(c.Request.Context(), text)
	if err == nil {
		state, err = mood.Normalize(state)
	}
	if err != nil {
		s.logger.Warn("analyze mood failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "details": "Failed to analyze mood"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleActionGuidance(c *gin.Context) {
	var req actionGuidanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actionType and actionLabel are required"})
		return
	}
	if s.opts.Guider == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "guidance unavailable", "details": "Failed to generate action guidance"})
		return
	}

	text, err := s.opts.Guider.Guide(c.Request.Context(), req.ActionType, req.ActionLabel, mood.ParseEmotion(req.Emotion))
	if err != nil {
		s.logger.Warn("action guidance failed", zap.String("action", req.ActionLabel), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "details": "Failed to generate action guidance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"guidance": text})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	if s.opts.Sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session storage disabled"})
		return
	}
	var state mood.State
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec := session.NewRecord(userOf(c), state)
	if err := s.opts.Sessions.Append(c.Request.Context(), rec); err != nil {
		if errors.Is(err, mood.ErrInvalidState) || errors.Is(err, session.ErrMissingUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("save mood session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "details": "Failed to save mood session"})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleListSessions(c *gin.Context) {
	if s.opts.Sessions == nil {
		c.JSON(http.StatusOK, []session.Record{})
		return
	}
	limit := session.HistoryWindow
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSessionLimit)
	}

	recs, err := s.opts.Sessions.Recent(c.Request.Context(), userOf(c), limit)
	if err != nil {
		s.logger.Error("list mood sessions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []session.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

func (s *Server) handleQuickActions(c *gin.Context) {
	c.JSON(http.StatusOK, guidance.QuickActions(mood.ParseEmotion(c.Param("emotion"))))
}

func (s *Server) handlePlaylist(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Catalog.Playlist(mood.ParseEmotion(c.Param("emotion"))))
}

func (s *Server) handleBreathingPatterns(c *gin.Context) {
	c.JSON(http.StatusOK, breathing.Patterns())
}

func (s *Server) handleAppendJournal(c *gin.Context) {
	if s.opts.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	var req journalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID := userOf(c)
	entry, err := s.opts.Journal.Append(journal.UserKey(userID), req.Prompt, req.Entry)
	if err != nil {
		if errors.Is(err, journal.ErrEmptyEntry) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("save journal entry failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.opts.Notices.Notify(c.Request.Context(), userID, notify.Info("✓ Saved", "Your journal entry has been saved"))
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleListJournal(c *gin.Context) {
	if s.opts.Journal == nil {
		c.JSON(http.StatusOK, []journal.Entry{})
		return
	}
	entries := s.opts.Journal.List(journal.UserKey(userOf(c)))
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleNotifications(c *gin.Context) {
	notes := s.opts.Notices.Recent(userOf(c))
	if notes == nil {
		notes = []notify.Notification{}
	}
	c.JSON(http.StatusOK, notes)
}
