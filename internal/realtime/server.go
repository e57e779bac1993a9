package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

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

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendQueueSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Guider produces guidance text for a quick action.
type Guider interface {
	Guide(ctx context.Context, actionType, label string, emotion mood.Emotion) (string, error)
}

// Options wires the server to its collaborators. Journal and StaticDir are
// optional.
type Options struct {
	Classifier mood.Classifier
	Guider     Guider
	Sessions   *session.Recorder
	Broker     feed.Broker
	Notices    *notify.Center
	Catalog    *player.Catalog
	Journal    *journal.FileStore
	Verifier   *auth.Verifier
	StaticDir  string
	Logger     *zap.Logger

	// NewTicker supplies the breathing tick source; defaults to one second.
	NewTicker func() breathing.Ticker
}

// Server serves the REST API and the per-connection WebSocket sessions.
type Server struct {
	opts   Options
	logger *zap.Logger

	clients   map[*client]bool
	clientsMu sync.RWMutex
}

// New creates a new realtime server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewTicker == nil {
		opts.NewTicker = breathing.SecondTicker
	}
	if opts.Verifier == nil {
		opts.Verifier = auth.NewVerifier("")
	}
	if opts.Catalog == nil {
		opts.Catalog = player.NewCatalog()
	}
	if opts.Notices == nil {
		opts.Notices = notify.NewCenter(opts.Broker, opts.Logger)
	}
	return &Server{
		opts:    opts,
		logger:  opts.Logger,
		clients: make(map[*client]bool),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := r.Group("/", auth.Middleware(s.opts.Verifier))
	authed.GET("/ws", s.handleWebSocket)

	api := authed.Group("/api")
	api.POST("/analyze-mood", s.handleAnalyzeMood)
	api.POST("/action-guidance", s.handleActionGuidance)
	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions", s.handleListSessions)
	api.GET("/actions/:emotion", s.handleQuickActions)
	api.GET("/playlists/:emotion", s.handlePlaylist)
	api.GET("/breathing/patterns", s.handleBreathingPatterns)
	api.POST("/journal", s.handleAppendJournal)
	api.GET("/journal", s.handleListJournal)
	api.GET("/notifications", s.handleNotifications)

	// Static file serving.
	if s.opts.StaticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(s.opts.StaticDir))))
	}

	return r
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(gc *gin.Context) {
	userID, _ := auth.UserFrom(gc.Request.Context())

	conn, err := upgrader.Upgrade(gc.Writer, gc.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(s, conn, userID)

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	if err := c.subscribeFeed(); err != nil {
		s.logger.Warn("feed subscription failed", zap.String("user", userID), zap.Error(err))
	}

	// Send the initial view: welcome state, player cursor and history.
	c.sendMessage(protocol.TypeMoodUpdate, c.pipeline.Current())
	c.sendMessage(protocol.TypePlayerState, c.player.State())
	c.sendHistory()

	go c.writePump()
	go c.readPump()
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
}

// broadcast sends a message to all connected clients.
func (s *Server) broadcast(build func(c *client) (string, interface{})) {
	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		msgType, payload := build(c)
		c.sendMessage(msgType, payload)
	}
}

// OnCatalogReload is the callback for the catalog watcher. Every client
// gets its cursor re-resolved against the new playlists.
func (s *Server) OnCatalogReload() {
	s.broadcast(func(c *client) (string, interface{}) {
		return protocol.TypePlayerState, c.player.State()
	})
}

// Close disconnects every WebSocket client and waits until their handlers
// and pending session writes have finished. http.Server.Shutdown does not
// track hijacked connections, so call this after it and before closing the
// stores.
func (s *Server) Close() {
	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

// ClientCount reports the number of open WebSocket connections.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
