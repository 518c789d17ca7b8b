// Package web serves the mission dashboard: live crew status and the event
// log, over REST and WebSocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-ev3way/internal/log"
	"github.com/teslashibe/go-ev3way/pkg/crew"
	"github.com/teslashibe/go-ev3way/pkg/hub"
	"github.com/teslashibe/go-ev3way/pkg/scheduler"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 500

// EventEntry is a logbook entry as the dashboard shows it.
type EventEntry struct {
	MissionID string `json:"mission_id"`
	crew.Entry
}

// Server is the dashboard server
type Server struct {
	app  *fiber.App
	addr string
	log  *slog.Logger

	status    crew.Status
	hasStatus bool
	statusMu  sync.RWMutex

	events   []EventEntry
	eventsMu sync.RWMutex

	statusHub *hub.Hub
	eventHub  *hub.Hub

	// TaskStats reports scheduler counters for /api/tasks. Optional.
	TaskStats func() map[string]scheduler.Stats
}

var (
	_ crew.StatusSink = (*Server)(nil)
	_ crew.Recorder   = (*Server)(nil)
)

// NewServer creates a dashboard listening on addr once Run is called.
func NewServer(addr string) *Server {
	s := &Server{
		addr:      addr,
		log:       log.With("component", "web"),
		events:    make([]EventEntry, 0, maxEvents),
		statusHub: hub.New("status"),
		eventHub:  hub.New("events"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "ev3way",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Get("/tasks", s.handleTasks)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App exposes the Fiber app so other links can mount routes on it.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.eventHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", "addr", s.addr)
		errc <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// Publish implements crew.StatusSink.
func (s *Server) Publish(status crew.Status) {
	s.statusMu.Lock()
	s.status = status
	s.hasStatus = true
	s.statusMu.Unlock()

	if err := s.statusHub.BroadcastJSON(status); err != nil {
		s.log.Warn("encode status", "error", err)
	}
}

// Record implements crew.Recorder. It keeps the last entries in memory.
func (s *Server) Record(_ context.Context, missionID string, e crew.Entry) error {
	entry := EventEntry{MissionID: missionID, Entry: e}

	s.eventsMu.Lock()
	s.events = append(s.events, entry)
	if len(s.events) > maxEvents {
		s.events = s.events[1:]
	}
	s.eventsMu.Unlock()

	return s.eventHub.BroadcastJSON(entry)
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
