package web

import (
	"slices"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-ev3way/pkg/hub"
)

// replayWait bounds each write of the backlog sent on connect.
const replayWait = 5 * time.Second

// handleStatus returns the latest crew snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	if !s.hasStatus {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no status yet",
		})
	}
	return c.JSON(s.status)
}

// handleEvents returns recent events, newest last. ?limit=N trims the head.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", maxEvents)

	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()

	events := s.events
	if limit >= 0 && limit < len(events) {
		events = events[len(events)-limit:]
	}
	return c.JSON(events)
}

// handleTasks returns scheduler counters
func (s *Server) handleTasks(c *fiber.Ctx) error {
	if s.TaskStats == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "task stats not configured",
		})
	}
	return c.JSON(s.TaskStats())
}

// handleStatusWS sends the current status, then every update
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.statusMu.RLock()
	status, ok := s.status, s.hasStatus
	s.statusMu.RUnlock()

	if ok {
		c.SetWriteDeadline(time.Now().Add(replayWait))
		if err := c.WriteJSON(status); err != nil {
			return
		}
	}

	if client := hub.NewClient(s.statusHub, c); client != nil {
		client.Run()
	}
}

// handleEventsWS replays the event log, then streams new entries
func (s *Server) handleEventsWS(c *websocket.Conn) {
	s.eventsMu.RLock()
	backlog := slices.Clone(s.events)
	s.eventsMu.RUnlock()

	for _, entry := range backlog {
		c.SetWriteDeadline(time.Now().Add(replayWait))
		if err := c.WriteJSON(entry); err != nil {
			return
		}
	}

	if client := hub.NewClient(s.eventHub, c); client != nil {
		client.Run()
	}
}
