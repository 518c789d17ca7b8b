// Package ground is the operator link: WebSocket clients that follow a
// mission and may start or land it remotely.
//
// A "start" from an operator raises the same flag as the Bluetooth remote
// start; a "land" raises the back-button flag, so every remote command goes
// through the captain's normal decision cycle.
package ground

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-ev3way/internal/log"
	"github.com/teslashibe/go-ev3way/pkg/crew"
	"github.com/teslashibe/go-ev3way/pkg/flags"
	"github.com/teslashibe/go-ev3way/pkg/protocol"
)

// RobotName is announced to operators on connect.
const RobotName = "ev3way"

const (
	writeWait  = 5 * time.Second
	outboxSize = 32
)

// Operator represents a connected operator
type Operator struct {
	ID        string
	Connected time.Time

	conn   *websocket.Conn
	outbox chan []byte

	mu       sync.Mutex
	lastSeen time.Time
	closed   bool
}

// LastSeen returns when the operator last sent anything.
func (o *Operator) LastSeen() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSeen
}

// enqueue hands data to the writer without blocking. It reports false when
// the operator is gone or too slow.
func (o *Operator) enqueue(data []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.outbox <- data:
		return true
	default:
		return false
	}
}

func (o *Operator) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.outbox)
	}
}

func (o *Operator) touch() {
	o.mu.Lock()
	o.lastSeen = time.Now()
	o.mu.Unlock()
}

// writeLoop is the only writer on the connection.
func (o *Operator) writeLoop() {
	for data := range o.outbox {
		o.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := o.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	o.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Link manages operator connections for one mission
type Link struct {
	flags     *flags.Set
	missionID string
	log       *slog.Logger

	mu        sync.RWMutex
	operators map[string]*Operator

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	messagesDropped  atomic.Uint64
	startsReceived   atomic.Uint64
	landsReceived    atomic.Uint64
}

var (
	_ crew.StatusSink = (*Link)(nil)
	_ crew.Recorder   = (*Link)(nil)
)

// NewLink creates an operator link raising flags on set.
func NewLink(set *flags.Set, missionID string) *Link {
	return &Link{
		flags:     set,
		missionID: missionID,
		log:       log.With("component", "ground", "mission", missionID),
		operators: make(map[string]*Operator),
	}
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (l *Link) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/operator", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/operator", websocket.New(l.handleOperator))
	app.Get("/ws/operator/:id", websocket.New(l.handleOperator))
}

// handleOperator handles an operator WebSocket connection
func (l *Link) handleOperator(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	op := &Operator{
		ID:        id,
		Connected: now,
		conn:      c,
		outbox:    make(chan []byte, outboxSize),
		lastSeen:  now,
	}

	l.mu.Lock()
	if prev, ok := l.operators[id]; ok {
		prev.close()
	}
	l.operators[id] = op
	count := len(l.operators)
	l.mu.Unlock()

	l.log.Info("operator connected", "operator", id, "operators", count)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		op.writeLoop()
	}()

	if hello, err := protocol.NewHelloMessage(l.missionID, RobotName); err == nil {
		l.send(op, hello)
	}

	defer func() {
		l.mu.Lock()
		if l.operators[id] == op {
			delete(l.operators, id)
		}
		count := len(l.operators)
		l.mu.Unlock()
		op.close()
		<-writerDone

		l.log.Info("operator disconnected", "operator", id, "operators", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			l.log.Debug("operator read", "operator", id, "error", err)
			return
		}
		op.touch()
		l.messagesReceived.Add(1)
		l.handleMessage(op, data)
	}
}

// handleMessage processes an incoming operator message
func (l *Link) handleMessage(op *Operator, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		l.log.Warn("parse error", "operator", op.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeStart:
		var source string
		if start, err := msg.GetStartData(); err == nil {
			source = start.Source
		}
		l.RequestStart(op.ID, source)

	case protocol.TypeLand:
		var reason string
		if land, err := msg.GetLandData(); err == nil {
			reason = land.Reason
		}
		l.RequestLand(op.ID, reason)

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		pingTS := ping.Timestamp
		if pingTS == 0 {
			pingTS = msg.Timestamp
		}
		if pong, err := protocol.NewPongMessage(ping.ID, pingTS, time.Now().UnixMilli()); err == nil {
			l.send(op, pong)
		}

	default:
		l.log.Debug("ignored message", "operator", op.ID, "type", msg.Type)
	}
}

// RequestStart raises the remote-start flag.
func (l *Link) RequestStart(operator, source string) {
	l.startsReceived.Add(1)
	l.flags.Raise(flags.RemoteStart)
	l.log.Info("remote start", "operator", operator, "source", source)
}

// RequestLand raises the back-button flag.
func (l *Link) RequestLand(operator, reason string) {
	l.landsReceived.Add(1)
	l.flags.Raise(flags.BackButton)
	l.log.Info("remote land", "operator", operator, "reason", reason)
}

// Publish implements crew.StatusSink by broadcasting a status frame.
func (l *Link) Publish(s crew.Status) {
	msg, err := protocol.NewStatusMessage(s)
	if err != nil {
		l.log.Warn("encode status", "error", err)
		return
	}
	l.Broadcast(msg)
}

// Record implements crew.Recorder by broadcasting an event frame.
func (l *Link) Record(_ context.Context, missionID string, e crew.Entry) error {
	msg, err := protocol.NewEventMessage(missionID, e)
	if err != nil {
		return err
	}
	l.Broadcast(msg)
	return nil
}

func (l *Link) send(op *Operator, msg *protocol.Message) bool {
	data, err := msg.Bytes()
	if err != nil {
		return false
	}
	if !op.enqueue(data) {
		l.messagesDropped.Add(1)
		return false
	}
	l.messagesSent.Add(1)
	return true
}

// Send sends a message to a specific operator
func (l *Link) Send(operatorID string, msg *protocol.Message) error {
	l.mu.RLock()
	op, ok := l.operators[operatorID]
	l.mu.RUnlock()

	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "operator not connected")
	}
	if !l.send(op, msg) {
		return fiber.NewError(fiber.StatusServiceUnavailable, "operator not keeping up")
	}
	return nil
}

// Broadcast sends a message to all connected operators. It never blocks.
func (l *Link) Broadcast(msg *protocol.Message) {
	l.mu.RLock()
	ops := make([]*Operator, 0, len(l.operators))
	for _, op := range l.operators {
		ops = append(ops, op)
	}
	l.mu.RUnlock()

	for _, op := range ops {
		l.send(op, msg)
	}
}

// OperatorCount returns the number of connected operators
func (l *Link) OperatorCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.operators)
}

// Stats contains link statistics
type Stats struct {
	OperatorCount    int    `json:"operator_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesDropped  uint64 `json:"messages_dropped"`
	StartsReceived   uint64 `json:"starts_received"`
	LandsReceived    uint64 `json:"lands_received"`
}

// GetStats returns link statistics
func (l *Link) GetStats() Stats {
	return Stats{
		OperatorCount:    l.OperatorCount(),
		MessagesReceived: l.messagesReceived.Load(),
		MessagesSent:     l.messagesSent.Load(),
		MessagesDropped:  l.messagesDropped.Load(),
		StartsReceived:   l.startsReceived.Load(),
		LandsReceived:    l.landsReceived.Load(),
	}
}

// OperatorInfo contains info about a connected operator
type OperatorInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetOperatorInfos returns info about all connected operators
func (l *Link) GetOperatorInfos() []OperatorInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	infos := make([]OperatorInfo, 0, len(l.operators))
	for _, op := range l.operators {
		infos = append(infos, OperatorInfo{
			ID:        op.ID,
			Connected: op.Connected,
			LastSeen:  op.LastSeen(),
		})
	}
	return infos
}

// RegisterAPIRoutes registers REST routes for operators and mission control
func (l *Link) RegisterAPIRoutes(api fiber.Router) {
	operators := api.Group("/operators")

	operators.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"operators": l.GetOperatorInfos(),
			"count":     l.OperatorCount(),
		})
	})

	operators.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(l.GetStats())
	})

	mission := api.Group("/mission")

	mission.Post("/start", func(c *fiber.Ctx) error {
		var req protocol.StartData
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
		}
		l.RequestStart("http", req.Source)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "start requested"})
	})

	mission.Post("/land", func(c *fiber.Ctx) error {
		var req protocol.LandData
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
		}
		l.RequestLand("http", req.Reason)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "land requested"})
	})
}
