// Package protocol defines the WebSocket messages exchanged between the
// robot and a ground operator.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-ev3way/pkg/crew"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Robot → Operator messages
	TypeStatus MessageType = "status" // Crew snapshot, once per captain cycle
	TypeEvent  MessageType = "event"  // Logbook entry
	TypeHello  MessageType = "hello"  // Sent once on connect

	// Operator → Robot messages
	TypeStart MessageType = "start" // Remote start, same as the Bluetooth '1'
	TypeLand  MessageType = "land"  // Remote back-button press

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Robot → Operator
// =============================================================================

// HelloData introduces the robot to a newly connected operator.
type HelloData struct {
	MissionID string `json:"mission_id"`
	Robot     string `json:"robot"`
}

// EventData is a logbook entry tagged with its mission.
type EventData struct {
	MissionID string `json:"mission_id"`
	crew.Entry
}

// =============================================================================
// Operator → Robot
// =============================================================================

// StartData accompanies a remote start.
type StartData struct {
	Source string `json:"source,omitempty"` // free-form operator tag
}

// LandData accompanies a remote landing request.
type LandData struct {
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// Bidirectional
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

// =============================================================================
// Constructors
// =============================================================================

// NewHelloMessage creates a hello message
func NewHelloMessage(missionID, robot string) (*Message, error) {
	return NewMessage(TypeHello, HelloData{MissionID: missionID, Robot: robot})
}

// NewStatusMessage creates a status message from a crew snapshot
func NewStatusMessage(s crew.Status) (*Message, error) {
	return NewMessage(TypeStatus, s)
}

// NewEventMessage creates an event message
func NewEventMessage(missionID string, e crew.Entry) (*Message, error) {
	return NewMessage(TypeEvent, EventData{MissionID: missionID, Entry: e})
}

// NewStartMessage creates a remote start message
func NewStartMessage(source string) (*Message, error) {
	return NewMessage(TypeStart, StartData{Source: source})
}

// NewLandMessage creates a remote landing message
func NewLandMessage(reason string) (*Message, error) {
	return NewMessage(TypeLand, LandData{Reason: reason})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Accessors
// =============================================================================

// GetHelloData extracts hello data from a message
func (m *Message) GetHelloData() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatus extracts a crew snapshot from a message
func (m *Message) GetStatus() (*crew.Status, error) {
	var data crew.Status
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetEventData extracts event data from a message
func (m *Message) GetEventData() (*EventData, error) {
	var data EventData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStartData extracts start data from a message
func (m *Message) GetStartData() (*StartData, error) {
	var data StartData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetLandData extracts land data from a message
func (m *Message) GetLandData() (*LandData, error) {
	var data LandData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
