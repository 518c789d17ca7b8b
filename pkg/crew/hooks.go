package crew

import (
	"context"
	"errors"
	"time"
)

// EventKind classifies a logbook entry.
type EventKind string

const (
	EventTakeoff   EventKind = "takeoff"
	EventOnDuty    EventKind = "on_duty"
	EventOffDuty   EventKind = "off_duty"
	EventDeparting EventKind = "departing"
	EventLanding   EventKind = "landing"
	EventSafeStop  EventKind = "safe_stop"
	EventLanded    EventKind = "landed"
)

// Entry is one mission event.
type Entry struct {
	Time   time.Time `json:"time"`
	Kind   EventKind `json:"kind"`
	Role   Role      `json:"role"`
	Detail string    `json:"detail,omitempty"`
}

// Recorder persists mission events. Failures are logged, never fatal.
type Recorder interface {
	Record(ctx context.Context, missionID string, e Entry) error
}

// Recorders fans an entry out to several recorders. Every recorder sees
// the entry even when an earlier one fails.
type Recorders []Recorder

// Record implements Recorder.
func (rs Recorders) Record(ctx context.Context, missionID string, e Entry) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, missionID, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Command is the last drive command the line tracer issued.
type Command struct {
	Forward int `json:"forward"`
	Turn    int `json:"turn"`
	Left    int `json:"left"`
	Right   int `json:"right"`
}

// Status is a snapshot of the crew published once per captain cycle.
type Status struct {
	MissionID string    `json:"mission_id"`
	Time      time.Time `json:"time"`
	Active    Role      `json:"active"`
	Landing   bool      `json:"landing"`
	Flags     string    `json:"flags"`
	Command   *Command  `json:"command,omitempty"`
	Cycles    uint64    `json:"captain_cycles"`
}

// StatusSink receives status snapshots. Publish must not block.
type StatusSink interface {
	Publish(Status)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(Status)

// Publish implements StatusSink.
func (f StatusFunc) Publish(s Status) { f(s) }

// Sinks fans a status out to several sinks.
type Sinks []StatusSink

// Publish implements StatusSink.
func (ss Sinks) Publish(s Status) {
	for _, sink := range ss {
		if sink != nil {
			sink.Publish(s)
		}
	}
}
