// Package flags provides the edge-triggered sensor condition set shared
// between the observer (writer) and the commander (reader).
//
// A raised flag means "at least one event occurred since it was last
// consumed". Flags are never counted.
package flags

import (
	"strings"
	"sync/atomic"
)

// Flag is a single sensor condition bit.
type Flag uint32

const (
	// RemoteStart is raised by a remote link (Bluetooth serial or operator websocket).
	RemoteStart Flag = 1 << iota
	// Touch is raised when the touch sensor is pressed.
	Touch
	// Obstacle is raised when the sonar reads within the alert distance.
	Obstacle
	// BackButton is raised when the brick's back button is pressed.
	BackButton
)

var names = []struct {
	f    Flag
	name string
}{
	{RemoteStart, "remote_start"},
	{Touch, "touch"},
	{Obstacle, "obstacle"},
	{BackButton, "back_button"},
}

// String returns the names of the set bits joined with "|".
func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range names {
		if f&n.f != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Has reports whether all bits of other are set in f.
func (f Flag) Has(other Flag) bool {
	return other != 0 && f&other == other
}

// Set is a lock-free bitset of flags.
// The zero value is ready to use with every flag lowered.
type Set struct {
	bits atomic.Uint32
}

// Raise sets the given flags. It never clears anything.
func (s *Set) Raise(f Flag) {
	for {
		old := s.bits.Load()
		if old&uint32(f) == uint32(f) {
			return
		}
		if s.bits.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

// Has reports whether every bit of f is currently raised.
func (s *Set) Has(f Flag) bool {
	return Flag(s.bits.Load()).Has(f)
}

// Consume lowers f and reports whether any of its bits were raised.
// Concurrent consumers of the same flag see the assertion exactly once.
func (s *Set) Consume(f Flag) bool {
	for {
		old := s.bits.Load()
		if old&uint32(f) == 0 {
			return false
		}
		if s.bits.CompareAndSwap(old, old&^uint32(f)) {
			return true
		}
	}
}

// Snapshot returns the currently raised flags without clearing them.
func (s *Set) Snapshot() Flag {
	return Flag(s.bits.Load())
}

// Clear lowers every flag.
func (s *Set) Clear() {
	s.bits.Store(0)
}
