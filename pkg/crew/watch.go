package crew

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Role names a navigator variant.
type Role int32

const (
	RoleNone Role = iota
	RoleAnchorWatch
	RoleLineTracer
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleAnchorWatch:
		return "anchor_watch"
	case RoleLineTracer:
		return "line_tracer"
	default:
		return fmt.Sprintf("role(%d)", int32(r))
	}
}

// MarshalText lets Role appear by name in JSON status frames.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*r = RoleNone
	case "anchor_watch":
		*r = RoleAnchorWatch
	case "line_tracer":
		*r = RoleLineTracer
	default:
		return fmt.Errorf("crew: unknown role %q", text)
	}
	return nil
}

// Watch is the single navigator slot. At most one role holds it at a time.
//
// Reads are lock-free so the navigator task can dispatch every cycle.
// Transitions (including their grace periods) are serialized by mu, so the
// captain and the landing path never interleave a handoff.
type Watch struct {
	mu     sync.Mutex
	active atomic.Int32
}

// Active returns the role currently on duty, or RoleNone.
func (w *Watch) Active() Role {
	return Role(w.active.Load())
}

// claim installs r if the slot is empty.
func (w *Watch) claim(r Role) bool {
	return w.active.CompareAndSwap(int32(RoleNone), int32(r))
}

// release empties the slot if r holds it.
func (w *Watch) release(r Role) bool {
	return w.active.CompareAndSwap(int32(r), int32(RoleNone))
}
