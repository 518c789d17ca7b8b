// Package crew is the control core of the robot: a captain that decides,
// an observer that watches the discrete sensors, and navigators that take
// turns driving the wheels and tail.
package crew

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-ev3way/pkg/control"
	"github.com/teslashibe/go-ev3way/pkg/flags"
	"github.com/teslashibe/go-ev3way/pkg/robot"
	"github.com/teslashibe/go-ev3way/pkg/scheduler"
)

var tracer = otel.Tracer("github.com/teslashibe/go-ev3way/pkg/crew")

// Scheduler is the subset of *scheduler.Scheduler the crew depends on.
type Scheduler interface {
	Register(id scheduler.TaskID, period time.Duration, fn scheduler.Handler) error
	Start(id scheduler.TaskID) error
	Stop(id scheduler.TaskID) error
	Errors() <-chan error
}

// Deck is what every crew member shares.
type Deck struct {
	Config Config
	Sched  Scheduler
	Clock  scheduler.Clock
	Flags  *flags.Set
	Watch  *Watch
}

// Navigator drives the robot while it holds the watch.
type Navigator interface {
	Role() Role
	// GoOnDuty claims the watch and starts the navigator task. It is a
	// no-op when another navigator is already on duty.
	GoOnDuty(ctx context.Context) error
	// Operate is one navigator cycle.
	Operate(ctx context.Context) error
	// GoOffDuty stops the navigator task, waits out the grace period and
	// releases the watch. Variant cleanup runs whether or not it was on duty.
	GoOffDuty(ctx context.Context) error
}

// helm is the duty protocol and tail control shared by every navigator.
type helm struct {
	deck *Deck
	role Role
	tail robot.Motor
	log  *slog.Logger
}

func newHelm(deck *Deck, role Role, tail robot.Motor, logger *slog.Logger) helm {
	return helm{
		deck: deck,
		role: role,
		tail: tail,
		log:  logger.With("role", role.String()),
	}
}

func (h *helm) Role() Role { return h.role }

// goOnDuty claims the watch for h.role and runs onDuty before the first cycle.
func (h *helm) goOnDuty(ctx context.Context, onDuty func() error) error {
	_, span := tracer.Start(ctx, "navigator.go_on_duty",
		trace.WithAttributes(attribute.String("role", h.role.String())))
	defer span.End()

	w := h.deck.Watch
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.claim(h.role) {
		h.log.Debug("watch already held", "active", w.Active())
		return nil
	}
	if onDuty != nil {
		if err := onDuty(); err != nil {
			w.release(h.role)
			span.RecordError(err)
			return fmt.Errorf("%s on duty: %w", h.role, err)
		}
	}
	if err := h.deck.Sched.Start(scheduler.NavigatorTask); err != nil {
		w.release(h.role)
		span.RecordError(err)
		return fmt.Errorf("%s on duty: %w", h.role, err)
	}
	h.log.Info("on duty")
	return nil
}

// goOffDuty stops the navigator task, waits the grace period so an in-flight
// cycle can finish, then releases the watch. offDuty always runs last.
func (h *helm) goOffDuty(ctx context.Context, offDuty func() error) error {
	ctx, span := tracer.Start(ctx, "navigator.go_off_duty",
		trace.WithAttributes(attribute.String("role", h.role.String())))
	defer span.End()

	w := h.deck.Watch
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Active() == h.role {
		if err := h.deck.Sched.Stop(scheduler.NavigatorTask); err != nil {
			span.RecordError(err)
			return fmt.Errorf("%s off duty: %w", h.role, err)
		}
		if err := h.deck.Clock.Sleep(ctx, h.deck.Config.GracePeriod); err != nil {
			span.RecordError(err)
			return fmt.Errorf("%s grace period: %w", h.role, err)
		}
		w.release(h.role)
		h.log.Info("off duty")
	}
	if offDuty != nil {
		if err := offDuty(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("%s off duty: %w", h.role, err)
		}
	}
	return nil
}

// controlTail drives the tail one proportional step toward angle.
func (h *helm) controlTail(angle int32) error {
	return driveTail(h.tail, angle, h.deck.Config)
}

func driveTail(tail robot.Motor, angle int32, cfg Config) error {
	current, err := tail.Count()
	if err != nil {
		return fmt.Errorf("read tail encoder: %w", err)
	}
	pwm := control.TailPWM(angle, current, cfg.TailGain, cfg.TailPWMMax)
	if err := tail.SetPWM(int(pwm)); err != nil {
		return fmt.Errorf("set tail pwm: %w", err)
	}
	return nil
}
