package crew

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-ev3way/pkg/flags"
	"github.com/teslashibe/go-ev3way/pkg/robot"
	"github.com/teslashibe/go-ev3way/pkg/scheduler"
)

// Observer polls the discrete sensors and raises flags. It never clears one.
type Observer struct {
	deck  *Deck
	touch robot.TouchSensor
	sonar robot.SonarSensor
	back  robot.Button
	log   *slog.Logger

	// Edge state for logging only; Operate runs on one goroutine at a time.
	touched, blocked, backed bool
}

// NewObserver wires the observer to its sensors.
func NewObserver(deck *Deck, hw robot.Hardware, logger *slog.Logger) *Observer {
	return &Observer{
		deck:  deck,
		touch: hw.Touch,
		sonar: hw.Sonar,
		back:  hw.Back,
		log:   logger.With("role", "observer"),
	}
}

// GoOnDuty starts the observer task.
func (o *Observer) GoOnDuty(ctx context.Context) error {
	if err := o.deck.Sched.Start(scheduler.ObserverTask); err != nil {
		return fmt.Errorf("observer on duty: %w", err)
	}
	o.log.Info("on duty")
	return nil
}

// Operate reads each sensor once.
func (o *Observer) Operate(ctx context.Context) error {
	pressed, err := o.touch.IsPressed()
	if err != nil {
		return fmt.Errorf("read touch sensor: %w", err)
	}
	if pressed {
		o.deck.Flags.Raise(flags.Touch)
	}
	if pressed && !o.touched {
		o.log.Info("touch sensor pressed")
	}
	o.touched = pressed

	distance, err := o.sonar.Distance()
	if err != nil {
		return fmt.Errorf("read sonar: %w", err)
	}
	blocked := distance >= 0 && distance <= o.deck.Config.AlertDistance
	if blocked {
		o.deck.Flags.Raise(flags.Obstacle)
	}
	if blocked && !o.blocked {
		o.log.Info("obstacle ahead", "distance_cm", distance)
	}
	o.blocked = blocked

	backed, err := o.back.IsPressed()
	if err != nil {
		return fmt.Errorf("read back button: %w", err)
	}
	if backed {
		o.deck.Flags.Raise(flags.BackButton)
	}
	if backed && !o.backed {
		o.log.Info("back button pressed")
	}
	o.backed = backed
	return nil
}

// GoOffDuty stops the observer task.
func (o *Observer) GoOffDuty(ctx context.Context) error {
	if err := o.deck.Sched.Stop(scheduler.ObserverTask); err != nil {
		return fmt.Errorf("observer off duty: %w", err)
	}
	o.log.Info("off duty")
	return nil
}
