package crew

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-ev3way/pkg/balancer"
	"github.com/teslashibe/go-ev3way/pkg/robot"
)

// AnchorWatch holds the robot stationary on its tail. It commands the tail
// only; the drive motors and gyro are touched when it hands over, to leave
// a clean state for the next balancing run.
type AnchorWatch struct {
	helm

	left, right robot.Motor
	gyro        robot.GyroSensor
	balancer    balancer.Controller
	led         robot.Indicator
}

var _ Navigator = (*AnchorWatch)(nil)

// NewAnchorWatch wires the anchor watch to its devices.
func NewAnchorWatch(deck *Deck, hw robot.Hardware, bal balancer.Controller, logger *slog.Logger) *AnchorWatch {
	return &AnchorWatch{
		helm:     newHelm(deck, RoleAnchorWatch, hw.Tail, logger),
		left:     hw.Left,
		right:    hw.Right,
		gyro:     hw.Gyro,
		balancer: bal,
		led:      hw.LED,
	}
}

// GoOnDuty zeroes the tail encoder and shows orange before the first cycle.
func (a *AnchorWatch) GoOnDuty(ctx context.Context) error {
	return a.goOnDuty(ctx, func() error {
		if err := a.tail.Reset(); err != nil {
			return fmt.Errorf("reset tail: %w", err)
		}
		if err := a.led.SetLED(robot.LEDOrange); err != nil {
			a.log.Warn("led", "error", err)
		}
		return nil
	})
}

// Operate holds the tail at the stand-up angle. No drive commands are issued.
func (a *AnchorWatch) Operate(ctx context.Context) error {
	return a.controlTail(a.deck.Config.TailAngleStandUp)
}

// GoOffDuty releases the watch, then resets the drive encoders and the gyro
// and re-initializes the balancer so the next balancing run starts clean.
func (a *AnchorWatch) GoOffDuty(ctx context.Context) error {
	return a.goOffDuty(ctx, func() error {
		if err := a.left.Reset(); err != nil {
			return fmt.Errorf("reset left motor: %w", err)
		}
		if err := a.right.Reset(); err != nil {
			return fmt.Errorf("reset right motor: %w", err)
		}
		if err := a.gyro.Reset(); err != nil {
			return fmt.Errorf("reset gyro: %w", err)
		}
		a.balancer.Init()
		if err := a.led.SetLED(robot.LEDGreen); err != nil {
			a.log.Warn("led", "error", err)
		}
		return nil
	})
}
