package crew

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-ev3way/pkg/balancer"
	"github.com/teslashibe/go-ev3way/pkg/control"
	"github.com/teslashibe/go-ev3way/pkg/flags"
	"github.com/teslashibe/go-ev3way/pkg/robot"
)

// LineTracer balances on two wheels and follows a line edge.
type LineTracer struct {
	helm

	left, right robot.Motor
	gyro        robot.GyroSensor
	color       robot.ColorSensor
	power       robot.Battery
	balancer    balancer.Controller

	// PWM written on the previous cycle, for backlash correction.
	// Only Operate touches these, and cycles never overlap.
	prevLeft, prevRight int

	cycles atomic.Uint64
	last   atomic.Pointer[Command]
}

var _ Navigator = (*LineTracer)(nil)

// NewLineTracer wires the line tracer to its devices.
func NewLineTracer(deck *Deck, hw robot.Hardware, bal balancer.Controller, logger *slog.Logger) *LineTracer {
	return &LineTracer{
		helm:     newHelm(deck, RoleLineTracer, hw.Tail, logger),
		left:     hw.Left,
		right:    hw.Right,
		gyro:     hw.Gyro,
		color:    hw.Color,
		power:    hw.Power,
		balancer: bal,
	}
}

// GoOnDuty claims the watch and starts the navigator task.
func (lt *LineTracer) GoOnDuty(ctx context.Context) error {
	return lt.goOnDuty(ctx, nil)
}

// GoOffDuty releases the watch. Drive encoders are left as they are.
func (lt *LineTracer) GoOffDuty(ctx context.Context) error {
	return lt.goOffDuty(ctx, nil)
}

// Operate runs one balancing cycle.
func (lt *LineTracer) Operate(ctx context.Context) error {
	cfg := lt.deck.Config

	if err := lt.controlTail(cfg.TailAngleDrive); err != nil {
		return err
	}

	var forward, turn int
	if lt.deck.Flags.Consume(flags.Obstacle) {
		lt.log.Debug("obstacle, holding position")
	} else {
		brightness, err := lt.color.Brightness()
		if err != nil {
			return fmt.Errorf("read brightness: %w", err)
		}
		forward = cfg.Forward
		turn = control.Steer(brightness, cfg.LightWhite, cfg.LightBlack, cfg.Turn)
	}

	leftAngle, err := lt.left.Count()
	if err != nil {
		return fmt.Errorf("read left encoder: %w", err)
	}
	rightAngle, err := lt.right.Count()
	if err != nil {
		return fmt.Errorf("read right encoder: %w", err)
	}
	rate, err := lt.gyro.AngularVelocity()
	if err != nil {
		return fmt.Errorf("read gyro: %w", err)
	}
	mv, err := lt.power.VoltageMV()
	if err != nil {
		return fmt.Errorf("read battery: %w", err)
	}

	leftAngle, rightAngle = control.CancelBacklash(lt.prevLeft, lt.prevRight, leftAngle, rightAngle, cfg.BacklashHalf)

	pwmLeft, pwmRight := lt.balancer.Control(balancer.Input{
		Forward:    float64(forward),
		Turn:       float64(turn),
		GyroRate:   float64(rate),
		GyroOffset: float64(cfg.GyroOffset),
		LeftAngle:  float64(leftAngle),
		RightAngle: float64(rightAngle),
		BatteryMV:  float64(mv),
	})
	pwmLeft = control.SaturateInt(pwmLeft, cfg.DrivePWMMax)
	pwmRight = control.SaturateInt(pwmRight, cfg.DrivePWMMax)

	if err := lt.left.SetPWM(pwmLeft); err != nil {
		return fmt.Errorf("set left pwm: %w", err)
	}
	if err := lt.right.SetPWM(pwmRight); err != nil {
		return fmt.Errorf("set right pwm: %w", err)
	}
	lt.prevLeft, lt.prevRight = pwmLeft, pwmRight
	lt.last.Store(&Command{Forward: forward, Turn: turn, Left: pwmLeft, Right: pwmRight})

	if n := lt.cycles.Add(1); cfg.HeartbeatCycles > 0 && n%cfg.HeartbeatCycles == 0 {
		lt.log.Debug("heartbeat", "cycles", n, "left", pwmLeft, "right", pwmRight, "turn", turn)
	}
	return nil
}

// LastCommand returns the most recent drive command, or nil before the first cycle.
func (lt *LineTracer) LastCommand() *Command {
	return lt.last.Load()
}
