// Package balancer defines the contract of the inverted-pendulum balance
// controller consumed by the line tracer.
//
// The control law itself belongs to an external collaborator. StateFeedback
// is a simple stand-in so the simulated robot has something to run.
package balancer

import (
	"math"
	"sync"
)

// MaxPWM bounds the PWM values any Controller in this package returns.
const MaxPWM = 100

// Input is the robot state handed to the balance controller each cycle.
type Input struct {
	Forward    float64 // forward command, -100..100
	Turn       float64 // turn command, -100..100
	GyroRate   float64 // deg/s
	GyroOffset float64 // deg/s
	LeftAngle  float64 // backlash-adjusted encoder angle, deg
	RightAngle float64 // backlash-adjusted encoder angle, deg
	BatteryMV  float64 // millivolts
}

// Controller maps robot state to left/right drive PWM.
type Controller interface {
	// Init resets internal state before a new balancing run.
	Init()
	// Control computes one cycle of drive PWM.
	Control(in Input) (left, right int)
}

// Func adapts a stateless function to a Controller. Init does nothing.
type Func func(in Input) (left, right int)

// Init implements Controller.
func (f Func) Init() {}

// Control implements Controller.
func (f Func) Control(in Input) (int, int) {
	return f(in)
}

// Gains parameterise StateFeedback.
type Gains struct {
	Angle      float64 // on integrated body angle
	Rate       float64 // on body angular rate
	WheelAngle float64 // on mean wheel angle error
	WheelRate  float64 // on mean wheel rate
	Turn       float64 // differential share of the turn command
	DT         float64 // cycle time in seconds
}

// DefaultGains are tuned for the simulated EV3way at a 4ms cycle.
func DefaultGains() Gains {
	return Gains{
		Angle:      -0.86,
		Rate:       -0.06,
		WheelAngle: -0.02,
		WheelRate:  -0.20,
		Turn:       0.5,
		DT:         0.004,
	}
}

// StateFeedback is a linear state-feedback balance law with battery
// compensation. It keeps integrator state between calls, reset by Init.
type StateFeedback struct {
	gains Gains

	mu        sync.Mutex
	bodyAngle float64 // integrated gyro, deg
	wheelRef  float64 // integrated forward command, deg
	lastWheel float64
}

var _ Controller = (*StateFeedback)(nil)

// NewStateFeedback creates a controller with the given gains.
func NewStateFeedback(g Gains) *StateFeedback {
	return &StateFeedback{gains: g}
}

// Init implements Controller.
func (b *StateFeedback) Init() {
	b.mu.Lock()
	b.bodyAngle = 0
	b.wheelRef = 0
	b.lastWheel = 0
	b.mu.Unlock()
}

// Control implements Controller.
func (b *StateFeedback) Control(in Input) (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.gains
	rate := in.GyroRate - in.GyroOffset
	b.bodyAngle += rate * g.DT

	wheel := (in.LeftAngle + in.RightAngle) / 2
	wheelRate := (wheel - b.lastWheel) / g.DT
	b.lastWheel = wheel
	b.wheelRef += in.Forward * g.DT * 10

	u := g.Angle*b.bodyAngle + g.Rate*rate +
		g.WheelAngle*(wheel-b.wheelRef) + g.WheelRate*wheelRate

	// Scale by nominal voltage so a sagging battery gets proportionally more duty.
	if in.BatteryMV > 0 {
		u *= 8000 / in.BatteryMV
	}
	u += in.Forward

	turn := in.Turn * g.Turn
	left := clampPWM(u + turn)
	right := clampPWM(u - turn)
	return left, right
}

func clampPWM(v float64) int {
	r := int(math.Round(v))
	if r > MaxPWM {
		return MaxPWM
	}
	if r < -MaxPWM {
		return -MaxPWM
	}
	return r
}
