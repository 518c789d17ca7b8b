package crew

import (
	"errors"
	"fmt"
	"time"
)

// Config holds every tunable constant of the control core.
// Env tags are relative; internal/config applies the EV3WAY_CREW_ prefix.
type Config struct {
	// Observer
	AlertDistance int32 `env:"ALERT_DISTANCE" envDefault:"30"` // sonar cm; [0, AlertDistance] is an obstacle

	// Tail control
	TailGain         float64 `env:"TAIL_GAIN" envDefault:"2.5"`
	TailPWMMax       float64 `env:"TAIL_PWM_MAX" envDefault:"60"`
	TailAngleStandUp int32   `env:"TAIL_ANGLE_STAND_UP" envDefault:"93"` // full stop posture
	TailAngleDrive   int32   `env:"TAIL_ANGLE_DRIVE" envDefault:"3"`     // balancing posture

	// Drive
	DrivePWMMax  int   `env:"DRIVE_PWM_MAX" envDefault:"100"`
	BacklashHalf int32 `env:"BACKLASH_HALF" envDefault:"4"` // degrees
	GyroOffset   int32 `env:"GYRO_OFFSET" envDefault:"0"`

	// Line tracing
	LightWhite int `env:"LIGHT_WHITE" envDefault:"40"`
	LightBlack int `env:"LIGHT_BLACK" envDefault:"0"`
	Forward    int `env:"FORWARD" envDefault:"5"`
	Turn       int `env:"TURN" envDefault:"20"`

	// Periods
	CaptainPeriod   time.Duration `env:"CAPTAIN_PERIOD" envDefault:"50ms"`
	ObserverPeriod  time.Duration `env:"OBSERVER_PERIOD" envDefault:"20ms"`
	NavigatorPeriod time.Duration `env:"NAVIGATOR_PERIOD" envDefault:"4ms"`

	// Transitions and teardown
	GracePeriod  time.Duration `env:"GRACE_PERIOD" envDefault:"1s"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"10ms"`
	FinalDelay   time.Duration `env:"FINAL_DELAY" envDefault:"1s"`

	// SafeStopCycles bounds how long the fatal path spends parking the tail.
	SafeStopCycles int `env:"SAFE_STOP_CYCLES" envDefault:"250"`

	// HeartbeatCycles is how often (in navigator cycles) the line tracer logs a heartbeat.
	HeartbeatCycles uint64 `env:"HEARTBEAT_CYCLES" envDefault:"250"`
}

// DefaultConfig returns the values the robot was calibrated with.
func DefaultConfig() Config {
	return Config{
		AlertDistance: 30,

		TailGain:         2.5,
		TailPWMMax:       60,
		TailAngleStandUp: 93,
		TailAngleDrive:   3,

		DrivePWMMax:  100,
		BacklashHalf: 4,
		GyroOffset:   0,

		LightWhite: 40,
		LightBlack: 0,
		Forward:    5,
		Turn:       20,

		CaptainPeriod:   50 * time.Millisecond,
		ObserverPeriod:  20 * time.Millisecond,
		NavigatorPeriod: 4 * time.Millisecond,

		GracePeriod:  time.Second,
		PollInterval: 10 * time.Millisecond,
		FinalDelay:   time.Second,

		SafeStopCycles:  250,
		HeartbeatCycles: 250,
	}
}

// Validate reports configuration that would make the control loop unsafe.
func (c Config) Validate() error {
	var errs []error
	if c.TailPWMMax <= 0 || c.TailPWMMax > 100 {
		errs = append(errs, fmt.Errorf("tail pwm max %v out of (0, 100]", c.TailPWMMax))
	}
	if c.DrivePWMMax <= 0 || c.DrivePWMMax > 100 {
		errs = append(errs, fmt.Errorf("drive pwm max %d out of (0, 100]", c.DrivePWMMax))
	}
	if c.TailGain <= 0 {
		errs = append(errs, fmt.Errorf("tail gain %v must be positive", c.TailGain))
	}
	if c.AlertDistance < 0 {
		errs = append(errs, fmt.Errorf("alert distance %d must not be negative", c.AlertDistance))
	}
	if c.BacklashHalf < 0 {
		errs = append(errs, fmt.Errorf("backlash half %d must not be negative", c.BacklashHalf))
	}
	for name, d := range map[string]time.Duration{
		"captain period":   c.CaptainPeriod,
		"observer period":  c.ObserverPeriod,
		"navigator period": c.NavigatorPeriod,
		"poll interval":    c.PollInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s %v must be positive", name, d))
		}
	}
	if c.GracePeriod < 0 || c.FinalDelay < 0 {
		errs = append(errs, errors.New("grace period and final delay must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
