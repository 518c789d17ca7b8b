// Package robot provides interfaces and implementations for EV3way hardware.
//
// The interfaces are small and segregated: each component depends only on
// the sensors and motors it actually drives. Reads are synchronous; an error
// from any read or write is treated as fatal by the control core.
package robot

// Motor is a tacho motor with an encoder.
type Motor interface {
	// Count returns the cumulative encoder angle in degrees.
	Count() (int32, error)
	// Reset zeroes the encoder and stops the motor.
	Reset() error
	// SetPWM drives the motor at a signed duty, -100..100.
	SetPWM(pwm int) error
}

// TouchSensor is a digital push sensor.
type TouchSensor interface {
	IsPressed() (bool, error)
}

// Button is a brick button (the back button).
type Button interface {
	IsPressed() (bool, error)
}

// SonarSensor measures distance to the nearest obstacle in centimetres.
// Negative readings mean no echo.
type SonarSensor interface {
	Distance() (int32, error)
}

// GyroSensor measures body angular velocity in deg/s.
type GyroSensor interface {
	AngularVelocity() (int32, error)
	Reset() error
}

// ColorSensor reads reflected light intensity, 0..100.
type ColorSensor interface {
	Brightness() (int, error)
}

// Battery reports the brick's supply voltage.
type Battery interface {
	VoltageMV() (int32, error)
}

// Color is a brick status LED colour.
type Color int

const (
	LEDOff Color = iota
	LEDRed
	LEDGreen
	LEDOrange
)

func (c Color) String() string {
	switch c {
	case LEDRed:
		return "red"
	case LEDGreen:
		return "green"
	case LEDOrange:
		return "orange"
	default:
		return "off"
	}
}

// Indicator drives the brick status LED.
type Indicator interface {
	SetLED(c Color) error
}

// Display prints status lines on the brick screen.
type Display interface {
	Print(line int, text string) error
}

// Hardware bundles every device the mission uses, one per port.
type Hardware struct {
	Touch  TouchSensor
	Sonar  SonarSensor
	Gyro   GyroSensor
	Color  ColorSensor
	Back   Button
	Left   Motor
	Right  Motor
	Tail   Motor
	Power  Battery
	LED    Indicator
	Screen Display
}

// Ensure Sim satisfies every device interface.
var (
	_ TouchSensor = (*simTouch)(nil)
	_ Button      = (*simButton)(nil)
	_ SonarSensor = (*Sim)(nil)
	_ GyroSensor  = (*Sim)(nil)
	_ ColorSensor = (*Sim)(nil)
	_ Battery     = (*Sim)(nil)
	_ Indicator   = (*Sim)(nil)
	_ Display     = (*Sim)(nil)
	_ Motor       = (*SimMotor)(nil)
)
