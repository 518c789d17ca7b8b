package robot

import (
	"math"
	"sync"
)

// simEncoderGain is how many encoder degrees one PWM unit moves the
// simulated motor per write. It is deliberately crude.
const simEncoderGain = 0.1

// SimMotor is an in-memory motor whose encoder integrates commanded PWM.
type SimMotor struct {
	mu     sync.Mutex
	count  float64
	pwm    int
	writes int
	resets int
}

// Count implements Motor.
func (m *SimMotor) Count() (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int32(math.Round(m.count)), nil
}

// Reset implements Motor.
func (m *SimMotor) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count = 0
	m.pwm = 0
	m.resets++
	return nil
}

// SetPWM implements Motor.
func (m *SimMotor) SetPWM(pwm int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pwm = pwm
	m.writes++
	m.count += float64(pwm) * simEncoderGain
	return nil
}

// SetCount overrides the encoder reading.
func (m *SimMotor) SetCount(deg int32) {
	m.mu.Lock()
	m.count = float64(deg)
	m.mu.Unlock()
}

// PWM returns the last commanded duty.
func (m *SimMotor) PWM() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pwm
}

// Writes returns how many times SetPWM was called.
func (m *SimMotor) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Resets returns how many times Reset was called.
func (m *SimMotor) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Sim is a simulated EV3 brick with every sensor and motor the mission uses.
// Test code and the CLI's -sim mode drive it through the Set* helpers.
type Sim struct {
	Left, Right, Tail *SimMotor

	mu         sync.Mutex
	touch      bool
	back       bool
	distance   int32
	gyroRate   int32
	gyroResets int
	gyroErr    error
	brightness int
	voltage    int32
	led        Color
	lines      map[int]string
}

// NewSim returns a brick at rest: nothing pressed, no obstacle, full battery.
func NewSim() *Sim {
	return &Sim{
		Left:     &SimMotor{},
		Right:    &SimMotor{},
		Tail:     &SimMotor{},
		distance: 255,
		voltage:  8000,
		lines:    make(map[int]string),
	}
}

// Hardware returns the bundle wired to this simulator.
func (s *Sim) Hardware() Hardware {
	return Hardware{
		Touch:  (*simTouch)(s),
		Sonar:  s,
		Gyro:   s,
		Color:  s,
		Back:   (*simButton)(s),
		Left:   s.Left,
		Right:  s.Right,
		Tail:   s.Tail,
		Power:  s,
		LED:    s,
		Screen: s,
	}
}

// SetTouch holds or releases the touch sensor.
func (s *Sim) SetTouch(pressed bool) {
	s.mu.Lock()
	s.touch = pressed
	s.mu.Unlock()
}

// SetBack holds or releases the back button.
func (s *Sim) SetBack(pressed bool) {
	s.mu.Lock()
	s.back = pressed
	s.mu.Unlock()
}

// SetDistance sets the sonar reading in centimetres.
func (s *Sim) SetDistance(cm int32) {
	s.mu.Lock()
	s.distance = cm
	s.mu.Unlock()
}

// SetGyroRate sets the gyro reading in deg/s.
func (s *Sim) SetGyroRate(rate int32) {
	s.mu.Lock()
	s.gyroRate = rate
	s.mu.Unlock()
}

// FailGyro makes every following gyro read return err. Pass nil to heal.
func (s *Sim) FailGyro(err error) {
	s.mu.Lock()
	s.gyroErr = err
	s.mu.Unlock()
}

// SetBrightness sets the reflected light reading.
func (s *Sim) SetBrightness(b int) {
	s.mu.Lock()
	s.brightness = b
	s.mu.Unlock()
}

// SetVoltage sets the battery reading in millivolts.
func (s *Sim) SetVoltage(mv int32) {
	s.mu.Lock()
	s.voltage = mv
	s.mu.Unlock()
}

// Distance implements SonarSensor.
func (s *Sim) Distance() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.distance, nil
}

// AngularVelocity implements GyroSensor.
func (s *Sim) AngularVelocity() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gyroErr != nil {
		return 0, s.gyroErr
	}
	return s.gyroRate, nil
}

// Reset implements GyroSensor.
func (s *Sim) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gyroErr != nil {
		return s.gyroErr
	}
	s.gyroRate = 0
	s.gyroResets++
	return nil
}

// GyroResets returns how many times the gyro was reset.
func (s *Sim) GyroResets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gyroResets
}

// Brightness implements ColorSensor.
func (s *Sim) Brightness() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brightness, nil
}

// VoltageMV implements Battery.
func (s *Sim) VoltageMV() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltage, nil
}

// SetLED implements Indicator.
func (s *Sim) SetLED(c Color) error {
	s.mu.Lock()
	s.led = c
	s.mu.Unlock()
	return nil
}

// LED returns the current LED colour.
func (s *Sim) LED() Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led
}

// Print implements Display.
func (s *Sim) Print(line int, text string) error {
	s.mu.Lock()
	s.lines[line] = text
	s.mu.Unlock()
	return nil
}

// Line returns what was last printed on a display line.
func (s *Sim) Line(n int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[n]
}

type simTouch Sim

func (t *simTouch) IsPressed() (bool, error) {
	s := (*Sim)(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touch, nil
}

type simButton Sim

func (b *simButton) IsPressed() (bool, error) {
	s := (*Sim)(b)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.back, nil
}
