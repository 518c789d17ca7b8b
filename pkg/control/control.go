// Package control holds the pure per-cycle control laws: tail angle
// P-control, output saturation, backlash correction and line-edge steering.
package control

// Saturate clamps v to [-max, max].
func Saturate(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}

// SaturateInt clamps v to [-max, max].
func SaturateInt(v, max int) int {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}

// TailPWM is the proportional law driving the tail motor toward target.
// The result is saturated to [-max, max].
func TailPWM(target, current int32, gain, max float64) float64 {
	pwm := (float64(target) - float64(current)) * gain
	return Saturate(pwm, max)
}

// CancelBacklash corrects the encoder angles for gear backlash given the
// PWM commanded on the previous cycle. A negative command adds half, a
// positive one subtracts it, zero leaves the reading unchanged. Each side
// is corrected independently.
func CancelBacklash(prevLeft, prevRight int, left, right, half int32) (int32, int32) {
	return backlash(prevLeft, left, half), backlash(prevRight, right, half)
}

func backlash(prev int, enc, half int32) int32 {
	switch {
	case prev < 0:
		return enc + half
	case prev > 0:
		return enc - half
	default:
		return enc
	}
}

// Steer is a binary line-edge tracker. A reading at or above the midpoint
// of the white and black calibration levels steers +turn, anything below
// steers -turn.
func Steer(brightness, white, black, turn int) int {
	if brightness >= (white+black)/2 {
		return turn
	}
	return -turn
}
