package balancer

import "testing"

func TestFunc(t *testing.T) {
	var got Input
	c := Func(func(in Input) (int, int) {
		got = in
		return 11, -11
	})
	c.Init()

	in := Input{Forward: 5, Turn: 20, BatteryMV: 8000}
	l, r := c.Control(in)
	if l != 11 || r != -11 {
		t.Errorf("Control = (%d, %d), want (11, -11)", l, r)
	}
	if got != in {
		t.Errorf("Func received %+v, want %+v", got, in)
	}
}

func TestStateFeedback_Bounded(t *testing.T) {
	b := NewStateFeedback(DefaultGains())

	for i := 0; i < 1000; i++ {
		l, r := b.Control(Input{
			Forward:   100,
			Turn:      100,
			GyroRate:  500,
			LeftAngle: float64(i * 50),
			BatteryMV: 6000,
		})
		if l > MaxPWM || l < -MaxPWM || r > MaxPWM || r < -MaxPWM {
			t.Fatalf("cycle %d: Control = (%d, %d) exceeds ±%d", i, l, r, MaxPWM)
		}
	}
}

func TestStateFeedback_TurnIsDifferential(t *testing.T) {
	b := NewStateFeedback(DefaultGains())

	l, r := b.Control(Input{Turn: 20, BatteryMV: 8000})
	if l <= r {
		t.Errorf("positive turn should drive left harder: got (%d, %d)", l, r)
	}
}

func TestStateFeedback_InitResetsState(t *testing.T) {
	b := NewStateFeedback(DefaultGains())
	in := Input{GyroRate: 30, BatteryMV: 8000}

	first, _ := b.Control(in)
	for i := 0; i < 100; i++ {
		b.Control(in)
	}
	b.Init()
	again, _ := b.Control(in)

	if first != again {
		t.Errorf("after Init the first cycle should repeat: got %d, want %d", again, first)
	}
}
