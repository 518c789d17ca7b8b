package crew

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-ev3way/pkg/balancer"
	"github.com/teslashibe/go-ev3way/pkg/flags"
	"github.com/teslashibe/go-ev3way/pkg/robot"
	"github.com/teslashibe/go-ev3way/pkg/scheduler"
)

// fastConfig shrinks every period so a whole mission runs in milliseconds.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.CaptainPeriod = 5 * time.Millisecond
	cfg.ObserverPeriod = 2 * time.Millisecond
	cfg.NavigatorPeriod = time.Millisecond
	cfg.GracePeriod = 20 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.FinalDelay = 10 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func startMission(t *testing.T, hw robot.Hardware, rec Recorder) (*Captain, *scheduler.Scheduler, <-chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sched := scheduler.New(ctx)
	t.Cleanup(sched.Close)

	c, err := NewCaptain(Options{
		Config:    fastConfig(),
		Hardware:  hw,
		Balancer:  balancer.NewStateFeedback(balancer.DefaultGains()),
		Scheduler: sched,
		Recorder:  rec,
		Logger:    discard,
	})
	if err != nil {
		t.Fatalf("NewCaptain: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- NewMission(c).Run(ctx) }()
	return c, sched, done, cancel
}

func TestMission_EndToEnd(t *testing.T) {
	sim := robot.NewSim()
	rec := &memRecorder{}
	c, sched, done, cancel := startMission(t, sim.Hardware(), rec)
	defer cancel()

	waitFor(t, "anchor watch on duty", func() bool { return c.Active() == RoleAnchorWatch })

	sim.SetTouch(true)
	waitFor(t, "navigator off duty", func() bool { return c.Active() == RoleNone })
	sim.SetTouch(false)
	if c.Landing() {
		t.Fatal("touch must not land the mission")
	}

	sim.SetBack(true)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("mission did not land")
	}

	for _, id := range []scheduler.TaskID{scheduler.CaptainTask, scheduler.ObserverTask, scheduler.NavigatorTask} {
		if sched.Running(id) {
			t.Errorf("%s still running after landing", id)
		}
	}

	kinds := rec.kinds()
	want := []EventKind{EventTakeoff, EventOnDuty, EventDeparting, EventOffDuty, EventLanding, EventLanded}
	at := 0
	for _, w := range want {
		for at < len(kinds) && kinds[at] != w {
			at++
		}
		if at == len(kinds) {
			t.Fatalf("recorded %v, missing %v in order", kinds, w)
		}
	}
}

func TestMission_FatalSensorErrorSafeStops(t *testing.T) {
	sim := robot.NewSim()
	hw := sim.Hardware()
	boom := errors.New("port 1 disconnected")
	hw.Touch = failingTouch{err: boom}

	c, _, done, cancel := startMission(t, hw, nil)
	defer cancel()

	select {
	case err := <-done:
		var terr *scheduler.TaskError
		if !errors.As(err, &terr) || terr.Task != scheduler.ObserverTask {
			t.Fatalf("Run error = %v, want observer TaskError", err)
		}
		if !errors.Is(err, boom) {
			t.Errorf("Run error = %v, want wrapped %v", err, boom)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("mission did not abort")
	}

	if sim.LED() != robot.LEDRed {
		t.Errorf("LED = %v, want red after safe stop", sim.LED())
	}
	if sim.Left.PWM() != 0 || sim.Right.PWM() != 0 {
		t.Errorf("drive PWM = %d/%d, want 0/0", sim.Left.PWM(), sim.Right.PWM())
	}
	if c.Active() != RoleNone {
		t.Errorf("Active = %v after abort", c.Active())
	}
}

func TestMission_CancelLandsCleanly(t *testing.T) {
	sim := robot.NewSim()
	c, _, done, cancel := startMission(t, sim.Hardware(), nil)

	waitFor(t, "anchor watch on duty", func() bool { return c.Active() == RoleAnchorWatch })
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("mission did not land after cancel")
	}
	if c.Active() != RoleNone {
		t.Errorf("Active = %v after cancel", c.Active())
	}
	if c.Navigator(RoleAnchorWatch) != nil {
		t.Error("crew should be torn down")
	}
}

func TestMission_RemoteStartFlag(t *testing.T) {
	sim := robot.NewSim()
	c, _, done, cancel := startMission(t, sim.Hardware(), nil)
	defer cancel()

	waitFor(t, "anchor watch on duty", func() bool { return c.Active() == RoleAnchorWatch })
	c.Flags().Raise(flags.RemoteStart)
	waitFor(t, "navigator off duty", func() bool { return c.Active() == RoleNone })

	c.Flags().Raise(flags.BackButton)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("mission did not land")
	}
}
