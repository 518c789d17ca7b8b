package flags

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSet_RaiseAndConsume(t *testing.T) {
	var s Set

	if s.Has(Touch) {
		t.Fatal("zero Set should have no flags raised")
	}

	s.Raise(Touch)
	s.Raise(Touch)

	if !s.Has(Touch) {
		t.Fatal("Touch should be raised")
	}
	if s.Has(Obstacle) {
		t.Error("Obstacle should not be raised")
	}

	if !s.Consume(Touch) {
		t.Error("first Consume should report the raised flag")
	}
	if s.Consume(Touch) {
		t.Error("second Consume should report nothing: flags are not counted")
	}
}

func TestSet_ConsumeLeavesOtherFlags(t *testing.T) {
	var s Set
	s.Raise(Obstacle | BackButton)

	if !s.Consume(Obstacle) {
		t.Fatal("Obstacle should be consumed")
	}
	if !s.Has(BackButton) {
		t.Error("BackButton should survive consuming Obstacle")
	}
	if got := s.Snapshot(); got != BackButton {
		t.Errorf("Snapshot = %v, want %v", got, BackButton)
	}
}

func TestSet_SnapshotDoesNotClear(t *testing.T) {
	var s Set
	s.Raise(RemoteStart)

	_ = s.Snapshot()
	if !s.Has(RemoteStart) {
		t.Error("Snapshot must not clear flags")
	}

	s.Clear()
	if s.Snapshot() != 0 {
		t.Error("Clear should lower every flag")
	}
}

func TestSet_ConsumeExactlyOncePerAssertion(t *testing.T) {
	var s Set
	s.Raise(Obstacle)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Consume(Obstacle) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Obstacle consumed %d times, want 1", wins.Load())
	}
}

func TestFlag_String(t *testing.T) {
	tests := []struct {
		f    Flag
		want string
	}{
		{0, "none"},
		{Touch, "touch"},
		{RemoteStart | BackButton, "remote_start|back_button"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", uint32(tt.f), got, tt.want)
		}
	}
}
