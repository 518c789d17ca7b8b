package remote

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/teslashibe/go-ev3way/pkg/flags"
)

func startLink(t *testing.T, ctx context.Context) (net.Conn, *flags.Set, *Link, <-chan error) {
	t.Helper()
	robotEnd, pitEnd := net.Pipe()
	set := &flags.Set{}
	l := New(robotEnd, set)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() { pitEnd.Close() })
	return pitEnd, set, l, done
}

func exchange(t *testing.T, pit net.Conn, c byte) {
	t.Helper()
	pit.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := pit.Write([]byte{c}); err != nil {
		t.Fatalf("write %q: %v", c, err)
	}
	echo := make([]byte, 1)
	if _, err := pit.Read(echo); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if echo[0] != c {
		t.Errorf("echo = %q, want %q", echo[0], c)
	}
}

func TestLink_EchoesAndStarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pit, set, l, _ := startLink(t, ctx)

	exchange(t, pit, '0')
	if set.Has(flags.RemoteStart) {
		t.Fatal("'0' should not raise RemoteStart")
	}

	exchange(t, pit, StartByte)
	if !set.Has(flags.RemoteStart) {
		t.Fatal("'1' should raise RemoteStart")
	}
	if l.Received() != 2 || l.Starts() != 1 {
		t.Errorf("received = %d, starts = %d; want 2, 1", l.Received(), l.Starts())
	}
}

func TestLink_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, _, _, done := startLink(t, ctx)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLink_StopsWhenPitHangsUp(t *testing.T) {
	pit, _, _, done := startLink(t, context.Background())
	pit.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil on EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after hang-up")
	}
}

type brokenPort struct{ closed bool }

func (p *brokenPort) Read([]byte) (int, error)    { return 0, errors.New("framing error") }
func (p *brokenPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *brokenPort) Close() error                { p.closed = true; return nil }

func TestLink_ReadError(t *testing.T) {
	port := &brokenPort{}
	err := New(port, &flags.Set{}).Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail on a read error")
	}
	if !port.closed {
		t.Error("Run should close the port on exit")
	}
}
