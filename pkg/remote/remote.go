// Package remote is the Bluetooth serial link to the pit laptop. Every byte
// received is echoed back; '1' requests a remote start.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"go.bug.st/serial"

	"github.com/teslashibe/go-ev3way/internal/log"
	"github.com/teslashibe/go-ev3way/pkg/flags"
)

// StartByte is the command byte that raises the remote-start flag.
const StartByte = '1'

// Port is the byte stream the link runs on. serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
}

// Open opens a serial port at the given baud rate.
func Open(name string, baud int) (Port, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return port, nil
}

// Link reads commands from a Port.
type Link struct {
	port  Port
	flags *flags.Set
	log   *slog.Logger

	received atomic.Uint64
	starts   atomic.Uint64
}

// New creates a link over port. The link owns the port and closes it when
// Run returns.
func New(port Port, set *flags.Set) *Link {
	return &Link{
		port:  port,
		flags: set,
		log:   log.With("component", "remote"),
	}
}

// Run reads until ctx is done or the port fails. Reads block, so Run must
// have its own goroutine.
func (l *Link) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.port.Close() })
	defer func() {
		if stop() {
			l.port.Close()
		}
	}()

	l.log.Info("remote link up")
	buf := make([]byte, 1)
	for {
		n, err := l.port.Read(buf)
		if n == 1 {
			if werr := l.handle(buf[0]); werr != nil && ctx.Err() == nil {
				return werr
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				l.log.Info("remote link down", "received", l.received.Load())
				return nil
			}
			return fmt.Errorf("remote read: %w", err)
		}
	}
}

func (l *Link) handle(c byte) error {
	l.received.Add(1)
	if _, err := l.port.Write([]byte{c}); err != nil {
		return fmt.Errorf("remote echo: %w", err)
	}
	if c == StartByte {
		l.starts.Add(1)
		l.flags.Raise(flags.RemoteStart)
		l.log.Info("remote start")
	} else {
		l.log.Debug("remote byte", "byte", c)
	}
	return nil
}

// Received returns how many bytes the link has read.
func (l *Link) Received() uint64 {
	return l.received.Load()
}

// Starts returns how many start commands the link has seen.
func (l *Link) Starts() uint64 {
	return l.starts.Load()
}
