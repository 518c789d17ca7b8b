package crew

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-ev3way/pkg/balancer"
	"github.com/teslashibe/go-ev3way/pkg/flags"
	"github.com/teslashibe/go-ev3way/pkg/robot"
	"github.com/teslashibe/go-ev3way/pkg/scheduler"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// journal is an ordered record of scheduler and clock calls shared by the
// fakes below, so tests can assert on interleaving.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// index returns the position of the first entry equal to e at or after from, or -1.
func (j *journal) index(e string, from int) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := from; i < len(j.entries); i++ {
		if j.entries[i] == e {
			return i
		}
	}
	return -1
}

// mockScheduler records calls instead of running goroutines. Tests fire
// handlers by hand.
type mockScheduler struct {
	j *journal

	mu       sync.Mutex
	handlers map[scheduler.TaskID]scheduler.Handler
	running  map[scheduler.TaskID]bool
	starts   map[scheduler.TaskID]int
	failOn   scheduler.TaskID
	errs     chan error
}

func newMockScheduler(j *journal) *mockScheduler {
	return &mockScheduler{
		j:        j,
		handlers: make(map[scheduler.TaskID]scheduler.Handler),
		running:  make(map[scheduler.TaskID]bool),
		starts:   make(map[scheduler.TaskID]int),
		errs:     make(chan error, 1),
	}
}

func (m *mockScheduler) Register(id scheduler.TaskID, period time.Duration, fn scheduler.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[id]; ok {
		return scheduler.ErrAlreadyRegistered
	}
	m.handlers[id] = fn
	m.j.add("register %s", id)
	return nil
}

func (m *mockScheduler) Start(id scheduler.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == m.failOn {
		return fmt.Errorf("%w: %s", scheduler.ErrUnknownTask, id)
	}
	m.running[id] = true
	m.starts[id]++
	m.j.add("start %s", id)
	return nil
}

func (m *mockScheduler) Stop(id scheduler.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[id] = false
	m.j.add("stop %s", id)
	return nil
}

func (m *mockScheduler) Errors() <-chan error { return m.errs }

func (m *mockScheduler) isRunning(id scheduler.TaskID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[id]
}

func (m *mockScheduler) startCount(id scheduler.TaskID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts[id]
}

// fire runs one cycle of id if it is running.
func (m *mockScheduler) fire(ctx context.Context, id scheduler.TaskID) error {
	m.mu.Lock()
	fn, ok := m.handlers[id]
	running := m.running[id]
	m.mu.Unlock()
	if !ok || !running {
		return nil
	}
	return fn(ctx)
}

// mockClock returns immediately from Sleep and journals the duration.
type mockClock struct {
	j   *journal
	now time.Time
}

func (c *mockClock) Now() time.Time {
	if c.now.IsZero() {
		return time.Date(2019, 4, 28, 0, 0, 0, 0, time.UTC)
	}
	return c.now
}

func (c *mockClock) Sleep(ctx context.Context, d time.Duration) error {
	c.j.add("sleep %s", d)
	return ctx.Err()
}

// stubMotor has a settable encoder that does not move on its own.
type stubMotor struct {
	mu     sync.Mutex
	count  int32
	pwms   []int
	resets int
}

func (m *stubMotor) Count() (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count, nil
}

func (m *stubMotor) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count = 0
	m.resets++
	return nil
}

func (m *stubMotor) SetPWM(pwm int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pwms = append(m.pwms, pwm)
	return nil
}

func (m *stubMotor) lastPWM() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pwms) == 0 {
		return 0
	}
	return m.pwms[len(m.pwms)-1]
}

// recordingBalancer captures every input and returns fixed outputs.
type recordingBalancer struct {
	mu          sync.Mutex
	inputs      []balancer.Input
	left, right int
	inits       int
}

func (b *recordingBalancer) Init() {
	b.mu.Lock()
	b.inits++
	b.mu.Unlock()
}

func (b *recordingBalancer) Control(in balancer.Input) (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs = append(b.inputs, in)
	return b.left, b.right
}

func (b *recordingBalancer) last() balancer.Input {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputs[len(b.inputs)-1]
}

func (b *recordingBalancer) initCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inits
}

// memRecorder keeps logbook entries in memory.
type memRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *memRecorder) Record(_ context.Context, _ string, e Entry) error {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return nil
}

func (r *memRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, len(r.entries))
	for i, e := range r.entries {
		kinds[i] = e.Kind
	}
	return kinds
}

type failingTouch struct{ err error }

func (f failingTouch) IsPressed() (bool, error) { return false, f.err }

// rig is a deck wired to mocks plus a simulated brick.
type rig struct {
	j     *journal
	sched *mockScheduler
	clock *mockClock
	deck  *Deck
	sim   *robot.Sim
	hw    robot.Hardware
	bal   *recordingBalancer
}

func newRig() *rig {
	j := &journal{}
	sim := robot.NewSim()
	r := &rig{
		j:     j,
		sched: newMockScheduler(j),
		clock: &mockClock{j: j},
		sim:   sim,
		hw:    sim.Hardware(),
		bal:   &recordingBalancer{},
	}
	r.deck = &Deck{
		Config: DefaultConfig(),
		Sched:  r.sched,
		Clock:  r.clock,
		Flags:  &flags.Set{},
		Watch:  &Watch{},
	}
	return r
}

func (r *rig) captain(rec Recorder, sink StatusSink) *Captain {
	c, err := NewCaptain(Options{
		Config:    r.deck.Config,
		Hardware:  r.hw,
		Balancer:  r.bal,
		Scheduler: r.sched,
		Clock:     r.clock,
		Flags:     r.deck.Flags,
		MissionID: "test-mission",
		Recorder:  rec,
		Status:    sink,
		Logger:    discard,
	})
	if err != nil {
		panic(err)
	}
	return c
}
