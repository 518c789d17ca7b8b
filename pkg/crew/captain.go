package crew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-ev3way/internal/log"
	"github.com/teslashibe/go-ev3way/pkg/balancer"
	"github.com/teslashibe/go-ev3way/pkg/flags"
	"github.com/teslashibe/go-ev3way/pkg/robot"
	"github.com/teslashibe/go-ev3way/pkg/scheduler"
)

// Banner is printed on the brick's screen at takeoff.
const Banner = "EV3way go-ev3way"

// Options configure a Captain.
type Options struct {
	Config    Config
	Hardware  robot.Hardware
	Balancer  balancer.Controller
	Scheduler Scheduler

	// Optional.
	Clock     scheduler.Clock // defaults to scheduler.SystemClock
	Flags     *flags.Set      // shared with remote-start and operator links
	MissionID string          // defaults to a random UUID
	Recorder  Recorder
	Status    StatusSink
	Logger    *slog.Logger
}

// Captain owns the crew. It decides when navigators hand over and when the
// mission lands.
type Captain struct {
	deck      *Deck
	hw        robot.Hardware
	bal       balancer.Controller
	missionID string
	recorder  Recorder
	status    StatusSink
	log       *slog.Logger

	mu         sync.Mutex
	observer   *Observer
	navigators map[Role]Navigator
	lineTracer *LineTracer
	airborne   bool
	landed     bool

	landing atomic.Bool
	aborted atomic.Bool // SafeStop ran; the LED stays red
	cycles  atomic.Uint64
}

// NewCaptain validates opts and builds a captain. Nothing runs until Takeoff.
func NewCaptain(opts Options) (*Captain, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if err := checkHardware(opts.Hardware); err != nil {
		return nil, err
	}
	if opts.Balancer == nil {
		return nil, fmt.Errorf("%w: [balancer]", ErrMissingHardware)
	}
	if opts.Scheduler == nil {
		return nil, errors.New("crew: scheduler is required")
	}
	if opts.Clock == nil {
		opts.Clock = scheduler.SystemClock{}
	}
	if opts.Flags == nil {
		opts.Flags = &flags.Set{}
	}
	if opts.MissionID == "" {
		opts.MissionID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.With("component", "crew")
	}
	logger = logger.With("mission", opts.MissionID)

	return &Captain{
		deck: &Deck{
			Config: opts.Config,
			Sched:  opts.Scheduler,
			Clock:  opts.Clock,
			Flags:  opts.Flags,
			Watch:  &Watch{},
		},
		hw:         opts.Hardware,
		bal:        opts.Balancer,
		missionID:  opts.MissionID,
		recorder:   opts.Recorder,
		status:     opts.Status,
		log:        logger,
		navigators: make(map[Role]Navigator, 2),
	}, nil
}

func checkHardware(hw robot.Hardware) error {
	devices := []struct {
		name  string
		wired bool
	}{
		{"touch", hw.Touch != nil},
		{"sonar", hw.Sonar != nil},
		{"gyro", hw.Gyro != nil},
		{"color", hw.Color != nil},
		{"back", hw.Back != nil},
		{"left", hw.Left != nil},
		{"right", hw.Right != nil},
		{"tail", hw.Tail != nil},
		{"battery", hw.Power != nil},
		{"led", hw.LED != nil},
		{"screen", hw.Screen != nil},
	}
	var missing []string
	for _, d := range devices {
		if !d.wired {
			missing = append(missing, d.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingHardware, missing)
	}
	return nil
}

// MissionID identifies this run in the logbook and status frames.
func (c *Captain) MissionID() string { return c.missionID }

// Flags returns the shared sensor flags.
func (c *Captain) Flags() *flags.Set { return c.deck.Flags }

// Landing reports whether the mission loop should tear down.
func (c *Captain) Landing() bool { return c.landing.Load() }

// Active returns the navigator role on duty.
func (c *Captain) Active() Role { return c.deck.Watch.Active() }

// Navigator returns the crew member for a role, or nil before takeoff and
// after landing.
func (c *Captain) Navigator(r Role) Navigator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.navigators[r]
}

// Takeoff builds the crew, registers its periodic tasks and puts the
// observer and the anchor watch on duty.
func (c *Captain) Takeoff(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "captain.takeoff",
		trace.WithAttributes(attribute.String("mission", c.missionID)))
	defer span.End()

	c.mu.Lock()
	if c.airborne {
		c.mu.Unlock()
		return errors.New("crew: takeoff already happened")
	}
	c.airborne = true

	observer := NewObserver(c.deck, c.hw, c.log)
	anchor := NewAnchorWatch(c.deck, c.hw, c.bal, c.log)
	liner := NewLineTracer(c.deck, c.hw, c.bal, c.log)
	c.observer = observer
	c.navigators[RoleAnchorWatch] = anchor
	c.navigators[RoleLineTracer] = liner
	c.lineTracer = liner
	c.mu.Unlock()

	c.deck.Flags.Clear()
	if err := c.hw.Screen.Print(1, Banner); err != nil {
		c.log.Warn("screen", "error", err)
	}

	cfg := c.deck.Config
	sched := c.deck.Sched
	tasks := []struct {
		id     scheduler.TaskID
		period time.Duration
		fn     scheduler.Handler
	}{
		{scheduler.CaptainTask, cfg.CaptainPeriod, c.Operate},
		{scheduler.ObserverTask, cfg.ObserverPeriod, observer.Operate},
		{scheduler.NavigatorTask, cfg.NavigatorPeriod, c.navigate},
	}
	for _, t := range tasks {
		if err := sched.Register(t.id, t.period, t.fn); err != nil {
			span.RecordError(err)
			return fmt.Errorf("takeoff: %w", err)
		}
	}

	if err := sched.Start(scheduler.CaptainTask); err != nil {
		span.RecordError(err)
		return fmt.Errorf("takeoff: %w", err)
	}
	if err := observer.GoOnDuty(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("takeoff: %w", err)
	}
	if err := anchor.GoOnDuty(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("takeoff: %w", err)
	}

	c.record(ctx, EventTakeoff, RoleNone, Banner)
	c.record(ctx, EventOnDuty, RoleAnchorWatch, "")
	c.log.Info("takeoff", "active", c.Active())
	return nil
}

// Operate is one captain cycle. A remote start or touch sends the active
// navigator off duty; the back button begins landing.
func (c *Captain) Operate(ctx context.Context) error {
	if c.landing.Load() {
		return nil
	}
	c.cycles.Add(1)

	// Both are consumed so one press is one departure.
	remote := c.deck.Flags.Consume(flags.RemoteStart)
	touch := c.deck.Flags.Consume(flags.Touch)
	if remote || touch {
		trigger := "touch"
		if remote {
			trigger = "remote"
		}
		if n := c.activeNavigator(); n != nil {
			role := n.Role()
			c.log.Info("departing", "trigger", trigger, "active", role)
			c.record(ctx, EventDeparting, role, trigger)
			if err := n.GoOffDuty(ctx); err != nil {
				return err
			}
			c.record(ctx, EventOffDuty, role, "")
		} else {
			c.log.Debug("departure ignored, no navigator on duty", "trigger", trigger)
		}
	}

	if c.deck.Flags.Consume(flags.BackButton) {
		c.landing.Store(true)
		c.log.Info("landing requested")
		c.record(ctx, EventLanding, c.Active(), "")
	}

	c.publish()
	return nil
}

// navigate dispatches one navigator cycle to whichever role holds the watch.
func (c *Captain) navigate(ctx context.Context) error {
	n := c.activeNavigator()
	if n == nil {
		return nil
	}
	return n.Operate(ctx)
}

func (c *Captain) activeNavigator() Navigator {
	role := c.deck.Watch.Active()
	if role == RoleNone {
		return nil
	}
	return c.Navigator(role)
}

// Land tears the crew down in order: the active navigator with its grace
// period, then the observer with its grace period, then the captain's own
// task. Errors are collected; every step runs.
func (c *Captain) Land(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "captain.land",
		trace.WithAttributes(attribute.String("mission", c.missionID)))
	defer span.End()

	c.mu.Lock()
	switch {
	case !c.airborne:
		c.mu.Unlock()
		return ErrNotAirborne
	case c.landed:
		c.mu.Unlock()
		return ErrAlreadyLanded
	}
	c.landed = true
	c.mu.Unlock()

	c.landing.Store(true)
	cfg := c.deck.Config
	var errs []error

	if n := c.activeNavigator(); n != nil {
		role := n.Role()
		if err := n.GoOffDuty(ctx); err != nil {
			errs = append(errs, err)
		} else {
			c.record(ctx, EventOffDuty, role, "landing")
		}
		if err := c.deck.Clock.Sleep(ctx, cfg.GracePeriod); err != nil {
			errs = append(errs, fmt.Errorf("navigator grace: %w", err))
		}
	}
	if err := c.hw.Left.Reset(); err != nil {
		errs = append(errs, fmt.Errorf("reset left motor: %w", err))
	}
	if err := c.hw.Right.Reset(); err != nil {
		errs = append(errs, fmt.Errorf("reset right motor: %w", err))
	}

	c.mu.Lock()
	observer := c.observer
	clear(c.navigators)
	c.mu.Unlock()

	if observer != nil {
		if err := observer.GoOffDuty(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := c.deck.Clock.Sleep(ctx, cfg.GracePeriod); err != nil {
			errs = append(errs, fmt.Errorf("observer grace: %w", err))
		}
		c.mu.Lock()
		c.observer = nil
		c.mu.Unlock()
	}

	if err := c.deck.Sched.Stop(scheduler.CaptainTask); err != nil {
		errs = append(errs, fmt.Errorf("stop captain: %w", err))
	}

	if c.aborted.Load() {
		if err := c.hw.LED.SetLED(robot.LEDRed); err != nil {
			c.log.Warn("led", "error", err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		c.log.Error("landed with errors", "error", err)
	} else {
		c.log.Info("landed")
	}
	c.record(ctx, EventLanded, RoleNone, errString(err))
	c.publish()
	return err
}

// SafeStop parks the robot after a fatal error: the navigator task stops,
// the drive motors go to zero and the tail is driven to the stand-up angle.
// Land should follow.
func (c *Captain) SafeStop(ctx context.Context, cause error) error {
	ctx, span := tracer.Start(ctx, "captain.safe_stop")
	defer span.End()
	if cause != nil {
		span.RecordError(cause)
	}

	c.aborted.Store(true)
	c.log.Warn("safe stop", "cause", cause)
	c.record(ctx, EventSafeStop, c.Active(), errString(cause))

	cfg := c.deck.Config
	var errs []error

	if err := c.deck.Sched.Stop(scheduler.NavigatorTask); err != nil {
		errs = append(errs, fmt.Errorf("stop navigator: %w", err))
	}
	if err := c.deck.Clock.Sleep(ctx, cfg.GracePeriod); err != nil {
		errs = append(errs, fmt.Errorf("safe stop grace: %w", err))
	}
	if err := c.hw.Left.SetPWM(0); err != nil {
		errs = append(errs, fmt.Errorf("stop left motor: %w", err))
	}
	if err := c.hw.Right.SetPWM(0); err != nil {
		errs = append(errs, fmt.Errorf("stop right motor: %w", err))
	}

	for i := 0; i < cfg.SafeStopCycles; i++ {
		if err := driveTail(c.hw.Tail, cfg.TailAngleStandUp, cfg); err != nil {
			errs = append(errs, err)
			break
		}
		angle, err := c.hw.Tail.Count()
		if err != nil {
			errs = append(errs, fmt.Errorf("read tail encoder: %w", err))
			break
		}
		if d := angle - cfg.TailAngleStandUp; d >= -1 && d <= 1 {
			break
		}
		if err := c.deck.Clock.Sleep(ctx, cfg.NavigatorPeriod); err != nil {
			errs = append(errs, err)
			break
		}
	}

	if err := c.hw.LED.SetLED(robot.LEDRed); err != nil {
		c.log.Warn("led", "error", err)
	}
	c.landing.Store(true)
	return errors.Join(errs...)
}

// Status returns the current crew snapshot.
func (c *Captain) Status() Status {
	s := Status{
		MissionID: c.missionID,
		Time:      c.deck.Clock.Now(),
		Active:    c.Active(),
		Landing:   c.landing.Load(),
		Flags:     c.deck.Flags.Snapshot().String(),
		Cycles:    c.cycles.Load(),
	}
	c.mu.Lock()
	lt := c.lineTracer
	c.mu.Unlock()
	if lt != nil {
		s.Command = lt.LastCommand()
	}
	return s
}

func (c *Captain) publish() {
	if c.status == nil {
		return
	}
	c.status.Publish(c.Status())
}

func (c *Captain) record(ctx context.Context, kind EventKind, role Role, detail string) {
	if c.recorder == nil {
		return
	}
	e := Entry{Time: c.deck.Clock.Now(), Kind: kind, Role: role, Detail: detail}
	if err := c.recorder.Record(ctx, c.missionID, e); err != nil {
		c.log.Warn("logbook write failed", "kind", kind, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
