package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-ev3way/internal/config"
	"github.com/teslashibe/go-ev3way/internal/log"
	"github.com/teslashibe/go-ev3way/internal/otel"
	"github.com/teslashibe/go-ev3way/pkg/balancer"
	"github.com/teslashibe/go-ev3way/pkg/crew"
	"github.com/teslashibe/go-ev3way/pkg/flags"
	"github.com/teslashibe/go-ev3way/pkg/ground"
	"github.com/teslashibe/go-ev3way/pkg/logbook"
	"github.com/teslashibe/go-ev3way/pkg/remote"
	"github.com/teslashibe/go-ev3way/pkg/robot"
	"github.com/teslashibe/go-ev3way/pkg/scheduler"
	"github.com/teslashibe/go-ev3way/pkg/web"
)

// options are the command line overrides on top of the environment.
type options struct {
	sim        bool
	httpAddr   string
	serialPort string
	logbook    string
	touchAfter time.Duration
	landAfter  time.Duration
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("ev3way: %v", err)
	}

	var opts options
	flag.BoolVar(&opts.sim, "sim", true, "Run against the simulated brick")
	flag.StringVar(&opts.httpAddr, "http", cfg.HTTPAddr, "Dashboard and operator link address (empty disables)")
	flag.StringVar(&opts.serialPort, "serial", cfg.SerialPort, "Bluetooth serial port for remote start (empty disables)")
	flag.StringVar(&opts.logbook, "logbook", cfg.Logbook, "SQLite logbook path (empty disables)")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.DurationVar(&opts.touchAfter, "touch-after", 0, "Sim: press the touch sensor after this long")
	flag.DurationVar(&opts.landAfter, "land-after", 0, "Sim: press the back button after this long")
	flag.Parse()

	log.Init(*logLevel)

	if !opts.sim {
		config.Exitf("ev3way: only the simulated brick is supported, run with -sim")
	}

	fmt.Println("🤖 " + crew.Banner)
	fmt.Printf("   Dashboard: %s\n", valueOr(opts.httpAddr, "off"))
	fmt.Printf("   Serial:    %s\n", valueOr(opts.serialPort, "off"))
	fmt.Printf("   Logbook:   %s\n", valueOr(opts.logbook, "off"))
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\n👋 Mission interrupted, robot is safe")
			return
		}
		log.Error("mission failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("👋 Landed")
}

func run(ctx context.Context, cfg config.Config, opts options) error {
	shutdownTracing, err := otel.Setup(ctx, "ev3way", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownTracing(context.WithoutCancel(ctx))

	// Tasks outlive the signal context so the crew can still land.
	sched := scheduler.New(context.Background())
	defer sched.Close()

	brick := robot.NewSim()
	set := &flags.Set{}
	missionID := uuid.NewString()
	logger := log.With("mission", missionID)

	var (
		recorders crew.Recorders
		sinks     crew.Sinks
	)

	var store *logbook.Store
	if opts.logbook != "" {
		store, err = logbook.Open(ctx, opts.logbook)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.StartMission(ctx, missionID, crew.Banner, time.Now()); err != nil {
			return err
		}
		recorders = append(recorders, store)
	}

	// Links keep serving until the mission is over, not until the signal.
	linkCtx, stopLinks := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLinks()

	if opts.httpAddr != "" {
		srv := web.NewServer(opts.httpAddr)
		srv.TaskStats = func() map[string]scheduler.Stats {
			stats := make(map[string]scheduler.Stats)
			for _, id := range []scheduler.TaskID{scheduler.CaptainTask, scheduler.ObserverTask, scheduler.NavigatorTask} {
				if s, ok := sched.Stats(id); ok {
					stats[id.String()] = s
				}
			}
			return stats
		}

		link := ground.NewLink(set, missionID)
		link.RegisterRoutes(srv.App())
		link.RegisterAPIRoutes(srv.App().Group("/api"))

		recorders = append(recorders, srv, link)
		sinks = append(sinks, srv, link)

		go func() {
			if err := srv.Run(linkCtx); err != nil {
				logger.Error("dashboard stopped", "error", err)
			}
		}()
	}

	if opts.serialPort != "" {
		port, err := remote.Open(opts.serialPort, cfg.SerialBaud)
		if err != nil {
			return err
		}
		bt := remote.New(port, set)
		go func() {
			if err := bt.Run(linkCtx); err != nil {
				logger.Warn("remote link stopped", "error", err)
			}
		}()
	}

	captain, err := crew.NewCaptain(crew.Options{
		Config:    cfg.Crew,
		Hardware:  brick.Hardware(),
		Balancer:  balancer.NewStateFeedback(balancer.DefaultGains()),
		Scheduler: sched,
		Flags:     set,
		MissionID: missionID,
		Recorder:  recorders,
		Status:    sinks,
	})
	if err != nil {
		return err
	}

	script(ctx, brick, opts)

	missionErr := crew.NewMission(captain).Run(ctx)

	if store != nil {
		outcome := logbook.OutcomeLanded
		if missionErr != nil {
			outcome = logbook.OutcomeAborted
		}
		if err := store.EndMission(context.WithoutCancel(ctx), missionID, outcome, time.Now()); err != nil {
			logger.Warn("logbook end", "error", err)
		}
	}
	return missionErr
}

// script drives the simulated sensors on a timer.
func script(ctx context.Context, brick *robot.Sim, opts options) {
	press := func(after time.Duration, set func(bool)) {
		if after <= 0 {
			return
		}
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(after):
			}
			set(true)
			select {
			case <-ctx.Done():
			case <-time.After(200 * time.Millisecond):
			}
			set(false)
		}()
	}
	press(opts.touchAfter, brick.SetTouch)
	press(opts.landAfter, brick.SetBack)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
