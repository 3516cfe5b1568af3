package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"softtimer/core"
	"softtimer/host/config"
	"softtimer/host/link"
	"softtimer/host/runner"
	"softtimer/host/serial"
	"softtimer/host/sim"
)

var (
	planPath string
	device   string
	duration time.Duration
	dryRun   bool
	trace    bool
)

var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "plan, p",
		Usage:       "event plan file (YAML); the built-in demo plan when empty",
		Destination: &planPath,
	},
	cli.StringFlag{
		Name:        "device, d",
		Usage:       "drive pins on the device at this serial port (overrides serial.device)",
		Destination: &device,
		EnvVar:      "SOFTTIMER_DEVICE",
	},
	cli.DurationFlag{
		Name:        "duration",
		Usage:       "stop after this long (default: until interrupted or finished)",
		Destination: &duration,
	},
	cli.BoolFlag{
		Name:        "dry-run, n",
		Usage:       "replay the plan on a virtual clock with simulated pins",
		Destination: &dryRun,
	},
	cli.BoolFlag{
		Name:        "trace",
		Usage:       "dump the timer trace ring at exit (needs --verbose)",
		Destination: &trace,
	},
}

func run(ctx *cli.Context) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	plan, err := loadPlan(planPath)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []runner.Option
	opts = append(opts, runner.WithLogger(logger))
	if trace {
		opts = append(opts, runner.WithTraceRing(core.NewTraceRing()))
	}

	if dryRun {
		if duration <= 0 {
			return errors.New("--dry-run needs --duration")
		}
		return runDry(runCtx, plan, logger, opts, ctx.App.Writer)
	}

	if duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, duration)
		defer cancel()
	}

	clock := sim.NewWallClock()
	var pins core.PinWriter
	if cfg := serialConfig(plan); cfg != nil {
		l, err := link.Dial(cfg, link.WithLogger(logger))
		if err != nil {
			return err
		}
		defer l.Close()
		pins = l.Pins(runCtx)
		logger.Info("driving device pins", zap.String("device", cfg.Device))
	} else {
		// Runs until interrupted; the log is the record, not the bank
		pins = sim.NewPinBank(clock, sim.WithPinLogger(logger), sim.WithHistory(0))
	}

	r, err := runner.New(plan, clock, pins, opts...)
	if err != nil {
		return err
	}
	err = r.Run(runCtx)
	r.DumpTrace()
	printSummary(ctx.App.Writer, plan, r)
	return err
}

func runDry(ctx context.Context, plan *config.Plan, logger *zap.Logger, opts []runner.Option, w io.Writer) error {
	clock := sim.NewVirtualClock(0)
	pins := sim.NewPinBank(clock, sim.WithPinLogger(logger))

	r, err := runner.New(plan, clock, pins, opts...)
	if err != nil {
		return err
	}
	if err := r.RunVirtual(ctx, clock, duration); err != nil {
		return err
	}
	r.DumpTrace()

	fmt.Fprintf(w, "simulated %d ms, %d pin transitions\n", clock.Now(), pins.Total())
	printSummary(w, plan, r)
	return nil
}

func loadPlan(path string) (*config.Plan, error) {
	if path == "" {
		return config.DefaultPlan(), nil
	}
	return config.Load(path)
}

// serialConfig picks the device from the flag, then from the plan
func serialConfig(plan *config.Plan) *serial.Config {
	var cfg *serial.Config
	if plan.Serial != nil {
		c := *plan.Serial
		cfg = &c
	}
	if device != "" {
		if cfg == nil {
			cfg = serial.DefaultConfig(device)
		}
		cfg.Device = device
	}
	if cfg == nil || cfg.Device == "" {
		return nil
	}
	cfg.ApplyDefaults()
	return cfg
}

func printSummary(w io.Writer, plan *config.Plan, r *runner.Runner) {
	names := make([]string, 0, len(plan.Events))
	for _, ev := range plan.Events {
		names = append(names, ev.Name)
	}
	sort.Strings(names)

	for _, name := range names {
		if info, ok := r.Info(name); ok {
			fmt.Fprintf(w, "%-16s live     %s fired=%d\n", name, info.Kind, info.Count)
			continue
		}
		fmt.Fprintf(w, "%-16s finished fired=%d\n", name, r.Fired(name))
	}
}
