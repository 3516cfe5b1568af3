package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"softtimer/core"
	"softtimer/host/link"
	"softtimer/host/serial"
)

var consoleDevice string

var consoleFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "device, d",
		Usage:       "serial port of the device",
		Value:       "/dev/ttyACM0",
		Destination: &consoleDevice,
		EnvVar:      "SOFTTIMER_DEVICE",
	},
}

// remote is the part of *link.Link the console drives
type remote interface {
	SetPin(ctx context.Context, pin core.GPIOPin, value bool) error
	Oscillate(ctx context.Context, pin core.GPIOPin, period uint32, start bool, cycles int32) (core.EventID, error)
	Pulse(ctx context.Context, pin core.GPIOPin, period uint32, start bool) (core.EventID, error)
	PulseImmediate(ctx context.Context, pin core.GPIOPin, period uint32, value bool) (core.EventID, error)
	Stop(ctx context.Context, id core.EventID) error
	Status(ctx context.Context) (link.Status, error)
}

var errQuit = errors.New("quit")

func console(ctx *cli.Context) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	l, err := link.Dial(serial.DefaultConfig(consoleDevice), link.WithLogger(logger))
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Fprintf(ctx.App.Writer, "connected to %s, type 'help' for commands\n", consoleDevice)
	return repl(context.Background(), l, os.Stdin, ctx.App.Writer)
}

// repl reads lines from in until EOF or quit, printing results and errors
// to out
func repl(ctx context.Context, r remote, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		err := execLine(ctx, r, scanner.Text(), out)
		if err == errQuit {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// execLine runs one console command
func execLine(ctx context.Context, r remote, line string, out io.Writer) error {
	args, err := shlex.Split(line)
	if err != nil {
		return errors.Wrap(err, "parse")
	}
	if len(args) == 0 {
		return nil
	}

	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		printConsoleHelp(out)
		return nil

	case "set":
		if len(args) != 2 {
			return usage("set PIN 0|1")
		}
		pin, value, err := parsePinLevel(args[0], args[1])
		if err != nil {
			return err
		}
		return r.SetPin(ctx, pin, value)

	case "oscillate", "osc":
		if len(args) != 3 && len(args) != 4 {
			return usage("oscillate PIN PERIOD_MS START [CYCLES]")
		}
		pin, period, start, err := parsePinArgs(args[:3])
		if err != nil {
			return err
		}
		cycles := core.RepeatForever
		if len(args) == 4 {
			n, err := strconv.ParseInt(args[3], 10, 32)
			if err != nil {
				return errors.Errorf("invalid cycles %q", args[3])
			}
			cycles = int32(n)
		}
		id, err := r.Oscillate(ctx, pin, period, start, cycles)
		return printID(out, id, err)

	case "pulse":
		if len(args) != 3 {
			return usage("pulse PIN PERIOD_MS START")
		}
		pin, period, start, err := parsePinArgs(args)
		if err != nil {
			return err
		}
		id, err := r.Pulse(ctx, pin, period, start)
		return printID(out, id, err)

	case "pulse-now":
		if len(args) != 3 {
			return usage("pulse-now PIN PERIOD_MS VALUE")
		}
		pin, period, value, err := parsePinArgs(args)
		if err != nil {
			return err
		}
		id, err := r.PulseImmediate(ctx, pin, period, value)
		return printID(out, id, err)

	case "stop":
		if len(args) != 1 {
			return usage("stop ID")
		}
		id, err := strconv.ParseInt(args[0], 10, 16)
		if err != nil {
			return errors.Errorf("invalid id %q", args[0])
		}
		return r.Stop(ctx, core.EventID(id))

	case "status":
		st, err := r.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "live=%d/%d last_id=%d\n", st.Live, core.MaxEvents, st.LastEventID)
		return nil
	}
	return errors.Errorf("unknown command %q (type 'help')", cmd)
}

func printID(out io.Writer, id core.EventID, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "id=%d\n", id)
	return nil
}

func usage(s string) error {
	return errors.New("usage: " + s)
}

func parsePinArgs(args []string) (core.GPIOPin, uint32, bool, error) {
	pin, level, err := parsePinLevel(args[0], args[2])
	if err != nil {
		return 0, 0, false, err
	}
	period, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return 0, 0, false, errors.Errorf("invalid period %q", args[1])
	}
	return pin, uint32(period), level, nil
}

func parsePinLevel(pinArg, levelArg string) (core.GPIOPin, bool, error) {
	pin, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(pinArg), "gpio"), 10, 32)
	if err != nil {
		return 0, false, errors.Errorf("invalid pin %q", pinArg)
	}
	switch strings.ToLower(levelArg) {
	case "1", "high", "on", "true":
		return core.GPIOPin(pin), true, nil
	case "0", "low", "off", "false":
		return core.GPIOPin(pin), false, nil
	}
	return 0, false, errors.Errorf("invalid level %q", levelArg)
}

func printConsoleHelp(out io.Writer) {
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  set PIN 0|1                         write a pin")
	fmt.Fprintln(out, "  oscillate PIN PERIOD START [CYCLES]  square wave, forever without CYCLES")
	fmt.Fprintln(out, "  pulse PIN PERIOD START              one full cycle")
	fmt.Fprintln(out, "  pulse-now PIN PERIOD VALUE          VALUE now, flipped after PERIOD")
	fmt.Fprintln(out, "  stop ID                             stop an event")
	fmt.Fprintln(out, "  status                              live events and last id")
	fmt.Fprintln(out, "  quit                                leave the console")
}
