package main

import (
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"softtimer/protocol"
)

var verbose bool

// Execute builds the command line application and runs it with args
func Execute(args []string) error {
	app := cli.App{
		Name:      "softtimer-host",
		HelpName:  "softtimer-host",
		Usage:     "run event plans and drive the remote timer",
		Version:   version + " (protocol " + protocol.Version + ")",
		UsageText: "softtimer-host [--verbose] <command> [arguments...]",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:        "verbose, v",
				Usage:       "log at debug level",
				Destination: &verbose,
			},
		},
		Commands: []cli.Command{
			{
				Name:      "run",
				Aliases:   []string{"r"},
				Usage:     "schedule an event plan and poll it",
				UsageText: "softtimer-host run --plan FILE [--device DEV] [--duration D] [--dry-run]",
				Action:    run,
				Flags:     runFlags,
			},
			{
				Name:      "console",
				Aliases:   []string{"c"},
				Usage:     "interactive shell for the remote timer",
				UsageText: "softtimer-host console --device DEV",
				Action:    console,
				Flags:     consoleFlags,
			},
			{
				Name:   "dict",
				Usage:  "print the command dictionary",
				Action: dict,
			},
		},
	}
	return app.Run(args)
}

// newLogger returns a console logger, at debug level with --verbose
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
