package main

import (
	"fmt"

	"github.com/urfave/cli"

	"softtimer/core"
)

func dict(ctx *cli.Context) error {
	w := ctx.App.Writer
	for _, cmd := range core.NewTimerDictionary().Commands() {
		kind := "command"
		if cmd.Handler == nil {
			kind = "response"
		}
		fmt.Fprintf(w, "%3d %-8s %-22s %s\n", cmd.ID, kind, cmd.Name, cmd.Format)
	}
	return nil
}
