package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := Execute(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "softtimer-host: %s\n", err.Error())
		os.Exit(1)
	}
}
