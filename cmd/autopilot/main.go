// Package main provides the entry point for the autopilot CLI.
package main

import (
	"context"
	"os"

	"github.com/msageha/autopilot/internal/cli"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	info := cli.BuildInfo{Version: version, Commit: commit, Date: date}
	if err := cli.Execute(context.Background(), info); err != nil {
		os.Exit(1)
	}
}
