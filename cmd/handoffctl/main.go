// Command handoffctl is the operator CLI for a handoff database.
package main

import (
	"fmt"
	"os"

	"github.com/ericfisherdev/handoff/cmd/handoffctl/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
