// Package main is the entry point for the logmon CLI.
package main

import (
	"os"

	"github.com/e-intern-tkondo-wq/auto-log-management/cmd/logmon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
