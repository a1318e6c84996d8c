// Package main is the entry point for the smartcut application.
package main

import (
	"os"

	"github.com/jmylchreest/smartcut/cmd/smartcut/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
