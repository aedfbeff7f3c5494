// Package main is the entry point for the collabhub admin CLI.
package main

import (
	"os"

	"github.com/good-yellow-bee/collabhub/cmd/hubctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
