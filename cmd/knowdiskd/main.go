// Package main provides the entry point for the knowdiskd CLI.
package main

import (
	"os"

	"github.com/knowdisk/knowdisk/cmd/knowdiskd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
