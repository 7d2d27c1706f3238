package main

import (
	"os"

	"github.com/psantana5/svcguard/cmd/svcguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
