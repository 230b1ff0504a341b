package main

import (
	"os"

	"github.com/jwalitptl/alert-engine/cmd/alertctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
