package main

import (
	"os"

	"github.com/maverick250/aml-interactive-dashboard/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
