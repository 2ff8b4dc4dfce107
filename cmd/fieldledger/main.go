package main

import (
	"os"

	"github.com/fieldledger/fieldledger/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
