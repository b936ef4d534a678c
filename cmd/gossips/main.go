package main

import (
	"os"

	"gossips/cmd/gossips/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
