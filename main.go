package main

import (
	"os"

	"github.com/rxlens/rxlens/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
