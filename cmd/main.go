package main

import (
	"os"

	"github.com/soundprediction/likeness/cmd/likeness"
)

func main() {
	if err := likeness.Execute(); err != nil {
		os.Exit(1)
	}
}
