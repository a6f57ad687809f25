package main

import (
	"os"

	"github.com/rustyeddy/obtrader/cmd/obtrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
