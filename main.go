package main

import (
	"os"

	"github.com/gopos/gopos-edge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
