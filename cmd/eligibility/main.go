package main

import (
	"os"

	"github.com/rpattn/eligibility/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
