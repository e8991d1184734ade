package main

import (
	"os"

	"github.com/nixxel-company-limited/posprint/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}
