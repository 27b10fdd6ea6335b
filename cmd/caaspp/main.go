// Package main provides the caaspp command-line tool.
package main

import (
	"os"

	"github.com/eduanalytics/caaspp/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
