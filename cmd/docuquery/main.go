// Package main provides the entry point for the docuquery CLI.
package main

import (
	"os"

	"github.com/docuquery/docuquery/cmd/docuquery/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
