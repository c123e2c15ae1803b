// Package main provides the entry point for the lockerindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/lockerindex/cmd/lockerindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
