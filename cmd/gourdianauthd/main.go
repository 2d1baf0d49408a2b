// Package main is the entry point for the gourdianauth token service daemon.
package main

import (
	"os"

	"github.com/gourdian25/gourdianauth/cmd/gourdianauthd/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
