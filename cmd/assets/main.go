// Package main starts the bridge asset service and handles termination.
//
// The process owns icon and image files for bridges and republishes the
// bridge view after every change.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	assetscmd "github.com/louisbranch/bridgeassets/internal/cmd/assets"
)

func main() {
	cfg, err := assetscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[ASSETS] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := assetscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
