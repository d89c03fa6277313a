package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	stresscmd "github.com/louisbranch/bankledger/internal/cmd/stress"
)

func main() {
	cfg, err := stresscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[STRESS] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := stresscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("stress run failed: %v", err)
	}
}
