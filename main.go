package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlephTX/hermes/broker"
	"github.com/AlephTX/hermes/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Printf("config: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b, err := broker.New(broker.Config{
		Bind:            cfg.Bind,
		StoragePath:     cfg.StoragePath,
		StorageCapacity: cfg.StorageCapacityBytes(),
		Verbose:         cfg.Verbose,
	})
	if err != nil {
		log.Printf("broker: %v", err)
		os.Exit(1)
	}

	if err := b.Run(ctx); err != nil {
		log.Printf("broker: %v", err)
		os.Exit(1)
	}

	log.Println("👋 hermes broker stopped.")
}
