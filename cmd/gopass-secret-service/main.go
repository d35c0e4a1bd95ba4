package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sxaes/gopass-secret-service/internal/config"
	"github.com/sxaes/gopass-secret-service/internal/service"
	"github.com/sxaes/gopass-secret-service/internal/xerrors"
)

// Version is set at build time
var Version = "dev"

// Exit codes map the xerrors taxonomy onto the process's exit status, so
// a client script driving this daemon (or a test harness watching it
// fail) can tell a malformed peer exchange from an incorrect secret
// from a plain bus failure without scraping log text.
const (
	exitOK              = 0
	exitBadExchange     = 2
	exitIncorrectSecret = 3
	exitCrypto          = 4
	exitBus             = 5
)

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, xerrors.ErrBadExchange):
		return exitBadExchange
	case errors.Is(err, xerrors.ErrIncorrectSecret):
		return exitIncorrectSecret
	case errors.Is(err, xerrors.ErrCrypto):
		return exitCrypto
	case errors.Is(err, xerrors.ErrBus):
		return exitBus
	default:
		return exitBus
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.ShowVersion {
		fmt.Printf("gopass-secret-service version %s\n", Version)
		os.Exit(0)
	}

	// Set up logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	log.Printf("Starting gopass-secret-service version %s", Version)
	log.Printf("Using gopass prefix: %s", cfg.Prefix)
	log.Printf("Default collection: %s", cfg.DefaultCollection)

	// Create and start the service
	ctx := context.Background()
	svc, err := service.New(ctx, cfg)
	if err != nil {
		log.Printf("Failed to create service: %v", err)
		os.Exit(exitCodeFor(err))
	}

	if err := svc.Start(); err != nil {
		log.Printf("Failed to start service: %v", err)
		os.Exit(exitCodeFor(err))
	}

	log.Println("Service started successfully")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("Received signal %v, shutting down...", sig)

	if err := svc.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(exitCodeFor(err))
	}

	log.Println("Service stopped")
	os.Exit(exitOK)
}
