package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"newsfinder/internal/app/bootstrap"
)

// API process entrypoint.
// Data flow:
// 1) Load config and campaign definitions.
// 2) Build app wiring (store + engine + metrics).
// 3) Serve HTTP until SIGINT/SIGTERM.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("newsfinder abtest api starting")
	app, err := bootstrap.BuildAPI(ctx)
	if err != nil {
		log.Fatalf("bootstrap api failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("api shutdown close failed: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Printf("newsfinder abtest api stopped with error: %v", err)
	}
}
