package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/lawinko/vision-detector/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.NewApp()

	err := application.Run(ctx)
	if closeErr := application.Close(); closeErr != nil {
		log.Printf("Shutdown: %v", closeErr)
	}
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
