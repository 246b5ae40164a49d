package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/capture/internal/bootstrap"
	"github.com/docuflow/capture/internal/config"
	"github.com/docuflow/capture/internal/core/ports"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go func() {
		addr := ":" + cfg.MetricsPort
		mux := http.NewServeMux()
		mux.Handle("/metrics", app.Metrics.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics listener error: %v", err)
		}
	}()

	log.Printf("worker subscribed to %s", cfg.NATSCaptureSubject)
	err = app.Queue.SubscribeCaptureRequested(ctx, func(handlerCtx context.Context, request ports.CaptureRequest) error {
		if request.CorrelationID == "" {
			request.CorrelationID = uuid.NewString()
		}
		journeyCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()
		return app.Journey.Run(journeyCtx, request)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
