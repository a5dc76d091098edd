package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/freightdesk/relay/internal/infrastructure/config"
	"github.com/freightdesk/relay/internal/infrastructure/logging"
	"github.com/freightdesk/relay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	dev := flag.Bool("dev", false, "development mode (colored debug logs)")
	flag.Parse()

	cfg := config.LoadOrDefault()

	var log *logging.Logger
	if *dev {
		log = logging.NewDevelopment()
	} else {
		var err error
		log, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			OutputPaths: []string{"stdout"},
		})
		if err != nil {
			log = logging.NewDefault()
			log.Warn("invalid log config, using defaults", zap.Error(err))
		}
	}
	defer log.Sync()

	srv := server.New(cfg, log)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("shutdown error", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil {
			log.Fatal("server error", zap.Error(err))
		}
	}
}
