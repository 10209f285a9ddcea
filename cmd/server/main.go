package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"incidentpulse/config"
	"incidentpulse/core/appbootstrap"
	"incidentpulse/core/logging"
	"incidentpulse/core/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional, env vars override)")
	flag.Parse()

	logger := logging.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("store: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	runtime, err := appbootstrap.Compose(cfg, db, logger)
	if err != nil {
		logger.Errorf("compose: %v", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: runtime.Server.Router(),
	}

	for _, w := range runtime.Workers {
		w.Start(ctx)
	}
	defer func() {
		for _, w := range runtime.Workers {
			w.Stop()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server: %v", err)
		os.Exit(1)
	}
}
