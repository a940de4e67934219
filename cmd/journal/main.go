package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/trade_journal/internal/config"
	"github.com/vitos/trade_journal/internal/infrastructure/logger"
	"github.com/vitos/trade_journal/internal/infrastructure/notify"
	"github.com/vitos/trade_journal/internal/infrastructure/storage"
	"github.com/vitos/trade_journal/internal/usecase"
	"github.com/vitos/trade_journal/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Level table and catalog are validated once, before anything is served
	table, err := cfg.LevelTable()
	if err != nil {
		log.Fatal("Invalid level table", zap.Error(err))
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		log.Fatal("Invalid challenge catalog", zap.Error(err))
	}

	// 4. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 5. Init Service
	hub := notify.NewHub(log.Named("ws"))
	svc := usecase.NewGamificationService(store, store, store, store, hub, catalog, table, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Sweep Loop closes finished periods even for traders who stopped trading
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval())
		defer ticker.Stop()

		for {
			if err := svc.Sweep(ctx); err != nil {
				log.Error("Sweep failed", zap.Error(err))
			}
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return
			}
		}
	}()

	// 7. Start Server
	server := web.NewServer(cfg.Server.Port, svc, hub, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 8. Wait for Shutdown
	<-ctx.Done()

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown failed", zap.Error(err))
	}
}
