package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quilan1/ffxiv-market-query/internal/catalog"
	"github.com/quilan1/ffxiv-market-query/internal/config"
	"github.com/quilan1/ffxiv-market-query/internal/httpapi"
	"github.com/quilan1/ffxiv-market-query/internal/market"
	"github.com/quilan1/ffxiv-market-query/internal/processor"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	db, err := catalog.OpenSQLite(cfg.CatalogDBPath, logger)
	if err != nil {
		logger.Fatal("failed to open catalog database", zap.Error(err))
	}
	defer db.Close()

	cat := catalog.NewSQLiteCatalog(db)
	ctx := context.Background()
	if err := cat.CreateSchema(ctx); err != nil {
		logger.Fatal("failed to create catalog schema", zap.Error(err))
	}

	if cfg.CatalogCSVSeed != "" {
		if err := seedCatalog(ctx, cat, cfg.CatalogCSVSeed); err != nil {
			logger.Fatal("failed to seed catalog", zap.Error(err))
		}
		logger.Info("catalog seeded", zap.String("csv", cfg.CatalogCSVSeed))
	}

	proc := processor.New(cfg.MaxActiveFetches)

	listingClient := market.NewBreakerClient("universalis-listing", cfg.FetchTimeout)
	historyClient := market.NewBreakerClient("universalis-history", cfg.FetchTimeout)
	getFactory := func(kind market.FetchKind) market.HTTPGet {
		if kind == market.FetchHistory {
			return historyClient.Get
		}
		return listingClient.Get
	}

	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:            fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		MaxActive:       cfg.MaxActiveFetches,
		UniversalisBase: cfg.UniversalisBaseURL,
		MaxGlobalConns:  cfg.WebSocketMaxGlobal,
		MaxPerIPConns:   cfg.WebSocketMaxPerIP,
		AllowedOrigins:  cfg.AllowedOrigins,
	}, cat, proc, getFactory, logger)

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	proc.Disconnect()
	if err := httpapi.Shutdown(srv, 15*time.Second); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func seedCatalog(ctx context.Context, cat *catalog.Catalog, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return cat.LoadCSV(ctx, f)
}
