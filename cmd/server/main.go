package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"convo-server/internal/auth"
	"convo-server/internal/config"
	"convo-server/internal/logger"
	"convo-server/internal/pubsub"
	"convo-server/internal/server"
	"convo-server/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Service: "convo-server", Debug: cfg.LogDebug})
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("store: connect", slog.Any("err", err))
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
	} else {
		slog.Warn("no DATABASE_URL set, using in-memory store")
		st = store.NewMemory()
	}

	var broker pubsub.Broker
	if cfg.RedisURL != "" {
		rb, err := pubsub.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("pubsub: connect", slog.Any("err", err))
			os.Exit(1)
		}
		defer rb.Close()
		broker = rb
	} else {
		broker = pubsub.NewMemory()
	}

	tokenCfg := auth.TokenConfig{
		Secret: cfg.JWTSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "convo-server",
	}

	router := server.NewRouter(server.Deps{
		Store:       st,
		Broker:      broker,
		TokenConfig: tokenCfg,
		CORSOrigin:  cfg.CORSOrigin,
	})

	slog.Info("listening", slog.Int("port", cfg.Port))
	if err := server.Run(cfg, router); err != nil {
		slog.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
}
