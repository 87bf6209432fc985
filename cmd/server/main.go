package main

import (
	"context"
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"liarsdice/internal/config"
	"liarsdice/internal/game"
	"liarsdice/internal/httpapi"
	"liarsdice/internal/hub"
	"liarsdice/internal/rooms"
	"liarsdice/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var logger *zap.Logger
	if cfg.AppEnv == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	var store rooms.Store
	if cfg.RedisAddr != "" {
		store = rooms.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		store = rooms.NewMemoryStore()
		logger.Warn("REDIS_ADDR not set, rooms live in process memory only")
	}

	dir := rooms.NewDirectory(store, cfg.RoomTTL)
	sessions := session.New(dir, game.NewRoller(0), logger)

	ctx := context.Background()
	h := hub.NewHub(ctx, sessions, logger)

	handler := httpapi.SetupRoutes(h, sessions, logger)

	logger.Info("listening", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
