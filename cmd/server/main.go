package main

import (
	"context"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"

	"korob/internal/api"
	"korob/internal/config"
	"korob/internal/engine"
	"korob/internal/meta"
	"korob/internal/pg"
	"korob/internal/storage"
)

func newLogger(mode string) (*zap.Logger, error) {
	switch strings.ToLower(mode) {
	case "prod", "production":
		return zap.NewProduction()
	default:
		return zap.NewDevelopment()
	}
}

func main() {
	cfg := config.LoadWithPath("config.json")

	logger, err := newLogger(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Бэкенды: memory всегда, postgres и redis — по конфигу
	adapters := []engine.Adapter{storage.NewMemory()}
	var schemaStore meta.SchemaStore = meta.NewMemoryStore()

	if cfg.DBURL != "" {
		db, err := pg.Open(cfg.DBURL)
		if err != nil {
			logger.Fatal("postgres connect failed", zap.Error(err))
		}
		if err := pg.Bootstrap(db); err != nil {
			logger.Fatal("postgres bootstrap failed", zap.Error(err))
		}
		schemaStore = meta.NewPGStore(db)
		adapters = append(adapters, storage.NewPostgres(db))
		logger.Info("postgres backend ready")
	}
	if cfg.RedisAddr != "" {
		rdb, err := storage.NewRedisClient(cfg.RedisAddr)
		if err != nil {
			logger.Fatal("redis connect failed", zap.Error(err))
		}
		adapters = append(adapters, storage.NewRedis(rdb))
		logger.Info("redis backend ready")
	}

	// 2. Маршрутизация: правила из yaml (если задан), дефолт — из конфига
	// или самый "прочный" из доступных бэкендов
	rules := map[string]string{}
	defBackend := cfg.DefaultBackend
	if cfg.RoutingFile != "" {
		rf, err := engine.LoadRoutingFile(cfg.RoutingFile)
		if err != nil {
			logger.Fatal("routing file load failed", zap.Error(err))
		}
		rules = rf.Entities
		if defBackend == "" {
			defBackend = rf.Default
		}
	}
	if defBackend == "" {
		defBackend = storage.BackendMemory
		if cfg.DBURL != "" {
			defBackend = storage.BackendPostgres
		}
	}
	routing, err := engine.NewRouting(defBackend, rules, adapters...)
	if err != nil {
		logger.Fatal("routing config invalid", zap.Error(err))
	}

	// 3. Движок записей
	reader := meta.NewReader(schemaStore)
	validator := engine.NewValidator(logger)
	svc := engine.NewService(reader, validator, routing, logger)

	// 4. Стартовые схемы
	if cfg.SeedDir != "" {
		n, err := meta.SeedFromDir(ctx, schemaStore, cfg.SeedDir)
		if err != nil {
			logger.Fatal("schema seed failed", zap.Error(err))
		}
		logger.Info("schemas seeded", zap.Int("created", n))
	}

	// 5. REST API
	r := api.NewRouter(svc, schemaStore, reader, routing, logger)
	logger.Info("starting korob server",
		zap.String("port", cfg.Port), zap.String("default_backend", defBackend))
	if err := api.RunServer(":"+cfg.Port, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
