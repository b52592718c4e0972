package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pharma-orders/internal/config"
	kafkax "github.com/ariefcatur/go-pharma-orders/internal/kafka"
	"github.com/ariefcatur/go-pharma-orders/internal/orders"
	"github.com/ariefcatur/go-pharma-orders/internal/postgres"
	"github.com/ariefcatur/go-pharma-orders/internal/redisx"
	"github.com/ariefcatur/go-pharma-orders/internal/stockwatch"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &stockwatch.Service{
		Products:    &orders.ProductRepo{DB: db},
		Marks:       redisx.Marker{R: rdb},
		Logger:      logger,
		ServiceName: cfg.ServiceName + "-stockwatch",
	}

	group := getenv("STOCKWATCH_GROUP", "stockwatch")
	workers := mustAtoi(os.Getenv("STOCKWATCH_WORKERS"), 4)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderCreated, workers)

	go func() {
		logger.Info("stockwatch consumer started",
			zap.String("group", group),
			zap.String("topic", orders.TopicOrderCreated),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandleOrderCreated); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
