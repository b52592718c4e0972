package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pharma-orders/internal/config"
	"github.com/ariefcatur/go-pharma-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-pharma-orders/internal/kafka"
	"github.com/ariefcatur/go-pharma-orders/internal/orders"
	"github.com/ariefcatur/go-pharma-orders/internal/postgres"
	"github.com/ariefcatur/go-pharma-orders/internal/redisx"
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

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers; lifetimes managed by Close/WaitClosed, not ctx
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(context.Background())
	pResolved := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderResolved, 1024)
	pResolved.Start(context.Background())

	// Engine
	svc := orders.NewService(
		&orders.ProductRepo{DB: db},
		&orders.Repo{DB: db},
		&orders.LedgerRepo{DB: db},
		&orders.PgTx{DB: db},
		logger,
	)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Service:          svc,
		ProducerCreated:  pCreated,
		ProducerResolved: pResolved,
		Cache:            redisx.Cache{R: rdb},
		Log:              logger,
		ServiceName:      cfg.ServiceName,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	pCreated.Close()
	pResolved.Close()
	pCreated.WaitClosed()
	pResolved.WaitClosed()
}
