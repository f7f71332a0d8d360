package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CargoLedger/config"
	"github.com/BearBump/CargoLedger/internal/broker/kafka"
	"github.com/BearBump/CargoLedger/internal/cache/rediscache"
	"github.com/BearBump/CargoLedger/internal/integrations/sheets/googlesheets"
	"github.com/BearBump/CargoLedger/internal/integrations/sheets/sample"
	"github.com/BearBump/CargoLedger/internal/invoice"
	"github.com/BearBump/CargoLedger/internal/services/shipments"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments"
)

type cargoAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     cargoAPIOpts
	svc      *shipments.Service
	consumer *kafka.Consumer
	closers  []func() error
	closeDB  func()
}

func mustBootstrapCargoAPI() *cargoAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	grpcAddr := cfg.CargoLedger.GRPCAddr
	if grpcAddr == "" {
		grpcAddr = ":50051"
	}
	httpAddr := cfg.CargoLedger.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.CargoLedger.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "cargo-api"
	}
	topic := cfg.Kafka.ShipmentsChangedTopicName
	if topic == "" {
		topic = "shipments.changed"
	}
	if cfg.CargoLedger.JWTSecret == "" {
		panic("cargoledger.jwt_secret is required")
	}

	snapshotTTL := time.Duration(cfg.CargoLedger.SnapshotTTLSeconds) * time.Second
	if snapshotTTL <= 0 {
		snapshotTTL = 24 * time.Hour
	}
	importLimit := int64(cfg.CargoLedger.ImportRateLimitPerMinute)
	if importLimit <= 0 {
		importLimit = 20
	}

	st := mustOpenPostgresWithRetry(cfg.Database.DSN(), 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	var tokens *googlesheets.TokenSource
	if p := cfg.CargoLedger.GoogleServiceAccountKeyPath; p != "" {
		sa, err := googlesheets.LoadServiceAccount(p)
		if err != nil {
			panic(fmt.Sprintf("google service account: %v", err))
		}
		tokens, err = googlesheets.NewTokenSource(sa)
		if err != nil {
			panic(fmt.Sprintf("google service account: %v", err))
		}
	} else if cfg.CargoLedger.GoogleSheetsAPIKey == "" {
		slog.Warn("google sheets credentials are not configured, only the sample sheet can be loaded")
	}
	sheetsClient := sample.Wrap(googlesheets.New(cfg.CargoLedger.GoogleSheetsBaseURL, cfg.CargoLedger.GoogleSheetsAPIKey, tokens))

	svc := shipments.New(st, rc, shipments.Options{
		ChunkSize:            cfg.CargoLedger.SaveChunkSize,
		Parallelism:          cfg.CargoLedger.SaveParallelism,
		SnapshotTTL:          snapshotTTL,
		ChangesTopic:         topic,
		ImportLimitPerMinute: importLimit,
	}).
		WithPublisher(producer).
		WithLimiter(rl).
		WithLocker(invoice.New(cfg.CargoLedger.InvoicePassword)).
		WithSheets(sheetsClient)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &cargoAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: cargoAPIOpts{
			grpcAddr:      grpcAddr,
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			jwtSecret:     cfg.CargoLedger.JWTSecret,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		closers:  []func() error{producer.Close, rl.Close, rc.Close},
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgshipments.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgshipments.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *cargoAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for _, c := range a.closers {
		_ = c()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *cargoAPIApp) Run() error {
	return runCargoAPI(a.ctx, a.opts, a.svc, a.consumer)
}
