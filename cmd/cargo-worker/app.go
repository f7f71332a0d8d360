package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/CargoLedger/config"
	"github.com/BearBump/CargoLedger/internal/broker/kafka"
	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/BearBump/CargoLedger/internal/cache/rediscache"
	"github.com/BearBump/CargoLedger/internal/services/shipments"
	"github.com/BearBump/CargoLedger/internal/services/warmer"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments"
	"golang.org/x/sync/errgroup"
)

type kafkaConsumer interface {
	ConsumeChanges(ctx context.Context, fn func(ctx context.Context, ev messages.ShipmentsChanged) error) error
	Close() error
}

type workerFactories struct {
	newRefresher func(cfg *config.Config, ttl time.Duration) (r warmer.Refresher, closeFn func(), err error)
	newConsumer  func(cfg *config.Config, topic, group string) kafkaConsumer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newRefresher: func(cfg *config.Config, ttl time.Duration) (warmer.Refresher, func(), error) {
			st, err := pgshipments.New(cfg.Database.DSN())
			if err != nil {
				return nil, nil, err
			}
			rc := rediscache.New(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
			svc := shipments.New(st, rc, shipments.Options{SnapshotTTL: ttl})
			return svc, func() {
				_ = rc.Close()
				st.Close()
			}, nil
		},
		newConsumer: func(cfg *config.Config, topic, group string) kafkaConsumer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, topic, group)
		},
	}
}

// RunCargoWorker держит снимок таблицы в Redis свежим: по таймеру и после каждого изменения.
func RunCargoWorker(ctx context.Context, cfg *config.Config, f workerFactories, onListen func(httpAddr string)) error {
	topic := cfg.Kafka.ShipmentsChangedTopicName
	if topic == "" {
		topic = "shipments.changed"
	}
	group := cfg.CargoLedger.WorkerConsumerGroup
	if group == "" {
		group = "cargo-worker"
	}
	interval := time.Duration(cfg.CargoLedger.WorkerRefreshIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ttl := time.Duration(cfg.CargoLedger.SnapshotTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	refresher, closeFn, err := f.newRefresher(cfg, ttl)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	consumer := f.newConsumer(cfg, topic, group)
	defer func() { _ = consumer.Close() }()

	w := warmer.New(refresher).WithSettings(interval, -1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error {
		slog.Info("kafka consumer started", "topic", topic, "group", group)
		return consumer.ConsumeChanges(gctx, func(_ context.Context, ev messages.ShipmentsChanged) error {
			slog.Info("shipments changed, refreshing snapshot", "kind", ev.Kind, "actor", ev.Actor)
			w.Trigger()
			return nil
		})
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr: cfg.CargoLedger.WorkerHTTPAddr,
			onListen: onListen,
			warmer:   w,
			cfg:      cfg,
		})
	})

	return g.Wait()
}
