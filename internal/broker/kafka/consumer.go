package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ChangeHandler получает событие об изменении таблицы отправок.
type ChangeHandler = func(ctx context.Context, ev messages.ShipmentsChanged) error

// Consumer читает топик shipments.changed.
type Consumer struct {
	r messageReader
}

// NewConsumer подписывается на topic. С пустым groupID читает топик без группы,
// каждый экземпляр тогда видит все события.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		MaxWait:           time.Second,
		StartOffset:       kafka.LastOffset,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{r: kafka.NewReader(cfg)}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// ConsumeChanges читает события до ошибки или отмены ctx.
// Битые события пропускаются и коммитятся, чтобы не стопорить партицию.
// Ошибка handler останавливает чтение без коммита: событие придёт снова.
func (c *Consumer) ConsumeChanges(ctx context.Context, handler ChangeHandler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if ev, ok := decodeChange(msg); ok {
			if err := handler(ctx, ev); err != nil {
				return errors.Wrapf(err, "handle %s event at offset %d", ev.Kind, msg.Offset)
			}
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

func decodeChange(msg kafka.Message) (messages.ShipmentsChanged, bool) {
	var ev messages.ShipmentsChanged
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.Kind == "" {
		slog.Warn("skip malformed change event",
			"key", string(msg.Key), "partition", msg.Partition, "offset", msg.Offset, "bytes", len(msg.Value))
		return messages.ShipmentsChanged{}, false
	}
	return ev, true
}
