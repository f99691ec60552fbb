package kafka

import (
	"context"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const readBackoff = 2 * time.Second

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
}

// MessageHandler processes one message. A returned error is logged and the
// message is still committed, so a poison message cannot stall the group.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Consumer reads a topic as part of a consumer group with explicit commits
type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

// NewConsumer creates a group reader starting at the newest offset;
// alerts produced before the group existed are stale
func NewConsumer(cfg ConsumerConfig, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})

	return &Consumer{
		reader: reader,
		log:    log.With("component", "kafka_consumer", "topic", cfg.Topic, "group", cfg.GroupID),
	}
}

// Consume fetches, handles and commits messages until ctx is cancelled
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	c.log.Info("Starting consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.log.Info("Consumer stopped")
				return nil
			}
			c.log.Warnw("Failed to fetch message", "error", err)
			if !sleepCtx(ctx, readBackoff) {
				return nil
			}
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.log.Errorw("Failed to handle message",
				"key", string(msg.Key),
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}

		// commit on a detached context so a shutdown mid-message still records progress
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err = c.reader.CommitMessages(commitCtx, msg)
		cancel()
		if err != nil {
			c.log.Warnw("Failed to commit offset", "offset", msg.Offset, "error", errors.Wrap(err, "commit"))
		}
	}
}

// Close closes the reader, unblocking a pending FetchMessage
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
