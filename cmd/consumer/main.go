// Audit-trail consumer: reads the audit topic and writes each event to
// stdout. Mostly a debugging aid and an example downstream consumer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	segmentio "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/pbazhenov/lockerdesk/internal/config"
	"github.com/pbazhenov/lockerdesk/internal/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if len(cfg.KafkaBrokers) == 0 {
		fmt.Fprintln(os.Stderr, "fatal: KAFKA_BROKERS is not set")
		os.Exit(1)
	}

	log := logger.New()
	defer func() { _ = log.Sync() }()

	reader := segmentio.NewReader(segmentio.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaAuditTopic,
		GroupID: "lockerdesk-audit-consumer",
	})
	defer func() { _ = reader.Close() }()

	log.Info("audit consumer started",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaAuditTopic))

	for {
		message, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("audit consumer stopped")
				return
			}
			log.Error("failed to read audit message", zap.Error(err))
			continue
		}
		fmt.Printf("%s\t%s\n", message.Key, message.Value)
	}
}
