package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bloodbank/internal/config"
	"bloodbank/internal/kafka"
	"bloodbank/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level)
	if len(cfg.Kafka.Brokers) == 0 {
		log.Error("kafka brokers not configured")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := &notifier{log: log}
	handler := kafka.NewConsumerGroupHandler(n.handle, log)
	log.Info("notifier consuming", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.GroupID)
	if err := kafka.StartSaramaConsumer(ctx, kafka.NewConsumerConfig(), cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{cfg.Kafka.Topic}, handler, log); err != nil {
		log.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
}
