// cmd/worker/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/unclebandit/creator-outreach/internal/config"
	"github.com/unclebandit/creator-outreach/internal/db"
	"github.com/unclebandit/creator-outreach/internal/logger"
	"github.com/unclebandit/creator-outreach/internal/queue"
	"github.com/unclebandit/creator-outreach/internal/repository"
)

const prefetch = 20

// The worker drains the analytics queue the server fills when EVENTS_SINK=amqp.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	pg, err := db.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.ClosePostgres(pg)

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open a channel")
	}
	defer ch.Close()

	q, err := queue.DeclareEventsQueue(ch, cfg.EventsQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to declare queue")
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		log.Fatal().Err(err).Msg("Failed to set prefetch")
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", q.Name).Msg("Worker running, waiting for analytics events")
	queue.ConsumeAnalytics(ctx, msgs, &repository.EventRepository{DB: pg})
	log.Info().Msg("Worker stopped")
}
