package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"

	"github.com/unclebandit/creator-outreach/internal/event"
	"github.com/unclebandit/creator-outreach/internal/repository"
)

const (
	DefaultEventsQueue   = "outreach_events"
	DefaultEventsChannel = "outreach:events"
)

// AnalyticsSink persists every event as an analytics_events row.
type AnalyticsSink struct {
	Events repository.EventRepositoryInterface
	Now    func() time.Time
}

func (s *AnalyticsSink) Handle(ctx context.Context, e event.Event) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	env, err := event.Wrap(e, now())
	if err != nil {
		return err
	}
	if err := s.Events.TrackEvent(ctx, env.AnalyticsEvent()); err != nil {
		return fmt.Errorf("track %s: %w", e.Type(), err)
	}
	return nil
}

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher forwards events to a durable RabbitMQ queue for cmd/worker.
type AMQPPublisher struct {
	mu    sync.Mutex
	ch    amqpChannel
	queue string
}

// NewAMQPPublisher opens a channel on conn and declares the queue.
func NewAMQPPublisher(conn *amqp.Connection, queueName string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := DeclareEventsQueue(ch, queueName); err != nil {
		ch.Close()
		return nil, err
	}
	return &AMQPPublisher{ch: ch, queue: queueName}, nil
}

// DeclareEventsQueue declares the durable queue shared by publisher and worker.
func DeclareEventsQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return q, nil
}

func (p *AMQPPublisher) Handle(_ context.Context, e event.Event) error {
	env, err := event.Wrap(e, time.Now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	// amqp.Channel is not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         env.Type,
		Timestamp:    env.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", env.Type, p.queue, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

// RedisPublisher broadcasts events on a pub/sub channel for live dashboards.
type RedisPublisher struct {
	channel string
	publish func(ctx context.Context, channel string, payload []byte) error
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	return &RedisPublisher{
		channel: channel,
		publish: func(ctx context.Context, channel string, payload []byte) error {
			return client.Publish(ctx, channel, payload).Err()
		},
	}
}

func (p *RedisPublisher) Handle(ctx context.Context, e event.Event) error {
	env, err := event.Wrap(e, time.Now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return p.publish(ctx, p.channel, payload)
}
