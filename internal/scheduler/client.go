package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"trialops_backend/internal/config"
	"trialops_backend/internal/events"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(cfg.RedisURL, cfg.RedisTLSInsecure)
	if err != nil {
		return nil, err
	}

	queue := cfg.AsynqQueue
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueAnalyzeBatch queues one batch evaluation run.
func (c *Client) EnqueueAnalyzeBatch(ctx context.Context, payload AnalyzeBatchPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewAnalyzeBatchTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

// EnqueueSweep queues a sweep over all batches with open signals.
func (c *Client) EnqueueSweep(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}

	_, err := c.client.EnqueueContext(ctx, NewSweepOpenBatchesTask(), asynq.Queue(c.queue))
	return err
}

// EnqueueOutboxDispatch queues one outbox drain run.
func (c *Client) EnqueueOutboxDispatch(ctx context.Context, limit int) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewOutboxDispatchTask(OutboxDispatchPayload{Limit: limit})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

// BindBus makes newly queued outbox rows dispatch promptly instead of
// waiting for the next periodic drain.
func (c *Client) BindBus(bus events.Bus, outboxBatchSize int) {
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, _ events.Event) error {
			return c.EnqueueOutboxDispatch(ctx, outboxBatchSize)
		}))
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
