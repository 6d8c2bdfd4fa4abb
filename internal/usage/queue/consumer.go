package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/metergatelabs/metergate/internal/config"
	"github.com/metergatelabs/metergate/internal/observability"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	readBlock    = 5 * time.Second
	readBatch    = 32
	errorBackoff = 5 * time.Second

	// Pending entries older than this are reclaimed; they were left unacked
	// by a consumer that died or by a transient tracker failure.
	staleClaimAge = time.Minute
)

// Consumer drains the usage stream through a consumer group. Messages are
// acknowledged only after the tracker committed both writes; transient
// failures stay pending for redelivery, poison messages are moved to the
// dead-letter stream.
type Consumer struct {
	log     *zap.Logger
	client  *redis.Client
	tracker usagedomain.Tracker
	metrics *observability.Metrics

	stream     string
	deadLetter string
	group      string
	name       string
	minIdle    time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

type ConsumerParam struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Redis   *redis.Client
	Tracker usagedomain.Tracker
	Metrics *observability.Metrics `optional:"true"`
}

func NewConsumer(p ConsumerParam) *Consumer {
	return &Consumer{
		log:        p.Log.Named("usage.consumer"),
		client:     p.Redis,
		tracker:    p.Tracker,
		metrics:    p.Metrics,
		stream:     p.Config.Usage.Stream,
		deadLetter: p.Config.Usage.DeadLetterStream,
		group:      p.Config.Usage.Group,
		name:       p.Config.Usage.Consumer,
		minIdle:    staleClaimAge,
	}
}

// Register hooks the consumer into the process lifecycle.
func Register(lc fx.Lifecycle, c *Consumer) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			c.cancel = cancel
			c.done = make(chan struct{})
			go c.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			c.cancel()
			select {
			case <-c.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	c.log.Info("usage consumer started",
		zap.String("stream", c.stream), zap.String("group", c.group))

	if err := c.ensureGroup(ctx); err != nil && ctx.Err() == nil {
		c.log.Error("failed to create consumer group", zap.Error(err))
	}
	c.claimStale(ctx)

	for {
		if ctx.Err() != nil {
			c.log.Info("usage consumer stopped")
			return
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Count:    readBatch,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if err == redis.Nil {
				// Idle: use the gap to retry entries left pending by a
				// failed delivery. A group read with ">" never revisits
				// them, so this is the live redelivery path.
				c.claimStale(ctx)
				continue
			}
			// Channel unreachable: back off and resubscribe, never terminate.
			c.log.Warn("usage stream read failed, backing off", zap.Error(err))
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
			}
			if err := c.ensureGroup(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn("failed to re-create consumer group", zap.Error(err))
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// claimStale re-reads pending entries idle past minIdle. Called at startup
// and whenever the read loop goes idle.
func (c *Consumer) claimStale(ctx context.Context) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  c.minIdle,
		Start:    "0-0",
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("failed to claim stale usage events", zap.Error(err))
		}
		return
	}
	for _, msg := range msgs {
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	event, err := decode(msg)
	if err != nil {
		c.log.Error("undecodable usage event, dead-lettering",
			zap.String("message_id", msg.ID), zap.Error(err))
		c.deadLetterMsg(ctx, msg)
		return
	}

	if err := c.tracker.Track(ctx, event); err != nil {
		// Leave unacknowledged; redelivery will retry.
		c.log.Warn("failed to track usage event, leaving pending",
			zap.String("message_id", msg.ID), zap.Error(err))
		c.count("retried")
		return
	}

	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		// Duplicate delivery is tolerated downstream; just log.
		c.log.Warn("failed to ack usage event", zap.String("message_id", msg.ID), zap.Error(err))
	}
	c.count("processed")
}

func (c *Consumer) deadLetterMsg(ctx context.Context, msg redis.XMessage) {
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.deadLetter,
		Values: msg.Values,
	}).Err()
	if err != nil {
		c.log.Error("failed to dead-letter usage event", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.log.Warn("failed to ack dead-lettered event", zap.String("message_id", msg.ID), zap.Error(err))
	}
	c.count("dead_lettered")
}

func (c *Consumer) count(result string) {
	if c.metrics != nil {
		c.metrics.UsageEvents.WithLabelValues(result).Inc()
	}
}

func decode(msg redis.XMessage) (usagedomain.Event, error) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return usagedomain.Event{}, usagedomain.ErrInvalidEvent
	}
	var event usagedomain.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return usagedomain.Event{}, err
	}
	if event.PrincipalID == 0 || event.Endpoint == "" {
		return usagedomain.Event{}, usagedomain.ErrInvalidEvent
	}
	return event, nil
}
