// Package queue carries usage events over a durable Redis stream with
// at-least-once delivery. Undecodable messages land on a dead-letter
// stream instead of cycling forever.
package queue

import (
	"context"
	"encoding/json"

	"github.com/metergatelabs/metergate/internal/config"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const payloadField = "payload"

// Producer publishes usage events without ever blocking the request path:
// Emit hands the event to a buffered channel drained by a single writer
// goroutine, and drops with a log line when the buffer is full.
type Producer struct {
	log    *zap.Logger
	client *redis.Client
	stream string

	events chan usagedomain.Event
	done   chan struct{}
}

type ProducerParam struct {
	fx.In

	LC     fx.Lifecycle
	Log    *zap.Logger
	Config config.Config
	Redis  *redis.Client
}

func NewProducer(p ProducerParam) usagedomain.Producer {
	prod := &Producer{
		log:    p.Log.Named("usage.producer"),
		client: p.Redis,
		stream: p.Config.Usage.Stream,
		events: make(chan usagedomain.Event, p.Config.Usage.BufferSize),
		done:   make(chan struct{}),
	}

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go prod.run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(prod.events)
			select {
			case <-prod.done:
			case <-ctx.Done():
			}
			return nil
		},
	})

	return prod
}

func (p *Producer) Emit(event usagedomain.Event) {
	select {
	case p.events <- event:
	default:
		p.log.Warn("usage event buffer full, dropping event",
			zap.String("principal_id", event.PrincipalID.String()),
			zap.String("endpoint", event.Endpoint))
	}
}

func (p *Producer) run() {
	defer close(p.done)
	for event := range p.events {
		p.publish(event)
	}
}

func (p *Producer) publish(event usagedomain.Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to encode usage event", zap.Error(err))
		return
	}

	// Emission failures must never reach the original caller; log and move on.
	err = p.client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{payloadField: string(raw)},
	}).Err()
	if err != nil {
		p.log.Error("failed to publish usage event",
			zap.String("principal_id", event.PrincipalID.String()), zap.Error(err))
	}
}
