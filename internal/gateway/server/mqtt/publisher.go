package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pumpgate-io/pumpgate/internal/gateway/state"
	"github.com/pumpgate-io/pumpgate/internal/pkg/metrics"
	"github.com/pumpgate-io/pumpgate/internal/pkg/mqtt/paths"
	"github.com/pumpgate-io/pumpgate/pkg/log"
	"github.com/pumpgate-io/pumpgate/pkg/mqtt"
)

// StatusInterval is how often the full state snapshot is published.
const StatusInterval = 5 * time.Second

// Publisher periodically publishes the current state as a retained
// message so late subscribers immediately see the last known state.
type Publisher struct {
	client   mqtt.Client
	store    *state.Store
	interval time.Duration
	logger   log.Logger
}

// NewPublisher creates the status publisher on an already managed client.
func NewPublisher(client mqtt.Client, store *state.Store) *Publisher {
	return &Publisher{
		client:   client,
		store:    store,
		interval: StatusInterval,
		logger:   log.Std().WithName("mqtt-status"),
	}
}

// Name implements server.Server.
func (p *Publisher) Name() string {
	return "mqtt-status"
}

// Start publishes a snapshot every interval until ctx is canceled. A
// failed publish is logged and retried on the next tick; the broker
// being away must not bring the publisher down.
func (p *Publisher) Start(ctx context.Context) error {
	if err := p.client.AwaitConnection(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.publishOnce(ctx)
		}
	}
}

func (p *Publisher) publishOnce(ctx context.Context) {
	snap := p.store.CurrentSnapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		metrics.StatusPublishesTotal.WithLabelValues("error").Inc()
		p.logger.Error(err, "marshal status snapshot")
		return
	}
	if err := p.client.Publish(ctx, paths.Status, qosAtLeastOnce, true, payload); err != nil {
		metrics.StatusPublishesTotal.WithLabelValues("error").Inc()
		p.logger.Warn("status publish failed", "err", err.Error())
		return
	}
	metrics.StatusPublishesTotal.WithLabelValues("ok").Inc()
}
