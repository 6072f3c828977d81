package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"
	"payment-node/internal/metrics"

	"github.com/rs/zerolog"
)

const dedupTTL = 24 * time.Hour

// EventBus implements ports.EventPublisher. Publish persists the event first
// and notifies consumers only after the commit succeeds, so a consumer never
// sees an event the ledger does not hold. Append and fan-out happen under one
// lock so consumers observe events in commit order even when publishers race.
type EventBus struct {
	ledger ports.LedgerStore
	cache  ports.IdempotencyCache // nil disables engine-event dedup
	log    zerolog.Logger
	met    *metrics.Metrics

	pubMu sync.Mutex

	mu        sync.RWMutex
	consumers []ports.EventConsumer
}

// NewEventBus creates a new EventBus.
func NewEventBus(ledger ports.LedgerStore, cache ports.IdempotencyCache, met *metrics.Metrics, log zerolog.Logger) *EventBus {
	return &EventBus{
		ledger: ledger,
		cache:  cache,
		met:    met,
		log:    log,
	}
}

// Register adds a consumer. Consumers are notified in registration order and
// must return quickly; anything slow buffers internally.
func (b *EventBus) Register(c ports.EventConsumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = append(b.consumers, c)
}

// Publish appends the event and fans it out. A duplicate engineEventID
// returns the previously recorded event without appending or notifying
// again. Concurrent publishers are serialized: OnPublish runs in sequence
// order with no notification interleaving.
func (b *EventBus) Publish(ctx context.Context, kind domain.EventKind, payload any, engineEventID string) (*domain.Event, error) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if engineEventID != "" && b.cache != nil {
		cached, err := b.cache.Get(ctx, engineEventID)
		if err != nil {
			b.log.Warn().Err(err).Str("engine_event_id", engineEventID).
				Msg("dedup cache read failed, publishing anyway")
		}
		if cached != nil {
			var prior domain.Event
			if err := json.Unmarshal(cached, &prior); err == nil {
				b.log.Debug().
					Str("engine_event_id", engineEventID).
					Int64("sequence", prior.Sequence).
					Msg("duplicate engine event absorbed")
				return &prior, nil
			}
		}
	}

	event, err := b.ledger.Append(ctx, kind, payload)
	if err != nil {
		return nil, err
	}

	if engineEventID != "" && b.cache != nil {
		if raw, err := json.Marshal(event); err == nil {
			if err := b.cache.Set(ctx, engineEventID, raw, dedupTTL); err != nil {
				b.log.Warn().Err(err).Str("engine_event_id", engineEventID).
					Msg("dedup cache write failed")
			}
		}
	}

	if b.met != nil {
		b.met.EventsPublished.WithLabelValues(string(kind)).Inc()
	}

	b.mu.RLock()
	consumers := b.consumers
	b.mu.RUnlock()
	for _, c := range consumers {
		c.OnPublish(event)
	}

	return &event, nil
}
