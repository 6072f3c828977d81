package service

import (
	"context"
	"sync"
	"sync/atomic"

	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"
	"payment-node/internal/metrics"
	"payment-node/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Subscriber is one live event stream consumer. Events arrive on Out in
// strict sequence order with no gaps and no duplicates. When Done closes,
// Err reports why: nil for a clean shutdown, SUB_001 when the subscriber
// fell too far behind.
type Subscriber struct {
	id   uuid.UUID
	from int64

	live  chan domain.Event
	out   chan domain.Event
	done  chan struct{}
	state atomic.Int32

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func (s *Subscriber) ID() uuid.UUID             { return s.id }
func (s *Subscriber) Out() <-chan domain.Event  { return s.out }
func (s *Subscriber) Done() <-chan struct{}     { return s.done }
func (s *Subscriber) State() domain.SubscriberState {
	return domain.SubscriberState(s.state.Load())
}

// Err returns the reason the subscriber ended. Valid once Done is closed.
func (s *Subscriber) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Subscriber) finish(err error) {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		s.state.Store(int32(domain.SubscriberClosed))
		close(s.done)
	})
}

// Registry tracks live subscribers and fans persisted events out to them.
// It consumes the bus via OnPublish; a subscriber whose queue is full at
// publication time is dropped rather than slowing anyone down.
type Registry struct {
	ledger    ports.LedgerStore
	queueSize int
	log       zerolog.Logger
	met       *metrics.Metrics

	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscriber
}

// NewRegistry creates a new subscription registry.
func NewRegistry(ledger ports.LedgerStore, queueSize int, met *metrics.Metrics, log zerolog.Logger) *Registry {
	if queueSize < 1 {
		queueSize = 32
	}
	return &Registry{
		ledger:    ledger,
		queueSize: queueSize,
		met:       met,
		log:       log,
		subs:      make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers a subscriber resuming from fromSequence and starts its
// delivery pump. fromSequence < 1 means from the beginning.
func (r *Registry) Subscribe(ctx context.Context, fromSequence int64) *Subscriber {
	if fromSequence < 1 {
		fromSequence = 1
	}
	sub := &Subscriber{
		id:   uuid.New(),
		from: fromSequence,
		live: make(chan domain.Event, r.queueSize),
		out:  make(chan domain.Event),
		done: make(chan struct{}),
	}
	sub.state.Store(int32(domain.SubscriberConnecting))

	// Registered before the first snapshot so nothing published during
	// catch-up is missed; the live queue absorbs it.
	r.mu.Lock()
	r.subs[sub.id] = sub
	r.mu.Unlock()

	if r.met != nil {
		r.met.LiveSubscribers.Inc()
	}
	r.log.Debug().
		Str("subscriber_id", sub.id.String()).
		Int64("from_sequence", fromSequence).
		Msg("subscriber registered")

	go r.pump(ctx, sub)
	return sub
}

// Unsubscribe removes a subscriber cleanly, e.g. on client disconnect.
func (r *Registry) Unsubscribe(id uuid.UUID) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	sub.finish(nil)
	if r.met != nil {
		r.met.LiveSubscribers.Dec()
	}
}

// Count returns the number of registered subscribers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// OnPublish implements ports.EventConsumer. Delivery into each subscriber's
// queue never blocks: a full queue drops that subscriber and only that
// subscriber.
func (r *Registry) OnPublish(event domain.Event) {
	r.mu.RLock()
	overflowed := make([]*Subscriber, 0)
	for _, sub := range r.subs {
		select {
		case sub.live <- event:
		default:
			overflowed = append(overflowed, sub)
		}
	}
	r.mu.RUnlock()

	for _, sub := range overflowed {
		r.dropOverflowed(sub, event.Sequence)
	}
}

func (r *Registry) dropOverflowed(sub *Subscriber, sequence int64) {
	r.mu.Lock()
	delete(r.subs, sub.id)
	r.mu.Unlock()

	sub.finish(apperror.ErrSubscriberOverflow())
	if r.met != nil {
		r.met.LiveSubscribers.Dec()
		r.met.SubscriberOverflows.Inc()
	}
	r.log.Warn().
		Str("subscriber_id", sub.id.String()).
		Int64("at_sequence", sequence).
		Msg("subscriber queue overflow, dropping")
}

// pump drives one subscriber: replay snapshots until caught up, then drain
// the live queue. The cursor dedups the handoff between the two phases.
func (r *Registry) pump(ctx context.Context, sub *Subscriber) {
	defer close(sub.out)

	sub.state.Store(int32(domain.SubscriberCatchingUp))
	cursor := sub.from

	for {
		events, err := r.ledger.ReadFrom(ctx, cursor)
		if err != nil {
			r.remove(sub, err)
			return
		}
		if len(events) == 0 {
			break
		}
		for _, e := range events {
			if e.Sequence < cursor {
				continue
			}
			if !r.deliver(ctx, sub, e) {
				return
			}
			cursor = e.Sequence + 1
		}
	}

	sub.state.Store(int32(domain.SubscriberLive))

	for {
		select {
		case <-ctx.Done():
			r.remove(sub, nil)
			return
		case <-sub.done:
			return
		case e := <-sub.live:
			if e.Sequence < cursor {
				continue
			}
			if !r.deliver(ctx, sub, e) {
				return
			}
			cursor = e.Sequence + 1
		}
	}
}

// deliver hands one event to the consumer side. Returns false once the
// subscriber is finished, whatever the reason.
func (r *Registry) deliver(ctx context.Context, sub *Subscriber, e domain.Event) bool {
	select {
	case sub.out <- e:
		return true
	case <-sub.done:
		return false
	case <-ctx.Done():
		r.remove(sub, nil)
		return false
	}
}

func (r *Registry) remove(sub *Subscriber, err error) {
	r.mu.Lock()
	_, ok := r.subs[sub.id]
	if ok {
		delete(r.subs, sub.id)
	}
	r.mu.Unlock()

	sub.finish(err)
	if ok && r.met != nil {
		r.met.LiveSubscribers.Dec()
	}
}
