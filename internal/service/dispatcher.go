package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"payment-node/config"
	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"
	"payment-node/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPClient is the slice of http.Client the dispatcher uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// webhookBody is the JSON document POSTed to endpoints: the event fields at
// the top level plus the delivery id, which is stable across retries of the
// same (endpoint, event) pair.
type webhookBody struct {
	Sequence   int64            `json:"sequence"`
	Kind       domain.EventKind `json:"kind"`
	Payload    json.RawMessage  `json:"payload"`
	CreatedAt  time.Time        `json:"created_at"`
	DeliveryID uuid.UUID        `json:"delivery_id"`
}

// Dispatcher delivers persisted events to registered webhook endpoints,
// at least once each, in sequence order per endpoint. Each endpoint gets its
// own worker so one dead receiver never stalls the others.
type Dispatcher struct {
	endpoints ports.WebhookEndpointRepository
	attempts  ports.DeliveryAttemptRepository
	events    ports.EventRepository
	sig       ports.SignatureService
	client    HTTPClient
	cfg       config.WebhookConfig
	log       zerolog.Logger
	met       *metrics.Metrics

	intake chan domain.Event
	stop   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[uuid.UUID]*endpointWorker
}

type endpointWorker struct {
	endpoint domain.WebhookEndpoint
	wake     chan struct{}
	quit     chan struct{}
}

// NewDispatcher creates a new Dispatcher. client is usually an *http.Client
// with cfg.Timeout set.
func NewDispatcher(
	endpoints ports.WebhookEndpointRepository,
	attempts ports.DeliveryAttemptRepository,
	events ports.EventRepository,
	sig ports.SignatureService,
	client HTTPClient,
	cfg config.WebhookConfig,
	met *metrics.Metrics,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		endpoints: endpoints,
		attempts:  attempts,
		events:    events,
		sig:       sig,
		client:    client,
		cfg:       cfg,
		met:       met,
		log:       log,
		intake:    make(chan domain.Event, 1024),
		stop:      make(chan struct{}),
		workers:   make(map[uuid.UUID]*endpointWorker),
	}
}

// Start loads enabled endpoints, resumes any pending deliveries left over
// from a previous run and begins processing.
func (d *Dispatcher) Start(ctx context.Context) error {
	enabled, err := d.endpoints.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load webhook endpoints: %w", err)
	}
	for _, ep := range enabled {
		d.startWorker(ep)
	}

	// Endpoints disabled since their last pending row still finish their
	// queue; new events stop being enqueued for them.
	pending, err := d.attempts.PendingEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("load pending delivery endpoints: %w", err)
	}
	for _, id := range pending {
		d.mu.Lock()
		_, running := d.workers[id]
		d.mu.Unlock()
		if running {
			continue
		}
		ep, err := d.endpoints.GetByID(ctx, id)
		if err != nil || ep == nil {
			continue
		}
		d.startWorker(*ep)
	}

	d.wg.Add(1)
	go d.run(ctx)

	d.log.Info().
		Int("endpoints", len(enabled)).
		Msg("webhook dispatcher started")
	return nil
}

// Stop shuts down all workers and waits for in-flight deliveries.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.mu.Lock()
	for _, w := range d.workers {
		close(w.quit)
	}
	d.workers = make(map[uuid.UUID]*endpointWorker)
	d.mu.Unlock()
	d.wg.Wait()
}

// OnPublish implements ports.EventConsumer. Events land in the intake buffer;
// if the buffer is full the publisher is backpressured rather than the event
// dropped.
func (d *Dispatcher) OnPublish(event domain.Event) {
	select {
	case d.intake <- event:
	default:
		select {
		case d.intake <- event:
		case <-d.stop:
		}
	}
}

// AddEndpoint starts delivering to a newly registered endpoint.
func (d *Dispatcher) AddEndpoint(ep domain.WebhookEndpoint) {
	if ep.Enabled {
		d.startWorker(ep)
	}
}

// RemoveEndpoint stops the endpoint's worker. Pending rows stay in storage
// and are simply never picked up again.
func (d *Dispatcher) RemoveEndpoint(id uuid.UUID) {
	d.mu.Lock()
	w, ok := d.workers[id]
	if ok {
		delete(d.workers, id)
	}
	d.mu.Unlock()
	if ok {
		close(w.quit)
	}
}

func (d *Dispatcher) startWorker(ep domain.WebhookEndpoint) {
	w := &endpointWorker{
		endpoint: ep,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}

	d.mu.Lock()
	if _, exists := d.workers[ep.ID]; exists {
		d.mu.Unlock()
		return
	}
	d.workers[ep.ID] = w
	d.mu.Unlock()

	d.wg.Add(1)
	go d.workerLoop(w)
	d.wakeWorker(w)
}

func (d *Dispatcher) wakeWorker(w *endpointWorker) {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// run fans published events out into per-endpoint attempt rows. The poll
// ticker doubles as the retry clock: it wakes every worker so due retries
// get picked up without per-attempt timers.
func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	interval := d.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case event := <-d.intake:
			d.enqueue(ctx, event)
		case <-ticker.C:
			d.mu.Lock()
			for _, w := range d.workers {
				d.wakeWorker(w)
			}
			d.mu.Unlock()
		}
	}
}

// enqueue creates one pending attempt row per subscribed endpoint and wakes
// the workers.
func (d *Dispatcher) enqueue(ctx context.Context, event domain.Event) {
	d.mu.Lock()
	workers := make([]*endpointWorker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	now := time.Now().UTC()
	for _, w := range workers {
		if !w.endpoint.WantsKind(event.Kind) {
			continue
		}
		attempt := &domain.DeliveryAttempt{
			EndpointID:    w.endpoint.ID,
			EventSequence: event.Sequence,
			DeliveryID:    domain.DeliveryIDFor(w.endpoint.ID, event.Sequence),
			AttemptCount:  0,
			NextAttemptAt: now,
			Status:        domain.DeliveryStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := d.attempts.Create(ctx, attempt); err != nil {
			d.log.Error().Err(err).
				Str("endpoint_id", w.endpoint.ID.String()).
				Int64("sequence", event.Sequence).
				Msg("failed to enqueue webhook delivery")
			continue
		}
		d.wakeWorker(w)
	}
}

// workerLoop delivers the endpoint's pending attempts one at a time, lowest
// sequence first. Sequence N+1 is never tried while N is pending.
func (d *Dispatcher) workerLoop(w *endpointWorker) {
	defer d.wg.Done()

	for {
		select {
		case <-w.quit:
			return
		case <-w.wake:
		}

		for {
			ctx := context.Background()
			attempt, err := d.attempts.NextPending(ctx, w.endpoint.ID)
			if err != nil {
				d.log.Error().Err(err).
					Str("endpoint_id", w.endpoint.ID.String()).
					Msg("failed to load next pending delivery")
				break
			}
			if attempt == nil {
				break
			}
			if wait := time.Until(attempt.NextAttemptAt); wait > 0 {
				// Not due yet; the poll ticker wakes us again.
				break
			}

			d.attemptDelivery(ctx, w, attempt)

			select {
			case <-w.quit:
				return
			default:
			}
		}
	}
}

// attemptDelivery runs one HTTP POST and updates the attempt row with the
// outcome: delivered, retry later, or abandoned.
func (d *Dispatcher) attemptDelivery(ctx context.Context, w *endpointWorker, attempt *domain.DeliveryAttempt) {
	attempt.AttemptCount++
	now := time.Now().UTC()

	statusCode, err := d.send(ctx, w.endpoint, attempt)
	if statusCode != 0 {
		attempt.LastHTTPStatus = &statusCode
	}

	if err == nil {
		attempt.Status = domain.DeliveryStatusDelivered
		attempt.LastError = nil
		if d.met != nil {
			d.met.WebhookDeliveries.WithLabelValues("delivered").Inc()
		}
		d.log.Debug().
			Str("endpoint_id", w.endpoint.ID.String()).
			Int64("sequence", attempt.EventSequence).
			Int("attempts", attempt.AttemptCount).
			Msg("webhook delivered")
	} else {
		msg := err.Error()
		attempt.LastError = &msg
		if attempt.AttemptCount >= d.cfg.MaxAttempts {
			attempt.Status = domain.DeliveryStatusAbandoned
			if d.met != nil {
				d.met.WebhookDeliveries.WithLabelValues("abandoned").Inc()
				d.met.WebhooksAbandoned.Inc()
			}
			d.log.Error().Err(err).
				Str("endpoint_id", w.endpoint.ID.String()).
				Int64("sequence", attempt.EventSequence).
				Int("attempts", attempt.AttemptCount).
				Msg("webhook delivery abandoned")
		} else {
			attempt.NextAttemptAt = now.Add(d.backoff(attempt.AttemptCount))
			if d.met != nil {
				d.met.WebhookDeliveries.WithLabelValues("failed").Inc()
			}
			d.log.Warn().Err(err).
				Str("endpoint_id", w.endpoint.ID.String()).
				Int64("sequence", attempt.EventSequence).
				Int("attempts", attempt.AttemptCount).
				Time("next_attempt_at", attempt.NextAttemptAt).
				Msg("webhook delivery failed, will retry")
		}
	}

	if uerr := d.attempts.Update(ctx, attempt); uerr != nil {
		d.log.Error().Err(uerr).
			Str("endpoint_id", w.endpoint.ID.String()).
			Int64("sequence", attempt.EventSequence).
			Msg("failed to record delivery outcome")
	}
}

// send performs the signed POST. Any network error or non-2xx response counts
// as a failure.
func (d *Dispatcher) send(ctx context.Context, ep domain.WebhookEndpoint, attempt *domain.DeliveryAttempt) (int, error) {
	event, err := d.events.Get(ctx, attempt.EventSequence)
	if err != nil {
		return 0, fmt.Errorf("load event %d: %w", attempt.EventSequence, err)
	}
	if event == nil {
		return 0, fmt.Errorf("event %d missing from ledger", attempt.EventSequence)
	}

	body, err := json.Marshal(webhookBody{
		Sequence:   event.Sequence,
		Kind:       event.Kind,
		Payload:    event.Payload,
		CreatedAt:  event.CreatedAt,
		DeliveryID: attempt.DeliveryID,
	})
	if err != nil {
		return 0, fmt.Errorf("encode webhook body: %w", err)
	}

	reqCtx := ctx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Paynode-Delivery-Id", attempt.DeliveryID.String())
	req.Header.Set("X-Paynode-Signature", d.sig.Sign(ep.Secret, string(body)))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// backoff returns the delay before retry n+1: base doubled per failure,
// clamped at the cap, with 10% jitter either way so herds spread out.
func (d *Dispatcher) backoff(failures int) time.Duration {
	base := d.cfg.BackoffBase
	if base <= 0 {
		base = 10 * time.Second
	}
	capD := d.cfg.BackoffCap
	if capD <= 0 {
		capD = time.Hour
	}

	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= capD {
			delay = capD
			break
		}
	}
	if delay > capD {
		delay = capD
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/5+1)) - delay/10
	return delay + jitter
}
