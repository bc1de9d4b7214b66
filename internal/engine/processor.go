package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"peermarket/internal/dedup"
	"peermarket/internal/model"
	"peermarket/internal/monitor"
	"peermarket/internal/protocol"
	"peermarket/internal/repository"
	"peermarket/pkg/log"
)

// Outcome of one processing pass over a message
type Outcome string

const (
	// OutcomeProcessed the action was applied (or was a no-op passthrough)
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate the id was already recorded; nothing changed
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeDeferred the message is WAITING on a dependency
	OutcomeDeferred Outcome = "deferred"
	// OutcomeFailed the message failed terminally
	OutcomeFailed Outcome = "failed"
)

// RetryPolicy bounded exponential backoff for WAITING messages
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
}

// Backoff returns the wait before retry number `attempts` (1-based)
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempts-1)))
	if d > p.MaxInterval || d <= 0 {
		d = p.MaxInterval
	}
	return d
}

// Processor runs the record -> decode -> resolve -> apply pipeline for a
// single message and owns its status transitions.
type Processor struct {
	messages        repository.MessageRepository
	resolver        *Resolver
	handlers        *Handlers
	dedup           dedup.Deduper
	retry           RetryPolicy
	conflictRetries int
	metrics         *monitor.MetricsCollector
	tracer          *monitor.Tracer
}

// NewProcessor creates a message processor
func NewProcessor(
	messages repository.MessageRepository,
	resolver *Resolver,
	handlers *Handlers,
	deduper dedup.Deduper,
	retry RetryPolicy,
	conflictRetries int,
	metrics *monitor.MetricsCollector,
	tracer *monitor.Tracer,
) *Processor {
	if deduper == nil {
		deduper = dedup.Noop{}
	}
	if conflictRetries <= 0 {
		conflictRetries = 3
	}
	return &Processor{
		messages:        messages,
		resolver:        resolver,
		handlers:        handlers,
		dedup:           deduper,
		retry:           retry,
		conflictRetries: conflictRetries,
		metrics:         metrics,
		tracer:          tracer,
	}
}

// Ingest records a freshly delivered message and processes it. Duplicate
// delivery of an id is reported as OutcomeDuplicate, which callers treat
// as success so redelivery stays transparent to the transport.
func (p *Processor) Ingest(ctx context.Context, msg *model.Message) (Outcome, error) {
	if msg.Kind == "" {
		msg.Kind = protocol.PeekKind(msg.Payload)
	}
	if msg.Status == 0 {
		msg.Status = model.MessageStatusNew
	}

	seen, err := p.dedup.Seen(ctx, msg.ID)
	if err != nil {
		// Fail open: the message store stays the duplicate arbiter.
		log.WithError(err).WithField("message_id", msg.ID).Warn("Dedup cache check failed")
		seen = false
	}
	if seen {
		existing, err := p.messages.GetByID(ctx, msg.ID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			p.metrics.IncDedupHit()
			p.metrics.ObserveMessage(msg.Kind, string(OutcomeDuplicate))
			return OutcomeDuplicate, nil
		}
	}

	result, err := p.messages.Record(ctx, msg)
	if err != nil {
		return "", err
	}
	if result == repository.RecordDuplicate {
		p.metrics.ObserveMessage(msg.Kind, string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	return p.process(ctx, msg)
}

// Retry re-offers a stored WAITING (or operator-reset NEW) message
func (p *Processor) Retry(ctx context.Context, msg *model.Message) (Outcome, error) {
	return p.process(ctx, msg)
}

func (p *Processor) process(ctx context.Context, msg *model.Message) (Outcome, error) {
	ctx, span := p.tracer.StartSpan(ctx, "engine.process",
		attribute.String("message.id", msg.ID),
		attribute.String("message.kind", msg.Kind),
	)
	defer span.End()

	if msg.IsExpired() {
		if err := p.messages.MarkFailed(ctx, msg.ID, "expired"); err != nil {
			return "", err
		}
		p.metrics.ObserveMessage(msg.Kind, string(OutcomeFailed))
		return OutcomeFailed, nil
	}

	action, err := protocol.Decode(msg.Payload)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			return p.fail(ctx, msg, de.Reason)
		}
		return "", err
	}

	// Chat and unknown kinds pass through without entity effect.
	if !action.Kind.IsEntityAction() {
		return p.succeed(ctx, msg)
	}

	applyErr := p.applyWithConflictRetry(ctx, msg, action)

	switch {
	case applyErr == nil:
		return p.succeed(ctx, msg)

	case IsProtocolViolation(applyErr):
		log.WithFields(map[string]interface{}{
			"message_id": msg.ID,
			"kind":       msg.Kind,
			"reason":     applyErr.Error(),
		}).Warn("Protocol violation")
		return p.fail(ctx, msg, applyErr.Error())

	case IsMissingDependency(applyErr) || IsStorageConflict(applyErr):
		return p.park(ctx, msg, applyErr.Error())

	default:
		// Infrastructure failure: leave the message in its current status
		// for the next sweep.
		return "", applyErr
	}
}

// applyWithConflictRetry runs resolve+apply, retrying lost write races
// immediately within the same tick up to a small fixed bound.
func (p *Processor) applyWithConflictRetry(ctx context.Context, msg *model.Message, action *protocol.Action) error {
	var err error
	for attempt := 0; attempt <= p.conflictRetries; attempt++ {
		if err = p.resolver.Check(ctx, action); err == nil {
			start := time.Now()
			err = p.handlers.Apply(ctx, msg, action)
			p.metrics.ObserveHandler(string(action.Kind), time.Since(start))
		}
		if err == nil || !IsStorageConflict(err) {
			return err
		}
		p.metrics.IncConflict()
	}
	return err
}

func (p *Processor) succeed(ctx context.Context, msg *model.Message) (Outcome, error) {
	if err := p.messages.MarkProcessed(ctx, msg.ID); err != nil {
		return "", err
	}
	if err := p.dedup.Add(ctx, msg.ID); err != nil {
		log.WithError(err).WithField("message_id", msg.ID).Warn("Dedup cache add failed")
	}
	p.metrics.ObserveMessage(msg.Kind, string(OutcomeProcessed))
	log.WithFields(map[string]interface{}{
		"message_id": msg.ID,
		"kind":       msg.Kind,
	}).Debug("Message processed")
	return OutcomeProcessed, nil
}

func (p *Processor) fail(ctx context.Context, msg *model.Message, reason string) (Outcome, error) {
	if err := p.messages.MarkFailed(ctx, msg.ID, reason); err != nil {
		return "", err
	}
	p.metrics.ObserveMessage(msg.Kind, string(OutcomeFailed))
	return OutcomeFailed, nil
}

// park parks the message WAITING with its next retry time, or fails it
// once the retry budget is exhausted.
func (p *Processor) park(ctx context.Context, msg *model.Message, reason string) (Outcome, error) {
	attempts := msg.Attempts + 1
	// MaxAttempts counts scheduled retries, so the budget runs out only
	// once that many parks have already happened.
	if attempts > p.retry.MaxAttempts {
		return p.fail(ctx, msg, "retry budget exhausted: "+reason)
	}

	next := time.Now().Add(p.retry.Backoff(attempts))
	// Backoff never schedules past the transport expiration; the expiry
	// sweep turns the message FAILED once that passes.
	if next.After(msg.ExpiresAt) {
		next = msg.ExpiresAt
	}

	if err := p.messages.MarkWaiting(ctx, msg.ID, reason, attempts, next); err != nil {
		return "", err
	}
	msg.Attempts = attempts
	p.metrics.ObserveMessage(msg.Kind, string(OutcomeDeferred))
	log.WithFields(map[string]interface{}{
		"message_id": msg.ID,
		"kind":       msg.Kind,
		"attempts":   attempts,
		"reason":     reason,
	}).Debug("Message deferred")
	return OutcomeDeferred, nil
}
