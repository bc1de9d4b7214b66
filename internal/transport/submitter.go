package transport

import (
	"context"
	"fmt"

	"peermarket/internal/monitor"
	"peermarket/pkg/breaker"
	"peermarket/pkg/snowflake"
)

// BreakerSubmitter wraps a Submitter with a circuit breaker so a degraded
// network layer sheds outbound load fast instead of piling up timeouts.
type BreakerSubmitter struct {
	inner   Submitter
	breaker *breaker.CircuitBreaker
	metrics *monitor.MetricsCollector
}

// NewBreakerSubmitter wraps a submitter with a circuit breaker
func NewBreakerSubmitter(inner Submitter, metrics *monitor.MetricsCollector) *BreakerSubmitter {
	return &BreakerSubmitter{
		inner:   inner,
		breaker: breaker.NewCircuitBreaker("transport.submit", breaker.Config{}),
		metrics: metrics,
	}
}

// Submit sends through the breaker
func (s *BreakerSubmitter) Submit(ctx context.Context, recipient string, payload []byte) (*SubmitResult, error) {
	var result *SubmitResult
	err := s.breaker.Execute(ctx, func() error {
		var innerErr error
		result, innerErr = s.inner.Submit(ctx, recipient, payload)
		return innerErr
	})
	if err != nil {
		if breaker.IsOpenError(err) {
			s.metrics.ObserveSubmit("rejected")
		} else {
			s.metrics.ObserveSubmit("error")
		}
		return nil, err
	}
	s.metrics.ObserveSubmit("ok")
	return result, nil
}

// LoopbackSubmitter delivers outbound payloads straight back into the
// local inbox. It functions as the offline/self-addressed path and keeps
// the engine testable without a running network layer.
type LoopbackSubmitter struct {
	inbox Inbox
	node  string
	idGen *snowflake.IDGenerator
}

// NewLoopbackSubmitter creates a submitter that loops into the local inbox
func NewLoopbackSubmitter(inbox Inbox, node string, idGen *snowflake.IDGenerator) *LoopbackSubmitter {
	return &LoopbackSubmitter{inbox: inbox, node: node, idGen: idGen}
}

// Submit assigns an outbound id and hands the payload to the inbox
func (s *LoopbackSubmitter) Submit(ctx context.Context, recipient string, payload []byte) (*SubmitResult, error) {
	id := fmt.Sprintf("out-%d", s.idGen.NextID())
	d := Delivery{
		MessageID: id,
		Sender:    s.node,
		Recipient: recipient,
		Payload:   payload,
	}
	if err := s.inbox.Accept(ctx, d); err != nil {
		return nil, err
	}
	return &SubmitResult{MessageID: id}, nil
}
