package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"peermarket/internal/config"
	"peermarket/internal/model"
	"peermarket/internal/monitor"
	"peermarket/internal/protocol"
	"peermarket/internal/repository"
	"peermarket/pkg/log"
	"peermarket/pkg/queue"
)

// TopicInbound is the intake topic for messages delivered by the transport
const TopicInbound = "market.inbound"

// task is one unit of work routed to a partition worker. stored tasks were
// already recorded and are being re-offered by the sweep or an operator.
type task struct {
	msg    *model.Message
	stored bool
}

// Scheduler routes messages onto partitioned workers so that actions
// against the same listing always process in arrival order, and
// periodically re-offers WAITING messages whose retry time has come.
type Scheduler struct {
	queue     queue.Queue
	processor *Processor
	messages  repository.MessageRepository
	cfg       config.EngineConfig
	metrics   *monitor.MetricsCollector

	partitions []chan task
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	loopWg     sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once

	mu      sync.RWMutex
	stopped bool
}

// NewScheduler creates a partitioned scheduler
func NewScheduler(
	q queue.Queue,
	processor *Processor,
	messages repository.MessageRepository,
	cfg config.EngineConfig,
	metrics *monitor.MetricsCollector,
) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueBuffer <= 0 {
		cfg.QueueBuffer = 256
	}
	return &Scheduler{
		queue:     q,
		processor: processor,
		messages:  messages,
		cfg:       cfg,
		metrics:   metrics,
	}
}

// Start spawns the partition workers, subscribes to the intake topic and
// starts the sweep loops. It returns once everything is running.
func (s *Scheduler) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel

		s.partitions = make([]chan task, s.cfg.Workers)
		for i := 0; i < s.cfg.Workers; i++ {
			s.partitions[i] = make(chan task, s.cfg.QueueBuffer)
			s.wg.Add(1)
			go s.worker(runCtx, i)
		}

		// Subscribe on the run context so Stop also terminates the
		// intake consumer, not only the loops.
		if subErr := s.queue.Subscribe(runCtx, TopicInbound, s.onDelivery); subErr != nil {
			err = fmt.Errorf("subscribe %s: %w", TopicInbound, subErr)
			cancel()
			return
		}

		s.loopWg.Add(1)
		go s.sweepLoop(runCtx)

		if s.cfg.Cleanup {
			s.loopWg.Add(1)
			go s.cleanupLoop(runCtx)
		}

		log.WithFields(map[string]interface{}{
			"workers":        s.cfg.Workers,
			"sweep_interval": s.cfg.SweepInterval.String(),
		}).Info("Scheduler started")
	})
	return err
}

// Stop shuts intake down before the workers: it stops the sweep loops,
// marks routing closed so no producer can reach a partition channel, then
// closes the channels and drains the workers.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.loopWg.Wait()

		// Senders inside route hold the read lock, so once the write
		// lock is ours the channels have no producer left.
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		for _, ch := range s.partitions {
			close(ch)
		}
		s.wg.Wait()
		log.Info("Scheduler stopped")
	})
}

// Deliver publishes a freshly received message onto the intake topic
func (s *Scheduler) Deliver(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.queue.Publish(ctx, TopicInbound, data)
}

// Offer routes an already-recorded message straight to its partition. Used
// by the retry sweep and by operator requeue.
func (s *Scheduler) Offer(msg *model.Message) {
	s.route(task{msg: msg, stored: true})
}

// onDelivery is the intake topic handler
func (s *Scheduler) onDelivery(ctx context.Context, topic string, data []byte) error {
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.WithError(err).Warn("Dropping undecodable delivery")
		return nil
	}
	if msg.ID == "" {
		log.Warn("Dropping delivery without message id")
		return nil
	}
	s.route(task{msg: &msg})
	return nil
}

// route picks the partition for a task. Messages referencing the same
// listing share a partition so their causal order is preserved; everything
// else spreads by message id.
func (s *Scheduler) route(t task) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		// Stored messages stay WAITING in the DB and are swept again
		// after restart; dropping here only skips one attempt.
		log.WithField("message_id", t.msg.ID).Debug("Routing skipped, scheduler stopping")
		return
	}

	key := protocol.PartitionKey(t.msg.Payload)
	if key == "" {
		key = t.msg.ID
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	idx := int(h.Sum32()) % len(s.partitions)
	if idx < 0 {
		idx += len(s.partitions)
	}
	s.partitions[idx] <- t
	s.metrics.SetPartitionDepth(strconv.Itoa(idx), len(s.partitions[idx]))
}

func (s *Scheduler) worker(ctx context.Context, idx int) {
	defer s.wg.Done()
	for t := range s.partitions[idx] {
		var err error
		if t.stored {
			_, err = s.processor.Retry(ctx, t.msg)
		} else {
			_, err = s.processor.Ingest(ctx, t.msg)
		}
		if err != nil {
			log.WithFields(map[string]interface{}{
				"message_id": t.msg.ID,
				"partition":  idx,
				"error":      err.Error(),
			}).Error("Message processing error")
		}
		s.metrics.SetPartitionDepth(strconv.Itoa(idx), len(s.partitions[idx]))
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.loopWg.Done()
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep fails messages past their expiration, then re-offers WAITING
// messages whose retry time has arrived.
func (s *Scheduler) sweep(ctx context.Context) {
	now := time.Now()

	expired, err := s.messages.FailExpired(ctx, now)
	if err != nil {
		log.WithError(err).Error("Expiry sweep failed")
	} else if expired > 0 {
		s.metrics.AddExpired(expired)
		log.WithField("count", expired).Info("Expired waiting messages failed")
	}

	batch := s.cfg.SweepBatch
	if batch <= 0 {
		batch = 100
	}
	pending, err := s.messages.PendingWaiting(ctx, now, batch)
	if err != nil {
		log.WithError(err).Error("Retry sweep query failed")
		return
	}
	for _, msg := range pending {
		s.Offer(msg)
	}
	s.metrics.ObserveSweep(len(pending))
	if len(pending) > 0 {
		log.WithField("count", len(pending)).Debug("Waiting messages re-offered")
	}
}

func (s *Scheduler) cleanupLoop(ctx context.Context) {
	defer s.loopWg.Done()
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := s.messages.PurgeProcessed(ctx, time.Now())
			if err != nil {
				log.WithError(err).Error("Retention purge failed")
				continue
			}
			if purged > 0 {
				s.metrics.AddPurged(purged)
				log.WithField("count", purged).Info("Processed messages purged")
			}
		}
	}
}

// Stats reports intake queue statistics
func (s *Scheduler) Stats() []queue.Stats {
	type statser interface {
		Stats() []queue.Stats
	}
	if q, ok := s.queue.(statser); ok {
		return q.Stats()
	}
	return nil
}
