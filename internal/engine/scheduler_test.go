package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peermarket/internal/config"
	"peermarket/internal/model"
	"peermarket/internal/protocol"
	"peermarket/pkg/queue"
)

func newTestScheduler(t *testing.T, fx *engineFixture, cfg config.EngineConfig) (*Scheduler, *queue.MemoryQueue) {
	t.Helper()
	q := queue.NewMemoryQueue(nil)
	s := NewScheduler(q, newTestProcessor(fx), fx.messages, cfg, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		s.Stop()
		q.Close()
	})
	return s, q
}

func TestScheduler_DeliverProcesses(t *testing.T) {
	fx := newEngineFixture()
	s, _ := newTestScheduler(t, fx, config.EngineConfig{
		Workers:       2,
		SweepInterval: time.Hour,
	})

	m := encodedMsg(t, "m1", listingAddAction([]byte(`{"title":"radio"}`)))
	require.NoError(t, s.Deliver(context.Background(), m))

	assert.Eventually(t, func() bool {
		return fx.messages.status("m1") == model.MessageStatusProcessed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_SameListingKeepsArrivalOrder(t *testing.T) {
	fx := newEngineFixture()
	s, _ := newTestScheduler(t, fx, config.EngineConfig{
		Workers:       8,
		SweepInterval: time.Hour,
	})
	ctx := context.Background()
	listing := []byte(`{"title":"radio"}`)
	hash := protocol.HashListing(listing)

	// The BID lands on the same partition as its listing, so it is never
	// processed ahead of it even with many workers.
	require.NoError(t, s.Deliver(ctx, encodedMsg(t, "m1", listingAddAction(listing))))
	require.NoError(t, s.Deliver(ctx, encodedMsg(t, "m2", &protocol.Action{
		Kind: protocol.KindBid,
		Bid:  &protocol.Bid{ListingHash: hash, Bidder: "buyer1"},
	})))

	assert.Eventually(t, func() bool {
		return fx.messages.status("m2") == model.MessageStatusProcessed
	}, 2*time.Second, 10*time.Millisecond)

	item, err := fx.orders.GetItemByListingAndBidder(ctx, hash, "buyer1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, model.ItemStatusBidded, item.Status)
}

func TestScheduler_SweepReoffersDueWaiting(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	listing := []byte(`{"title":"radio"}`)
	hash := protocol.HashListing(listing)
	seedListing(t, fx, hash)

	// A BID parked before its listing arrived, now due for retry.
	m := encodedMsg(t, "m1", &protocol.Action{
		Kind: protocol.KindBid,
		Bid:  &protocol.Bid{ListingHash: hash, Bidder: "buyer1"},
	})
	m.Status = model.MessageStatusWaiting
	m.Attempts = 1
	past := time.Now().Add(-time.Second)
	m.NextRetryAt = &past
	_, err := fx.messages.Record(ctx, m)
	require.NoError(t, err)

	newTestScheduler(t, fx, config.EngineConfig{
		Workers:       2,
		SweepInterval: 20 * time.Millisecond,
	})

	assert.Eventually(t, func() bool {
		return fx.messages.status("m1") == model.MessageStatusProcessed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_SweepFailsExpiredWaiting(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()

	m := encodedMsg(t, "m1", &protocol.Action{
		Kind: protocol.KindBid,
		Bid:  &protocol.Bid{ListingHash: "unknown", Bidder: "buyer1"},
	})
	m.Status = model.MessageStatusWaiting
	m.ExpiresAt = time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	m.NextRetryAt = &future
	_, err := fx.messages.Record(ctx, m)
	require.NoError(t, err)

	newTestScheduler(t, fx, config.EngineConfig{
		Workers:       1,
		SweepInterval: 20 * time.Millisecond,
	})

	assert.Eventually(t, func() bool {
		return fx.messages.status("m1") == model.MessageStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	stored, _ := fx.messages.GetByID(ctx, "m1")
	require.NotNil(t, stored.FailReason)
	assert.Equal(t, "expired", *stored.FailReason)
}

func TestScheduler_OfferBypassesDuplicateCheck(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	s, _ := newTestScheduler(t, fx, config.EngineConfig{
		Workers:       2,
		SweepInterval: time.Hour,
	})

	// An operator-reset message is already recorded; Offer must process it
	// instead of reporting a duplicate.
	m := encodedMsg(t, "m1", listingAddAction([]byte(`{"title":"radio"}`)))
	_, err := fx.messages.Record(ctx, m)
	require.NoError(t, err)

	s.Offer(m)

	assert.Eventually(t, func() bool {
		return fx.messages.status("m1") == model.MessageStatusProcessed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_Stats(t *testing.T) {
	fx := newEngineFixture()
	s, _ := newTestScheduler(t, fx, config.EngineConfig{
		Workers:       1,
		SweepInterval: time.Hour,
	})

	require.NoError(t, s.Deliver(context.Background(), encodedMsg(t, "m1", listingAddAction([]byte(`{"title":"radio"}`)))))

	assert.Eventually(t, func() bool {
		for _, st := range s.Stats() {
			if st.Topic == TopicInbound && st.MessagesRecv >= 1 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	fx := newEngineFixture()
	s, _ := newTestScheduler(t, fx, config.EngineConfig{Workers: 1, SweepInterval: time.Hour})
	s.Stop()
	s.Stop()
}

func TestScheduler_OfferAfterStopIsNoOp(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	s, _ := newTestScheduler(t, fx, config.EngineConfig{Workers: 2, SweepInterval: time.Hour})

	m := encodedMsg(t, "m1", listingAddAction([]byte(`{"title":"radio"}`)))
	_, err := fx.messages.Record(ctx, m)
	require.NoError(t, err)

	s.Stop()

	// A late requeue must not reach a closed partition channel.
	s.Offer(m)

	assert.Equal(t, model.MessageStatusNew, fx.messages.status("m1"))
}

func TestScheduler_StopUnderLoad(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	listing := []byte(`{"title":"radio"}`)
	hash := protocol.HashListing(listing)
	seedListing(t, fx, hash)

	// Keep the sweep busy re-offering a WAITING message while Stop races
	// the intake consumer and the sweep loop.
	m := encodedMsg(t, "w1", &protocol.Action{
		Kind: protocol.KindBid,
		Bid:  &protocol.Bid{ListingHash: "0000000000000000000000000000000000000000000000000000000000000000", Bidder: "buyer1"},
	})
	m.Status = model.MessageStatusWaiting
	m.Attempts = 1
	past := time.Now().Add(-time.Second)
	m.NextRetryAt = &past
	_, err := fx.messages.Record(ctx, m)
	require.NoError(t, err)

	s, _ := newTestScheduler(t, fx, config.EngineConfig{
		Workers:       4,
		SweepInterval: time.Millisecond,
	})

	batch := make([]*model.Message, 50)
	for i := range batch {
		batch[i] = encodedMsg(t, fmt.Sprintf("load-%d", i), listingAddAction(listing))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, lm := range batch {
			_ = s.Deliver(ctx, lm)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	s.Stop()
	<-done
}
