package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"peermarket/internal/model"
	"peermarket/internal/repository"
)

// In-memory repository fakes. They mirror the gorm implementations closely
// enough for engine semantics: duplicate keys, optimistic versioning and
// status transitions all behave like the real store.

type fakeMessageRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{rows: make(map[string]*model.Message)}
}

func (f *fakeMessageRepo) Record(ctx context.Context, msg *model.Message) (repository.RecordResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[msg.ID]; ok {
		return repository.RecordDuplicate, nil
	}
	stored := *msg
	f.rows[msg.ID] = &stored
	return repository.RecordAccepted, nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

func (f *fakeMessageRepo) MarkProcessed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.rows[id]; ok {
		now := time.Now()
		msg.Status = model.MessageStatusProcessed
		msg.ProcessedAt = &now
		msg.NextRetryAt = nil
		msg.FailReason = nil
	}
	return nil
}

func (f *fakeMessageRepo) MarkWaiting(ctx context.Context, id string, reason string, attempts int, nextRetryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.rows[id]; ok {
		msg.Status = model.MessageStatusWaiting
		msg.Attempts = attempts
		msg.NextRetryAt = &nextRetryAt
		msg.FailReason = &reason
	}
	return nil
}

func (f *fakeMessageRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.rows[id]; ok {
		msg.Status = model.MessageStatusFailed
		msg.NextRetryAt = nil
		msg.FailReason = &reason
	}
	return nil
}

func (f *fakeMessageRepo) ResetToNew(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.rows[id]
	if !ok || msg.Status != model.MessageStatusFailed {
		return repository.ErrStorageConflict
	}
	msg.Status = model.MessageStatusNew
	msg.Attempts = 0
	msg.NextRetryAt = nil
	msg.FailReason = nil
	return nil
}

func (f *fakeMessageRepo) PendingWaiting(ctx context.Context, before time.Time, limit int) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*model.Message
	for _, msg := range f.rows {
		if msg.Status == model.MessageStatusWaiting && msg.NextRetryAt != nil && !msg.NextRetryAt.After(before) {
			copied := *msg
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ReceivedAt.Before(due[j].ReceivedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeMessageRepo) FailExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reason := "expired"
	var n int64
	for _, msg := range f.rows {
		if msg.Status == model.MessageStatusWaiting && msg.ExpiresAt.Before(now) {
			msg.Status = model.MessageStatusFailed
			msg.NextRetryAt = nil
			msg.FailReason = &reason
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageRepo) ListByStatus(ctx context.Context, status int8, page, pageSize int) ([]*model.Message, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Message
	for _, msg := range f.rows {
		if msg.Status == status {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeMessageRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, msg := range f.rows {
		counts[msg.StatusName()]++
	}
	return counts, nil
}

func (f *fakeMessageRepo) PurgeProcessed(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, msg := range f.rows {
		if msg.Status == model.MessageStatusProcessed && msg.RetentionDeadline().Before(now) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageRepo) status(id string) int8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.rows[id]; ok {
		return msg.Status
	}
	return 0
}

type fakeListingRepo struct {
	mu   sync.Mutex
	rows map[string]*model.ListingItem
}

func newFakeListingRepo() *fakeListingRepo {
	return &fakeListingRepo{rows: make(map[string]*model.ListingItem)}
}

func (f *fakeListingRepo) Create(ctx context.Context, listing *model.ListingItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[listing.Hash]; ok {
		return nil
	}
	listing.ID = uint64(len(f.rows) + 1)
	stored := *listing
	f.rows[listing.Hash] = &stored
	return nil
}

func (f *fakeListingRepo) GetByHash(ctx context.Context, hash string) (*model.ListingItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	listing, ok := f.rows[hash]
	if !ok {
		return nil, nil
	}
	copied := *listing
	return &copied, nil
}

func (f *fakeListingRepo) TouchLastSeen(ctx context.Context, hash string, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if listing, ok := f.rows[hash]; ok {
		listing.LastSeenAt = &seenAt
	}
	return nil
}

func (f *fakeListingRepo) LinkTemplate(ctx context.Context, hash string, templateID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if listing, ok := f.rows[hash]; ok {
		listing.TemplateID = &templateID
	}
	return nil
}

func (f *fakeListingRepo) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows)), nil
}

type fakeBidRepo struct {
	mu     sync.Mutex
	nextID uint64
	rows   []*model.Bid
}

func newFakeBidRepo() *fakeBidRepo {
	return &fakeBidRepo{}
}

func (f *fakeBidRepo) Create(ctx context.Context, bid *model.Bid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.rows {
		if b.MessageID == bid.MessageID {
			return repository.ErrDuplicateAction
		}
	}
	f.nextID++
	bid.ID = f.nextID
	stored := *bid
	f.rows = append(f.rows, &stored)
	return nil
}

func (f *fakeBidRepo) GetByMessageID(ctx context.Context, messageID string) (*model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.rows {
		if b.MessageID == messageID {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeBidRepo) GetRootBid(ctx context.Context, listingHash, bidder string) (*model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.rows {
		if b.ListingHash == listingHash && b.Bidder == bidder && b.Kind == model.BidKindBid {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeBidRepo) GetResolution(ctx context.Context, rootBidID uint64) (*model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.rows {
		if b.ParentBidID != nil && *b.ParentBidID == rootBidID {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeBidRepo) ListChain(ctx context.Context, listingHash, bidder string) ([]*model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var chain []*model.Bid
	for _, b := range f.rows {
		if b.ListingHash == listingHash && b.Bidder == bidder {
			copied := *b
			chain = append(chain, &copied)
		}
	}
	return chain, nil
}

type fakeOrderRepo struct {
	mu         sync.Mutex
	nextID     uint64
	nextItemID uint64
	orders     map[uint64]*model.Order
	items      map[uint64]*model.OrderItem

	// failUpdates forces the next N UpdateItem calls to lose the version race
	failUpdates int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: make(map[uint64]*model.Order),
		items:  make(map[uint64]*model.OrderItem),
	}
}

func (f *fakeOrderRepo) CreateWithItem(ctx context.Context, order *model.Order, item *model.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.Hash == order.Hash {
			return repository.ErrStorageConflict
		}
	}
	f.nextID++
	order.ID = f.nextID
	storedOrder := *order
	f.orders[order.ID] = &storedOrder

	f.nextItemID++
	item.ID = f.nextItemID
	item.OrderID = order.ID
	storedItem := *item
	storedItem.History = append(model.ActionHistory{}, item.History...)
	f.items[item.ID] = &storedItem
	return nil
}

func (f *fakeOrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	copied.Items = nil
	for _, item := range f.items {
		if item.OrderID == id {
			copied.Items = append(copied.Items, *item)
		}
	}
	return &copied, nil
}

func (f *fakeOrderRepo) GetByHash(ctx context.Context, hash string) (*model.Order, error) {
	f.mu.Lock()
	var id uint64
	found := false
	for _, o := range f.orders {
		if o.Hash == hash {
			id = o.ID
			found = true
			break
		}
	}
	f.mu.Unlock()
	if !found {
		return nil, nil
	}
	return f.GetByID(ctx, id)
}

func (f *fakeOrderRepo) GetItemByListingAndBidder(ctx context.Context, listingHash, bidder string) (*model.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ListingHash == listingHash && item.Bidder == bidder {
			copied := *item
			copied.History = append(model.ActionHistory{}, item.History...)
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeOrderRepo) UpdateItem(ctx context.Context, item *model.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdates > 0 {
		f.failUpdates--
		return repository.ErrStorageConflict
	}
	stored, ok := f.items[item.ID]
	if !ok || stored.Version != item.Version {
		return repository.ErrStorageConflict
	}
	stored.Status = item.Status
	stored.History = append(model.ActionHistory{}, item.History...)
	stored.Version++
	item.Version++
	return nil
}

func (f *fakeOrderRepo) UpdateStatus(ctx context.Context, orderID uint64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[orderID]; ok {
		order.Status = status
	}
	return nil
}

func (f *fakeOrderRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, o := range f.orders {
		counts[o.Status]++
	}
	return counts, nil
}

// seqIDGen deterministic id generator for tests
type seqIDGen struct {
	mu   sync.Mutex
	next int64
}

func (g *seqIDGen) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return g.next
}

// engineFixture wires the resolver and handlers over the fakes
type engineFixture struct {
	messages *fakeMessageRepo
	listings *fakeListingRepo
	bids     *fakeBidRepo
	orders   *fakeOrderRepo
	resolver *Resolver
	handlers *Handlers
}

func newEngineFixture() *engineFixture {
	messages := newFakeMessageRepo()
	listings := newFakeListingRepo()
	bids := newFakeBidRepo()
	orders := newFakeOrderRepo()
	return &engineFixture{
		messages: messages,
		listings: listings,
		bids:     bids,
		orders:   orders,
		resolver: NewResolver(listings, bids, orders),
		handlers: NewHandlers(listings, bids, orders, nil, &seqIDGen{}),
	}
}
