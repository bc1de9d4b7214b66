package protocol

// Version is the protocol version this node speaks.
const Version = 1

// Kind action kind carried in a message envelope
type Kind string

// Action kind const
const (
	KindListingAdd Kind = "LISTING_ADD"
	KindBid        Kind = "BID"
	KindAccept     Kind = "ACCEPT"
	KindReject     Kind = "REJECT"
	KindCancel     Kind = "CANCEL"
	KindLock       Kind = "LOCK"
	KindComplete   Kind = "COMPLETE"
	KindRelease    Kind = "RELEASE"
	KindRefund     Kind = "REFUND"
	KindChat       Kind = "CHAT"

	// KindUnsupported is assigned to structurally valid envelopes whose
	// kind this node does not know. They pass through as no-ops so newer
	// protocol revisions do not break older nodes.
	KindUnsupported Kind = "UNSUPPORTED"
)

// IsResolution check kind resolves a root BID
func (k Kind) IsResolution() bool {
	return k == KindAccept || k == KindReject || k == KindCancel
}

// IsEscrow check kind is an escrow action
func (k Kind) IsEscrow() bool {
	return k == KindLock || k == KindComplete || k == KindRelease || k == KindRefund
}

// IsEntityAction check kind mutates commerce entities
func (k Kind) IsEntityAction() bool {
	switch k {
	case KindListingAdd, KindBid, KindAccept, KindReject, KindCancel,
		KindLock, KindComplete, KindRelease, KindRefund:
		return true
	}
	return false
}

// Action decoded protocol action
//
// Exactly one of the body pointers is set, matching Kind. CHAT and
// UNSUPPORTED actions carry no commerce semantics.
type Action struct {
	Version int
	Kind    Kind

	ListingAdd *ListingAdd
	Bid        *Bid
	Resolution *Resolution
	Escrow     *Escrow
	Chat       *Chat
}

// ListingAdd announces a listing; the hash is the content address of the
// listing payload.
type ListingAdd struct {
	Hash    string `json:"hash"`
	Seller  string `json:"seller"`
	Market  string `json:"market"`
	Listing []byte `json:"listing"`
}

// Bid opens a bid chain for a listing.
type Bid struct {
	ListingHash string `json:"listing_hash"`
	Bidder      string `json:"bidder"`
}

// Resolution resolves a root BID (ACCEPT, REJECT or CANCEL).
type Resolution struct {
	ListingHash string `json:"listing_hash"`
	Bidder      string `json:"bidder"`
}

// Escrow drives the locked-funds phase (LOCK, COMPLETE, RELEASE, REFUND).
type Escrow struct {
	ListingHash string `json:"listing_hash"`
	Bidder      string `json:"bidder"`
	TxID        string `json:"txid,omitempty"`
	Memo        string `json:"memo,omitempty"`
}

// Chat free-form text with no entity effect.
type Chat struct {
	Text string `json:"text"`
}

// ListingHash returns the listing the action refers to, empty for actions
// without a listing reference.
func (a *Action) ListingHash() string {
	switch {
	case a.ListingAdd != nil:
		return a.ListingAdd.Hash
	case a.Bid != nil:
		return a.Bid.ListingHash
	case a.Resolution != nil:
		return a.Resolution.ListingHash
	case a.Escrow != nil:
		return a.Escrow.ListingHash
	}
	return ""
}

// Bidder returns the bidder address the action refers to, empty for
// actions without one.
func (a *Action) Bidder() string {
	switch {
	case a.Bid != nil:
		return a.Bid.Bidder
	case a.Resolution != nil:
		return a.Resolution.Bidder
	case a.Escrow != nil:
		return a.Escrow.Bidder
	}
	return ""
}
