package protocol

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// envelope wire framing for action payloads
type envelope struct {
	Version int             `json:"version"`
	Kind    string          `json:"kind"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// DecodeError malformed payload error; fatal, the message is never retried
type DecodeError struct {
	Reason string
	Err    error
}

// Error implement error interface
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode error: %s", e.Reason)
}

// Unwrap implement errors.Unwrap interface
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErrf(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// HashListing derives the content address of a listing payload.
func HashListing(payload []byte) string {
	sum := sha3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ValidHash reports whether s is a syntactically valid content address.
func ValidHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Decode parses a transport payload into a typed Action.
//
// Signature verification is the transport's responsibility; Decode only
// checks structural integrity. Unknown kinds are not errors: they produce
// a KindUnsupported action so protocol evolution does not break this node.
func Decode(payload []byte) (*Action, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	if env.Version <= 0 {
		return nil, decodeErrf("missing or invalid protocol version %d", env.Version)
	}
	if env.Kind == "" {
		return nil, decodeErrf("missing kind discriminator")
	}

	action := &Action{Version: env.Version, Kind: Kind(env.Kind)}

	switch action.Kind {
	case KindListingAdd:
		body := new(ListingAdd)
		if err := unmarshalBody(env.Body, body); err != nil {
			return nil, err
		}
		if !ValidHash(body.Hash) {
			return nil, decodeErrf("listing_add: invalid hash %q", body.Hash)
		}
		if body.Seller == "" {
			return nil, decodeErrf("listing_add: missing seller")
		}
		if body.Market == "" {
			return nil, decodeErrf("listing_add: missing market")
		}
		if len(body.Listing) == 0 {
			return nil, decodeErrf("listing_add: missing listing payload")
		}
		if HashListing(body.Listing) != body.Hash {
			return nil, decodeErrf("listing_add: hash does not match listing payload")
		}
		action.ListingAdd = body

	case KindBid:
		body := new(Bid)
		if err := unmarshalBody(env.Body, body); err != nil {
			return nil, err
		}
		if !ValidHash(body.ListingHash) {
			return nil, decodeErrf("bid: invalid listing hash %q", body.ListingHash)
		}
		if body.Bidder == "" {
			return nil, decodeErrf("bid: missing bidder")
		}
		action.Bid = body

	case KindAccept, KindReject, KindCancel:
		body := new(Resolution)
		if err := unmarshalBody(env.Body, body); err != nil {
			return nil, err
		}
		if !ValidHash(body.ListingHash) {
			return nil, decodeErrf("%s: invalid listing hash %q", action.Kind, body.ListingHash)
		}
		if body.Bidder == "" {
			return nil, decodeErrf("%s: missing bidder", action.Kind)
		}
		action.Resolution = body

	case KindLock, KindComplete, KindRelease, KindRefund:
		body := new(Escrow)
		if err := unmarshalBody(env.Body, body); err != nil {
			return nil, err
		}
		if !ValidHash(body.ListingHash) {
			return nil, decodeErrf("%s: invalid listing hash %q", action.Kind, body.ListingHash)
		}
		if body.Bidder == "" {
			return nil, decodeErrf("%s: missing bidder", action.Kind)
		}
		action.Escrow = body

	case KindChat:
		body := new(Chat)
		if err := unmarshalBody(env.Body, body); err != nil {
			return nil, err
		}
		action.Chat = body

	default:
		action.Kind = KindUnsupported
	}

	return action, nil
}

// Encode is the codec inverse used by the command layer before submitting
// an outbound action to the transport.
func Encode(action *Action) ([]byte, error) {
	if action == nil {
		return nil, fmt.Errorf("nil action")
	}
	version := action.Version
	if version == 0 {
		version = Version
	}

	var body interface{}
	switch action.Kind {
	case KindListingAdd:
		body = action.ListingAdd
	case KindBid:
		body = action.Bid
	case KindAccept, KindReject, KindCancel:
		body = action.Resolution
	case KindLock, KindComplete, KindRelease, KindRefund:
		body = action.Escrow
	case KindChat:
		body = action.Chat
	default:
		return nil, fmt.Errorf("cannot encode kind %q", action.Kind)
	}
	if body == nil || isNilBody(body) {
		return nil, fmt.Errorf("kind %q has no body", action.Kind)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Version: version, Kind: string(action.Kind), Body: raw})
}

// PartitionKey extracts the scheduling partition key from a raw payload
// without full validation. Actions on the same listing must share a key so
// they process in causal order; anything else partitions by message id at
// the call site.
func PartitionKey(payload []byte) string {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	var ref struct {
		Hash        string `json:"hash"`
		ListingHash string `json:"listing_hash"`
	}
	if err := json.Unmarshal(env.Body, &ref); err != nil {
		return ""
	}
	if ref.ListingHash != "" {
		return ref.ListingHash
	}
	return ref.Hash
}

// PeekKind reads just the kind discriminator from a raw payload. Returns
// an empty string for payloads that are not even a JSON envelope.
func PeekKind(payload []byte) string {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	return env.Kind
}

func unmarshalBody(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return decodeErrf("missing body")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{Reason: "malformed body", Err: err}
	}
	return nil
}

func isNilBody(body interface{}) bool {
	switch v := body.(type) {
	case *ListingAdd:
		return v == nil
	case *Bid:
		return v == nil
	case *Resolution:
		return v == nil
	case *Escrow:
		return v == nil
	case *Chat:
		return v == nil
	}
	return false
}
