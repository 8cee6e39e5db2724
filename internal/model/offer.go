package model

import "time"

// OfferStatus is the negotiation state of an offer.
type OfferStatus string

// Offer statuses. Pending is the only non-terminal state.
const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
	OfferStatusWithdrawn OfferStatus = "withdrawn"
)

var offerNext = map[OfferStatus]map[OfferStatus]bool{
	OfferStatusPending:   {OfferStatusAccepted: true, OfferStatusRejected: true, OfferStatusWithdrawn: true},
	OfferStatusAccepted:  {},
	OfferStatusRejected:  {},
	OfferStatusWithdrawn: {},
}

// Valid reports whether s is a known offer status.
func (s OfferStatus) Valid() bool {
	_, ok := offerNext[s]
	return ok
}

// Terminal reports whether s is a final state.
func (s OfferStatus) Terminal() bool {
	return s != OfferStatusPending
}

// CanTransitionOffer reports whether an offer may move from one status to another.
func CanTransitionOffer(from, to OfferStatus) bool {
	return offerNext[from][to]
}

// ParseOfferStatus converts a client-supplied string into an OfferStatus.
func ParseOfferStatus(s string) (OfferStatus, error) {
	st := OfferStatus(s)
	if !st.Valid() {
		return "", Validationf("invalid status %q", s)
	}
	return st, nil
}

// Offer is a proposal by one user to receive an item, optionally in exchange
// for one of their own items.
type Offer struct {
	ID          string      `json:"id"`
	ItemID      string      `json:"item"`
	OfferedBy   string      `json:"offeredBy"`
	OfferItemID string      `json:"offerItem,omitempty"`
	Status      OfferStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	SettledAt   *time.Time  `json:"settledAt,omitempty"`
}

// OfferInput is the request to open a negotiation on an item.
type OfferInput struct {
	ItemID      string `json:"itemId"`
	OfferedBy   string `json:"offeredById"`
	OfferItemID string `json:"offerItemId,omitempty"`
}

// Validate checks the shape of the input; ownership and state are checked
// against storage by the coordinator.
func (in OfferInput) Validate() error {
	if in.ItemID == "" {
		return Validationf("itemId is required")
	}
	if in.OfferedBy == "" {
		return Validationf("offeredById is required")
	}
	if in.OfferItemID != "" && in.OfferItemID == in.ItemID {
		return Validationf("an item cannot be offered in exchange for itself")
	}
	return nil
}
