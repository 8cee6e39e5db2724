package model

import (
	"net/url"
	"strings"
	"time"
)

// ItemType says whether an item is given away or swapped.
type ItemType string

// Item types.
const (
	ItemTypeDonate ItemType = "donate"
	ItemTypeBarter ItemType = "barter"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	return t == ItemTypeDonate || t == ItemTypeBarter
}

// ItemStatus is the availability state of an item.
type ItemStatus string

// Item statuses. Pending is reserved for a hand-off phase that no operation
// currently enters.
const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusExchanged ItemStatus = "exchanged"
	ItemStatusRemoved   ItemStatus = "removed"
)

var itemNext = map[ItemStatus]map[ItemStatus]bool{
	ItemStatusAvailable: {ItemStatusExchanged: true, ItemStatusRemoved: true},
	ItemStatusPending:   {},
	ItemStatusExchanged: {},
	ItemStatusRemoved:   {},
}

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	_, ok := itemNext[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusExchanged || s == ItemStatusRemoved
}

// CanTransitionItem reports whether an item may move from one status to another.
func CanTransitionItem(from, to ItemStatus) bool {
	return itemNext[from][to]
}

// Item is a listed good offered for donation or barter.
type Item struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Type        ItemType   `json:"type"`
	Status      ItemStatus `json:"status"`
	Images      []string   `json:"images"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ItemInput carries the owner-settable fields of an item.
type ItemInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Type        ItemType `json:"type"`
	Images      []string `json:"images"`
}

// Normalize trims surrounding whitespace from the text fields.
func (in *ItemInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Type = ItemType(strings.TrimSpace(string(in.Type)))
}

// Validate checks that every required field is present and well formed.
func (in ItemInput) Validate() error {
	var missing []string
	if in.Title == "" {
		missing = append(missing, "title")
	}
	if in.Description == "" {
		missing = append(missing, "description")
	}
	if in.Category == "" {
		missing = append(missing, "category")
	}
	if in.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !in.Type.Valid() {
		return Validationf("invalid type %q: must be %q or %q", in.Type, ItemTypeDonate, ItemTypeBarter)
	}
	for _, raw := range in.Images {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Validationf("invalid image url %q", raw)
		}
	}
	return nil
}

// ItemFilter narrows an item search. Empty fields match everything.
type ItemFilter struct {
	Keyword  string
	Category string
	Type     ItemType
	Status   ItemStatus
	OwnerID  string
}

// Validate rejects unknown enum values in the filter.
func (f ItemFilter) Validate() error {
	if f.Type != "" && !f.Type.Valid() {
		return Validationf("invalid type filter %q", f.Type)
	}
	if f.Status != "" && !f.Status.Valid() {
		return Validationf("invalid status filter %q", f.Status)
	}
	return nil
}
