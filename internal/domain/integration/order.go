package integration

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// OrderStatusCompleted is assumed when the vendor page shows no status badge
const OrderStatusCompleted = "completed"

// Order is a canonical purchase record from the storefront vendor.
type Order struct {
	OrderID        string          `json:"order_id"`
	ItemName       string          `json:"item_name"`
	Location       string          `json:"location,omitempty"`
	DateRangeText  string          `json:"date_range_text,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	BillingName    string          `json:"billing_name"`
	BillingAddress string          `json:"billing_address,omitempty"`
	Status         string          `json:"status"`
	OrderDate      *time.Time      `json:"order_date,omitempty"`
	// MatchedProfileID is derived by MatchOrdersToProfiles and may be corrected by the user
	MatchedProfileID *string `json:"matched_profile_id"`
	// URL is the order detail page the record was scraped from
	URL string `json:"url,omitempty"`
}

// OrderImport is the result of one order import. Errors holds per-order
// failures; Orders still carries every order that parsed.
type OrderImport struct {
	Orders []Order     `json:"orders"`
	Errors []ItemError `json:"errors"`
	// Discovered is the number of distinct order links found on the list page
	Discovered int `json:"discovered"`
}

// Partial reports whether some orders failed to import
func (r *OrderImport) Partial() bool {
	return r != nil && len(r.Errors) > 0
}

// Session is one item in a facility's public catalog.
type Session struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Location string          `json:"location,omitempty"`
	Dates    string          `json:"dates,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency,omitempty"`
	Category string          `json:"category,omitempty"`
	URL      string          `json:"url,omitempty"`
}

// NeedsDetail reports whether the listing lacked location or date data
func (s *Session) NeedsDetail() bool {
	return s.Location == "" || s.Dates == ""
}

// ---------------------------------------------------------------------------
// Order-to-profile matching
// ---------------------------------------------------------------------------

// MatchOrdersToProfiles assigns MatchedProfileID on each order by comparing the
// lowercased billing name against the lowercased roster display names.
//
// Two passes run in roster order and the first match wins:
//  1. the display name is a contiguous substring of the billing name
//  2. every word of the display name appears in the billing name, in order
//     ("Jane A Smith" matches "Jane Smith")
//
// The heuristic cannot separate siblings whose names share a prefix
// ("Jon Doe" also matches a billing name of "Jonathan Doe").
// Billing names are payer-controlled free text, so a match is a suggestion only.
// Orders with an existing MatchedProfileID are re-evaluated.
func MatchOrdersToProfiles(orders []Order, roster []RosterMember) []Order {
	caser := cases.Lower(language.Und)
	names := make([]string, len(roster))
	for i, m := range roster {
		names[i] = strings.Join(strings.Fields(caser.String(m.DisplayName)), " ")
	}

	out := make([]Order, len(orders))
	for i, o := range orders {
		o.MatchedProfileID = nil
		billing := strings.Join(strings.Fields(caser.String(o.BillingName)), " ")
		if idx := matchRoster(billing, names); idx >= 0 {
			id := roster[idx].ID
			o.MatchedProfileID = &id
		}
		out[i] = o
	}
	return out
}

func matchRoster(billing string, names []string) int {
	if billing == "" {
		return -1
	}
	for i, name := range names {
		if name != "" && strings.Contains(billing, name) {
			return i
		}
	}
	for i, name := range names {
		if name != "" && containsWordsInOrder(billing, strings.Fields(name)) {
			return i
		}
	}
	return -1
}

func containsWordsInOrder(s string, words []string) bool {
	rest := s
	for _, w := range words {
		idx := strings.Index(rest, w)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(w):]
	}
	return true
}

// SplitMatched partitions orders into matched and unmatched
func SplitMatched(orders []Order) (matched, unmatched []Order) {
	matched = make([]Order, 0, len(orders))
	unmatched = make([]Order, 0)
	for _, o := range orders {
		if o.MatchedProfileID != nil {
			matched = append(matched, o)
		} else {
			unmatched = append(unmatched, o)
		}
	}
	return matched, unmatched
}
