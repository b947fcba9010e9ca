package integration

import (
	"errors"
	"sort"
	"time"
)

// ErrOrderNotImported is returned when a match correction names an order
// that is not in the stored history
var ErrOrderNotImported = errors.New("integration: order not in imported history")

// FacilityHistory is the last successful import of one linked facility. It is
// what the device keeps in its local "history" field.
type FacilityHistory struct {
	Key          string       `json:"key"`
	Platform     PlatformCode `json:"platform"`
	FacilityID   string       `json:"facility_id"`
	Activities   []Activity   `json:"activities,omitempty"`
	ActivitiesAt *time.Time   `json:"activities_at,omitempty"`
	Orders       []Order      `json:"orders,omitempty"`
	OrdersAt     *time.Time   `json:"orders_at,omitempty"`
	// MatchOverrides maps an order id to the profile the user chose.
	// An empty value marks the order as deliberately unmatched.
	MatchOverrides map[string]string `json:"match_overrides,omitempty"`
}

// ReplaceActivities stores the activities of a successful import, replacing
// that facility's previous set. Other facilities are untouched. When the
// import was limited to owners, stored activities of everyone else stay.
func ReplaceActivities(history []FacilityHistory, platform PlatformCode, facilityID string, owners []string, activities []Activity, at time.Time) []FacilityHistory {
	out, h := historyEntry(history, platform, facilityID)
	kept := []Activity{}
	if len(owners) > 0 {
		filtered := make(map[string]bool, len(owners))
		for _, id := range owners {
			filtered[id] = true
		}
		for _, act := range h.Activities {
			if !filtered[act.OwnerID] {
				kept = append(kept, act)
			}
		}
	}
	h.Activities = append(kept, activities...)
	h.ActivitiesAt = &at
	return out
}

// ReplaceOrders stores the orders of a successful import. Matches the user
// corrected earlier win over the heuristic.
func ReplaceOrders(history []FacilityHistory, platform PlatformCode, facilityID string, orders []Order, at time.Time) []FacilityHistory {
	out, h := historyEntry(history, platform, facilityID)
	h.Orders = make([]Order, len(orders))
	for i, o := range orders {
		h.Orders[i] = h.applyOverride(o)
	}
	h.OrdersAt = &at
	return out
}

// OverrideMatch records the user's profile choice for an imported order. An
// empty profileID marks the order unmatched.
func OverrideMatch(history []FacilityHistory, platform PlatformCode, facilityID, orderID, profileID string) ([]FacilityHistory, error) {
	key := CredentialKey(platform, facilityID)
	for i := range history {
		h := &history[i]
		if h.Key != key {
			continue
		}
		for j := range h.Orders {
			if h.Orders[j].OrderID != orderID {
				continue
			}
			if h.MatchOverrides == nil {
				h.MatchOverrides = make(map[string]string)
			}
			h.MatchOverrides[orderID] = profileID
			h.Orders[j] = h.applyOverride(h.Orders[j])
			return history, nil
		}
	}
	return history, ErrOrderNotImported
}

func (h *FacilityHistory) applyOverride(o Order) Order {
	profile, ok := h.MatchOverrides[o.OrderID]
	if !ok {
		return o
	}
	if profile == "" {
		o.MatchedProfileID = nil
		return o
	}
	o.MatchedProfileID = &profile
	return o
}

// historyEntry returns a copy of history, sorted by key, and a pointer to
// the entry for the facility, creating it when missing
func historyEntry(history []FacilityHistory, platform PlatformCode, facilityID string) ([]FacilityHistory, *FacilityHistory) {
	key := CredentialKey(platform, facilityID)
	out := append([]FacilityHistory{}, history...)
	idx := -1
	for i := range out {
		if out[i].Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		out = append(out, FacilityHistory{Key: key, Platform: platform, FacilityID: facilityID})
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		for i := range out {
			if out[i].Key == key {
				idx = i
			}
		}
	}
	return out, &out[idx]
}
