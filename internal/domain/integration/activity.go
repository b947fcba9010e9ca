package integration

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar date layout
const DateLayout = "2006-01-02"

// Activity is a canonical registered-event record.
// IDs are unique within one facility's import batch only.
type Activity struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	StartDate    string          `json:"start_date"`
	EndDate      string          `json:"end_date"`
	StartTime    string          `json:"start_time,omitempty"`
	EndTime      string          `json:"end_time,omitempty"`
	LocationName string          `json:"location_name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Category     string          `json:"category,omitempty"`
	Registered   bool            `json:"registered"`
	OwnerName    string          `json:"owner_name,omitempty"`
	OwnerID      string          `json:"owner_id,omitempty"`
}

// Normalize enforces the record invariants: a negative price becomes zero,
// a missing or earlier end date becomes the start date.
func (a *Activity) Normalize() {
	if a.Price.IsNegative() {
		a.Price = decimal.Zero
	}
	if a.EndDate == "" || a.EndDate < a.StartDate {
		a.EndDate = a.StartDate
	}
}

// Validate checks startDate <= endDate and price >= 0
func (a *Activity) Validate() error {
	if a.StartDate == "" {
		return NewError(ErrorKindSchemaMismatch, "activity.validate", 0, errMissingStart)
	}
	if a.EndDate < a.StartDate {
		return NewError(ErrorKindSchemaMismatch, "activity.validate", 0, errEndBeforeStart)
	}
	if a.Price.IsNegative() {
		return NewError(ErrorKindSchemaMismatch, "activity.validate", 0, errNegativePrice)
	}
	return nil
}

// SortActivities orders activities by start date then id so that repeated
// imports of identical upstream data produce identical output.
func SortActivities(activities []Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		if activities[i].StartDate != activities[j].StartDate {
			return activities[i].StartDate < activities[j].StartDate
		}
		return activities[i].ID < activities[j].ID
	})
}

// PartitionActivities splits activities into upcoming (end date on or after
// today) and past. The split is a derived view over the same slice contents.
func PartitionActivities(activities []Activity, today time.Time) (upcoming, past []Activity) {
	cutoff := today.Format(DateLayout)
	upcoming = make([]Activity, 0, len(activities))
	past = make([]Activity, 0)
	for _, a := range activities {
		if a.EndDate >= cutoff {
			upcoming = append(upcoming, a)
		} else {
			past = append(past, a)
		}
	}
	return upcoming, past
}
