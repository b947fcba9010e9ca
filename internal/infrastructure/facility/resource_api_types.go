package facility

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// JSON:API document envelope
// ---------------------------------------------------------------------------

// apiDocument is a JSON:API top-level document. Data is either a single
// resource or an array of resources.
type apiDocument struct {
	Data     json.RawMessage `json:"data"`
	Included []apiResource   `json:"included"`
	Links    apiLinks        `json:"links"`
	Meta     apiMeta         `json:"meta"`
}

type apiLinks struct {
	Next string `json:"next"`
}

type apiMeta struct {
	FacilityName string `json:"facility_name"`
}

// apiResource is one resource object
type apiResource struct {
	Type          string                     `json:"type"`
	ID            string                     `json:"id"`
	Attributes    json.RawMessage            `json:"attributes"`
	Relationships map[string]apiRelationship `json:"relationships"`
}

// apiRelationship data may be null, a single identifier or an array
type apiRelationship struct {
	Data json.RawMessage `json:"data"`
}

type apiIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// identifiers normalizes the to-one and to-many forms into a slice
func (r apiRelationship) identifiers() ([]apiIdentifier, error) {
	raw := bytes.TrimSpace(r.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var ids []apiIdentifier
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, err
		}
		return ids, nil
	}
	var id apiIdentifier
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, err
	}
	return []apiIdentifier{id}, nil
}

// resources decodes Data as a list. A single object becomes a one-element list.
func (d *apiDocument) resources() ([]apiResource, error) {
	raw := bytes.TrimSpace(d.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []apiResource
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one apiResource
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []apiResource{one}, nil
}

// ---------------------------------------------------------------------------
// Resource attributes
// ---------------------------------------------------------------------------

const (
	resourceTypeCustomer  = "customers"
	resourceTypeFacility  = "facilities"
	resourceTypeEventType = "eventTypes"
	resourceTypeFinance   = "finances"
)

type customerAttributes struct {
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date"`
}

// displayName prefers first/last and falls back to the full name
func (a customerAttributes) displayName() string {
	full := strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
	if full != "" {
		return full
	}
	return strings.TrimSpace(a.Name)
}

type namedAttributes struct {
	Name string `json:"name"`
}

type eventAttributes struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
	// Registered is absent on most vendors; events listed for a customer are registrations
	Registered *bool `json:"registered"`
}

type financeAttributes struct {
	Amount   *decimal.Decimal `json:"amount"`
	Currency string           `json:"currency"`
}

type programAttributes struct {
	Name     string           `json:"name"`
	Start    string           `json:"start"`
	End      string           `json:"end"`
	Location string           `json:"location"`
	Category string           `json:"category"`
	Price    *decimal.Decimal `json:"price"`
	Currency string           `json:"currency"`
	URL      string           `json:"url"`
}

// decodeAttributes decodes a resource's attributes into dst. Empty
// attributes are not an error.
func decodeAttributes(res apiResource, dst any) error {
	if len(res.Attributes) == 0 || bytes.Equal(bytes.TrimSpace(res.Attributes), []byte("null")) {
		return nil
	}
	return json.Unmarshal(res.Attributes, dst)
}

// includedIndex indexes side-loaded resources by type and id
type includedIndex map[string]apiResource

func newIncludedIndex(resources []apiResource) includedIndex {
	idx := make(includedIndex, len(resources))
	for _, r := range resources {
		idx[r.Type+"/"+r.ID] = r
	}
	return idx
}

func (idx includedIndex) lookup(id apiIdentifier) (apiResource, bool) {
	r, ok := idx[id.Type+"/"+id.ID]
	return r, ok
}

// name resolves the display name of an included resource, or ""
func (idx includedIndex) name(id apiIdentifier) string {
	r, ok := idx.lookup(id)
	if !ok {
		return ""
	}
	if r.Type == resourceTypeCustomer {
		var attrs customerAttributes
		if decodeAttributes(r, &attrs) != nil {
			return ""
		}
		return attrs.displayName()
	}
	var attrs namedAttributes
	if decodeAttributes(r, &attrs) != nil {
		return ""
	}
	return strings.TrimSpace(attrs.Name)
}

// ---------------------------------------------------------------------------
// Timestamps
// ---------------------------------------------------------------------------

var vendorTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// parseVendorTime splits a vendor timestamp into a calendar date and an
// optional HH:MM clock time. The timestamp's own offset is kept.
func parseVendorTime(s string) (date, clock string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", false
	}
	for _, layout := range vendorTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(integration.DateLayout), t.Format("15:04"), true
		}
	}
	if t, err := time.Parse(integration.DateLayout, s); err == nil {
		return t.Format(integration.DateLayout), "", true
	}
	return "", "", false
}
