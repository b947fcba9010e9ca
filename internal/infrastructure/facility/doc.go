// Package facility contains the vendor adapters that implement
// integration.FacilityAdapter: the JSON resource API adapter and the HTML
// storefront adapter, plus the fetch and parse primitives they share.
package facility
