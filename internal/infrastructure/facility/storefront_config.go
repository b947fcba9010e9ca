package facility

import (
	"errors"
	"time"

	"github.com/rosterlink/backend/internal/infrastructure/config"
)

// StorefrontConfig holds configuration for the HTML storefront vendor
type StorefrontConfig struct {
	// BaseURL is the storefront root, overridable per facility
	BaseURL string
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// MaxOrderDetails bounds how many order detail pages one import fetches
	MaxOrderDetails int
	// CatalogDetailLimit bounds secondary detail fetches for catalog items
	CatalogDetailLimit int
	// RequestsPerSecond paces sequential detail fetches; 0 disables pacing
	RequestsPerSecond float64
	// DefaultCurrency applies when a price carries no recognizable symbol
	DefaultCurrency string
	// CSRFFieldName is the hidden anti-forgery input on the login form
	CSRFFieldName string
	// UsernameField and PasswordField are the login form input names
	UsernameField string
	PasswordField string

	// Page paths relative to BaseURL. {facility} is substituted.
	LoginPath   string
	AccountPath string
	OrdersPath  string
	// MembersPath is optional; when empty no roster is discovered
	MembersPath string
	CatalogPath string

	Selectors StorefrontSelectors
}

// StorefrontSelectors are the CSS selectors the scraper depends on.
// Vendor template changes are absorbed here.
type StorefrontSelectors struct {
	LoginForm           string
	AuthenticatedMarker string
	FacilityName        string
	RosterMember        string

	// OrderLinkAction is the "view" button in the orders table; OrderLinkLegacy
	// is the older order-number link list. Both are scanned.
	OrderLinkAction string
	OrderLinkLegacy string

	OrderNumber    string
	Description    string
	TotalsArea     string
	BillingAddress string
	StatusBadge    string
	OrderDate      string

	CatalogItem       string
	CatalogItemTitle  string
	CatalogItemLink   string
	CatalogItemPrice  string
	CatalogItemMeta   string
	CatalogDetailInfo string
}

// DefaultStorefrontSelectors returns the selectors for the current vendor theme
func DefaultStorefrontSelectors() StorefrontSelectors {
	return StorefrontSelectors{
		LoginForm:           "form.login",
		AuthenticatedMarker: ".account-navigation",
		FacilityName:        ".site-title",
		RosterMember:        ".account-members .member-name",

		OrderLinkAction: "table.account-orders-table a.button.view",
		OrderLinkLegacy: ".order-list .order-number a",

		OrderNumber:    ".order-number",
		Description:    ".order-details .product-name",
		TotalsArea:     ".order-details tfoot",
		BillingAddress: ".customer-details address",
		StatusBadge:    ".order-status",
		OrderDate:      "time[datetime]",

		CatalogItem:       "ul.products li.product",
		CatalogItemTitle:  ".product-title",
		CatalogItemLink:   "a[href]",
		CatalogItemPrice:  ".price",
		CatalogItemMeta:   ".product-meta",
		CatalogDetailInfo: ".product-summary",
	}
}

const (
	defaultStorefrontLoginPath   = "/my-account/"
	defaultStorefrontAccountPath = "/my-account/"
	defaultStorefrontOrdersPath  = "/my-account/orders/"
	defaultStorefrontCatalogPath = "/product-category/{facility}/"
)

// Errors for storefront configuration
var (
	ErrStorefrontConfigMissingBaseURL = errors.New("storefront: base url is required")
	ErrStorefrontConfigInvalidLimits  = errors.New("storefront: detail limits and request rate cannot be negative")
)

// NewStorefrontConfig builds the adapter config from application config
func NewStorefrontConfig(cfg config.StorefrontConfig) *StorefrontConfig {
	return &StorefrontConfig{
		BaseURL:            cfg.BaseURL,
		Timeout:            cfg.Timeout,
		MaxOrderDetails:    cfg.MaxOrderDetails,
		CatalogDetailLimit: cfg.CatalogDetailLimit,
		RequestsPerSecond:  cfg.RequestsPerSecond,
		DefaultCurrency:    cfg.DefaultCurrency,
		CSRFFieldName:      cfg.CSRFFieldName,
		Selectors:          DefaultStorefrontSelectors(),
	}
}

// Validate validates the configuration and fills defaults
func (c *StorefrontConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrStorefrontConfigMissingBaseURL
	}
	if c.MaxOrderDetails < 0 || c.CatalogDetailLimit < 0 || c.RequestsPerSecond < 0 {
		return ErrStorefrontConfigInvalidLimits
	}
	if c.MaxOrderDetails == 0 {
		c.MaxOrderDetails = 50
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "USD"
	}
	if c.CSRFFieldName == "" {
		c.CSRFFieldName = "__RequestVerificationToken"
	}
	if c.UsernameField == "" {
		c.UsernameField = "username"
	}
	if c.PasswordField == "" {
		c.PasswordField = "password"
	}
	if c.LoginPath == "" {
		c.LoginPath = defaultStorefrontLoginPath
	}
	if c.AccountPath == "" {
		c.AccountPath = defaultStorefrontAccountPath
	}
	if c.OrdersPath == "" {
		c.OrdersPath = defaultStorefrontOrdersPath
	}
	if c.CatalogPath == "" {
		c.CatalogPath = defaultStorefrontCatalogPath
	}
	if c.Selectors == (StorefrontSelectors{}) {
		c.Selectors = DefaultStorefrontSelectors()
	}
	return nil
}
