package facility

import (
	"errors"
	"time"

	"github.com/rosterlink/backend/internal/infrastructure/config"
)

// ResourceAPIConfig holds configuration for the structured JSON resource API vendor
type ResourceAPIConfig struct {
	// BaseURL is the vendor API root; each facility lives under {BaseURL}/{facility}
	BaseURL string
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// PageSize is requested via page[size] on list endpoints
	PageSize int
	// MaxPages bounds how many links.next hops a single import follows
	MaxPages int
	// DefaultCurrency applies when a finance record carries none
	DefaultCurrency string

	// Endpoint templates, relative to BaseURL. {facility} is substituted.
	LoginPath    string
	RosterPath   string
	EventsPath   string
	ProgramsPath string
}

const (
	defaultResourceLoginPath    = "/{facility}/login"
	defaultResourceRosterPath   = "/{facility}/customers"
	defaultResourceEventsPath   = "/{facility}/events"
	defaultResourceProgramsPath = "/{facility}/programs"

	// eventIncludes are the relationships side-loaded with every event page
	eventIncludes = "customer,facility,eventType,finances"
)

// Errors for resource API configuration
var (
	ErrResourceAPIConfigMissingBaseURL = errors.New("resource api: base url is required")
	ErrResourceAPIConfigInvalidPaging  = errors.New("resource api: page size and max pages must be positive")
)

// NewResourceAPIConfig builds the adapter config from application config
func NewResourceAPIConfig(cfg config.ResourceAPIConfig) *ResourceAPIConfig {
	return &ResourceAPIConfig{
		BaseURL:         cfg.BaseURL,
		Timeout:         cfg.Timeout,
		PageSize:        cfg.PageSize,
		MaxPages:        cfg.MaxPages,
		DefaultCurrency: cfg.DefaultCurrency,
	}
}

// Validate validates the configuration and fills defaults
func (c *ResourceAPIConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrResourceAPIConfigMissingBaseURL
	}
	if c.PageSize < 0 || c.MaxPages < 0 {
		return ErrResourceAPIConfigInvalidPaging
	}
	if c.PageSize == 0 {
		c.PageSize = 100
	}
	if c.MaxPages == 0 {
		c.MaxPages = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "USD"
	}
	if c.LoginPath == "" {
		c.LoginPath = defaultResourceLoginPath
	}
	if c.RosterPath == "" {
		c.RosterPath = defaultResourceRosterPath
	}
	if c.EventsPath == "" {
		c.EventsPath = defaultResourceEventsPath
	}
	if c.ProgramsPath == "" {
		c.ProgramsPath = defaultResourceProgramsPath
	}
	return nil
}
