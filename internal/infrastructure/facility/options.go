package facility

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// Option configures an adapter
type Option func(*adapterOptions)

type adapterOptions struct {
	logger     *zap.Logger
	httpClient *http.Client
	archive    integration.PageArchive
	renderer   PageRenderer
}

// WithLogger sets the adapter logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *adapterOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient replaces the adapter's HTTP client. The client should not
// follow redirects.
func WithHTTPClient(client *http.Client) Option {
	return func(o *adapterOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithPageArchive stores raw pages that fail to parse
func WithPageArchive(archive integration.PageArchive) Option {
	return func(o *adapterOptions) {
		o.archive = archive
	}
}

// WithPageRenderer fetches public pages through a headless browser
func WithPageRenderer(renderer PageRenderer) Option {
	return func(o *adapterOptions) {
		o.renderer = renderer
	}
}

func applyOptions(opts []Option) adapterOptions {
	o := adapterOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
