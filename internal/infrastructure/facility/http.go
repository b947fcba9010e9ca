package facility

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from a vendor (10MB)
const maxResponseSize = 10 * 1024 * 1024

// userAgent is sent on every vendor request
const userAgent = "rosterlink/1.0 (+https://rosterlink.app)"

// newHTTPClient builds a client that never follows redirects. Adapters that
// need to follow a hop do it explicitly so cookies set on the hop are kept.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// fetchResult is a fully read vendor response
type fetchResult struct {
	Status   int
	Header   http.Header
	Body     []byte
	URL      *url.URL
	Location string
}

// IsSuccess reports a 2xx status
func (r *fetchResult) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// IsRedirect reports a 3xx status with a Location header
func (r *fetchResult) IsRedirect() bool {
	return r.Status >= 300 && r.Status < 400 && r.Location != ""
}

// doFetch executes req and reads the body. Transport failures are returned
// as Unreachable; the status code is left for the caller to classify.
func doFetch(client *http.Client, req *http.Request, op string) (*fetchResult, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, integration.NewError(integration.ErrorKindUnreachable, op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, integration.NewError(integration.ErrorKindUnreachable, op, resp.StatusCode,
			fmt.Errorf("failed to read response: %w", err))
	}

	result := &fetchResult{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
		URL:    resp.Request.URL,
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		if resolved, err := resp.Request.URL.Parse(loc); err == nil {
			result.Location = resolved.String()
		}
	}
	return result, nil
}

// classifySessionStatus maps a non-2xx status on an authenticated call.
// 401/403 mean the session is gone; everything else is an upstream error.
func classifySessionStatus(op string, status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return integration.NewError(integration.ErrorKindNeedsReauth, op, status, nil)
	default:
		return integration.NewError(integration.ErrorKindUpstream, op, status, nil)
	}
}

// classifyLoginStatus maps a non-2xx status on a login call. Server-side
// failures are reported as Unreachable so the user is not told their
// password is wrong during an outage.
func classifyLoginStatus(op string, status int) error {
	if status >= 500 {
		return integration.NewError(integration.ErrorKindUnreachable, op, status, nil)
	}
	return integration.NewError(integration.ErrorKindInvalidCredentials, op, status, nil)
}

// resolveBaseURL picks the facility override or the platform default
func resolveBaseURL(fc integration.FacilityContext, fallback string) (*url.URL, error) {
	raw := fc.BaseURL
	if raw == "" {
		raw = fallback
	}
	if raw == "" {
		return nil, integration.ErrPlatformNotEnabled
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", raw, err)
	}
	return u, nil
}

// joinPath appends a path template to base, substituting {facility}
func joinPath(base *url.URL, tmpl, facilityID string) *url.URL {
	p := strings.ReplaceAll(tmpl, "{facility}", url.PathEscape(facilityID))
	ref, err := url.Parse(p)
	if err != nil {
		return base.JoinPath(p)
	}
	if ref.IsAbs() {
		return ref
	}
	u := base.JoinPath(ref.Path)
	if strings.HasSuffix(ref.Path, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ref.RawQuery
	return u
}
