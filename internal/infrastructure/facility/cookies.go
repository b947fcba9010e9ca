package facility

import (
	"net/http"
	"strings"
)

// CookieSet accumulates cookies across a multi-hop login.
//
// The set is append-only: every hop's cookies are recorded in arrival order
// and nothing is ever dropped. When a name repeats, the newest value wins in
// Header() but keeps the position of the first occurrence.
type CookieSet struct {
	entries []cookieEntry
}

type cookieEntry struct {
	name  string
	value string
}

// ParseCookieHeader rebuilds a CookieSet from a previously issued header string
func ParseCookieHeader(header string) *CookieSet {
	cs := &CookieSet{}
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		cs.Set(name, value)
	}
	return cs
}

// Set appends a single name/value pair
func (cs *CookieSet) Set(name, value string) {
	cs.entries = append(cs.entries, cookieEntry{name: name, value: value})
}

// AddResponse records every Set-Cookie header from a response, in order
func (cs *CookieSet) AddResponse(header http.Header) {
	for _, line := range header.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		cs.Set(c.Name, c.Value)
	}
}

// Len returns the number of recorded entries, including superseded ones
func (cs *CookieSet) Len() int {
	return len(cs.entries)
}

// Header renders the set as a Cookie request header value
func (cs *CookieSet) Header() string {
	if len(cs.entries) == 0 {
		return ""
	}
	latest := make(map[string]string, len(cs.entries))
	order := make([]string, 0, len(cs.entries))
	for _, e := range cs.entries {
		if _, seen := latest[e.name]; !seen {
			order = append(order, e.name)
		}
		latest[e.name] = e.value
	}

	var b strings.Builder
	for i, name := range order {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(latest[name])
	}
	return b.String()
}

// Apply sets the Cookie header on req
func (cs *CookieSet) Apply(req *http.Request) {
	if h := cs.Header(); h != "" {
		req.Header.Set("Cookie", h)
	}
}
