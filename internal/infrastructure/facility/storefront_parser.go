package facility

import (
	"errors"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Composite description
// ---------------------------------------------------------------------------

// CompositeDescription is the storefront's pipe-delimited product line split
// into its parts.
type CompositeDescription struct {
	Name     string
	Location string
	Dates    string
}

var (
	quantitySuffixRe = regexp.MustCompile(`(?:\s*×\s*|\s+[xX]\s*)\d+\s*$`)
	locationShapeRe  = regexp.MustCompile(`^[^,]+,\s*\S`)
	monthDayRe       = regexp.MustCompile(`(?i)\b(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+\d{1,2}\b`)
	monthNameRe      = regexp.MustCompile(`(?i)\b(?:january|february|march|april|june|july|august|september|october|november|december)\b`)
	yearRe           = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

// ParseCompositeDescription splits "NAME | LOCATION | DATES × 1" style
// product lines. Segments after the name are classified as dates when they
// carry a month or a four-digit year, and as a location when shaped like
// "City, Region". Date classification wins. Anything else fills the location
// and then the dates slot.
func ParseCompositeDescription(text string) CompositeDescription {
	text = normalizeSpace(text)
	text = strings.TrimSpace(quantitySuffixRe.ReplaceAllString(text, ""))

	var segments []string
	for _, seg := range strings.Split(text, "|") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return CompositeDescription{}
	}

	d := CompositeDescription{Name: segments[0]}
	for _, seg := range segments[1:] {
		switch {
		case looksLikeDate(seg):
			d.Dates = appendSegment(d.Dates, seg)
		case locationShapeRe.MatchString(seg):
			d.Location = appendSegment(d.Location, seg)
		case d.Location == "":
			d.Location = seg
		case d.Dates == "":
			d.Dates = seg
		default:
			d.Location = appendSegment(d.Location, seg)
		}
	}
	return d
}

func looksLikeDate(s string) bool {
	return monthDayRe.MatchString(s) || monthNameRe.MatchString(s) || yearRe.MatchString(s)
}

func appendSegment(existing, seg string) string {
	if existing == "" {
		return seg
	}
	return existing + " | " + seg
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ---------------------------------------------------------------------------
// Money
// ---------------------------------------------------------------------------

var moneyRe = regexp.MustCompile(`([$€£])\s*(\d[\d,]*(?:\.\d+)?)|(\d[\d,]*\.\d{2})\b`)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

// money is one monetary amount found in page text
type money struct {
	Amount   decimal.Decimal
	Currency string
}

// findMoney returns every money-shaped amount in text, in document order
func findMoney(text, defaultCurrency string) []money {
	var out []money
	for _, m := range moneyRe.FindAllStringSubmatch(text, -1) {
		symbol, digits := m[1], m[2]
		if digits == "" {
			digits = m[3]
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(digits, ",", ""))
		if err != nil {
			continue
		}
		currency, ok := currencySymbols[symbol]
		if !ok {
			currency = defaultCurrency
		}
		out = append(out, money{Amount: amount, Currency: currency})
	}
	return out
}

// ---------------------------------------------------------------------------
// Text extraction
// ---------------------------------------------------------------------------

// blockLines renders the selection's text with <br> and block elements as
// line breaks and returns the non-empty, space-normalized lines.
func blockLines(sel *goquery.Selection) []string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Br:
				b.WriteByte('\n')
				return
			case atom.Script, atom.Style:
				return
			}
		}
		block := n.Type == html.ElementNode && isBlockElement(n.DataAtom)
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = normalizeSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Tr, atom.Td, atom.Th, atom.Dt, atom.Dd,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Section, atom.Address:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Account pages
// ---------------------------------------------------------------------------

// loginToken reads the hidden anti-forgery token from the login page
func loginToken(doc *goquery.Document, field string) string {
	val, _ := doc.Find(`input[name="` + field + `"]`).First().Attr("value")
	return val
}

// isAuthenticatedPage requires the authenticated-only marker and the absence
// of the login form. Either alone is not trusted.
func isAuthenticatedPage(doc *goquery.Document, sel StorefrontSelectors) bool {
	return doc.Find(sel.AuthenticatedMarker).Length() > 0 && doc.Find(sel.LoginForm).Length() == 0
}

// parseRosterNames lists the member names on the account members page
func parseRosterNames(doc *goquery.Document, selector string) []integration.RosterMember {
	var members []integration.RosterMember
	doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		name := normalizeSpace(s.Text())
		if name == "" {
			return
		}
		id, ok := s.Attr("data-member-id")
		if !ok || id == "" {
			id = slugify(name)
		}
		members = append(members, integration.RosterMember{ID: id, DisplayName: name})
	})
	return members
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// extractOrderLinks collects order detail URLs from both link selectors,
// resolved against the page URL and de-duplicated in first-seen order.
func extractOrderLinks(doc *goquery.Document, pageURL *url.URL, sel StorefrontSelectors) []string {
	seen := make(map[string]struct{})
	var links []string
	collect := func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		u, err := pageURL.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		u.Fragment = ""
		key := u.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, key)
	}
	doc.Find(sel.OrderLinkAction).Each(collect)
	doc.Find(sel.OrderLinkLegacy).Each(collect)
	return links
}

var (
	errMissingDescription = errors.New("order description not found")
	errMissingOrderID     = errors.New("order number not found")

	digitsRe     = regexp.MustCompile(`\d+`)
	longDateRe   = regexp.MustCompile(`(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}`)
	longDateForm = "January 2, 2006"
)

// parseOrderDetail extracts one order from its detail page
func parseOrderDetail(doc *goquery.Document, orderURL string, sel StorefrontSelectors, defaultCurrency string) (integration.Order, error) {
	order := integration.Order{
		URL:      orderURL,
		Price:    decimal.Zero,
		Currency: defaultCurrency,
		Status:   integration.OrderStatusCompleted,
	}

	order.OrderID = digitsRe.FindString(doc.Find(sel.OrderNumber).First().Text())
	if order.OrderID == "" {
		order.OrderID = orderIDFromURL(orderURL)
	}
	if order.OrderID == "" {
		return order, errMissingOrderID
	}

	descText := normalizeSpace(doc.Find(sel.Description).First().Text())
	if descText == "" {
		return order, errMissingDescription
	}
	desc := ParseCompositeDescription(descText)
	order.ItemName = desc.Name
	order.Location = desc.Location
	order.DateRangeText = desc.Dates

	if amounts := findMoney(normalizeSpace(doc.Find(sel.TotalsArea).Text()), defaultCurrency); len(amounts) > 0 {
		last := amounts[len(amounts)-1]
		order.Price = last.Amount
		order.Currency = last.Currency
	}

	if lines := blockLines(doc.Find(sel.BillingAddress).First()); len(lines) > 0 {
		order.BillingName = lines[0]
		order.BillingAddress = strings.Join(lines[1:], ", ")
	}

	if status := strings.ToLower(normalizeSpace(doc.Find(sel.StatusBadge).First().Text())); status != "" {
		order.Status = status
	}

	order.OrderDate = parseOrderDate(doc, sel.OrderDate)
	return order, nil
}

// parseOrderDate reads the machine-readable date, falling back to the first
// "Month D, YYYY" in the page text
func parseOrderDate(doc *goquery.Document, selector string) *time.Time {
	if raw, ok := doc.Find(selector).First().Attr("datetime"); ok {
		for _, layout := range []string{time.RFC3339, integration.DateLayout} {
			if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
				return &t
			}
		}
	}
	if m := longDateRe.FindString(normalizeSpace(doc.Text())); m != "" {
		if t, err := time.Parse(longDateForm, m); err == nil {
			return &t
		}
	}
	return nil
}

// orderIDFromURL takes the last numeric path segment, e.g. /view-order/1234/
func orderIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if digitsRe.MatchString(segments[i]) && digitsRe.FindString(segments[i]) == segments[i] {
			return segments[i]
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// parseCatalogListing reads the items of a public category page
func parseCatalogListing(doc *goquery.Document, pageURL *url.URL, sel StorefrontSelectors, category, defaultCurrency string) []integration.Session {
	var sessions []integration.Session
	doc.Find(sel.CatalogItem).Each(func(i int, s *goquery.Selection) {
		title := normalizeSpace(s.Find(sel.CatalogItemTitle).First().Text())
		link := s.Find(sel.CatalogItemLink).First()
		if title == "" {
			title = normalizeSpace(link.Text())
		}
		if title == "" {
			return
		}

		session := integration.Session{
			Price:    decimal.Zero,
			Currency: defaultCurrency,
			Category: category,
		}
		if href, ok := link.Attr("href"); ok {
			if u, err := pageURL.Parse(strings.TrimSpace(href)); err == nil {
				session.URL = u.String()
			}
		}

		desc := ParseCompositeDescription(title)
		session.Name = desc.Name
		session.Location = desc.Location
		session.Dates = desc.Dates
		if meta := normalizeSpace(s.Find(sel.CatalogItemMeta).Text()); meta != "" {
			fillSessionFacts(&session, strings.Split(meta, "|"))
		}

		if amounts := findMoney(normalizeSpace(s.Find(sel.CatalogItemPrice).Text()), defaultCurrency); len(amounts) > 0 {
			session.Price = amounts[0].Amount
			session.Currency = amounts[0].Currency
		}

		session.ID = catalogItemID(s, session.URL)
		if session.ID == "" {
			session.ID = slugify(session.Name)
		}
		sessions = append(sessions, session)
	})
	return sessions
}

func catalogItemID(s *goquery.Selection, itemURL string) string {
	for _, attr := range []string{"data-product-id", "data-id"} {
		if v, ok := s.Attr(attr); ok && v != "" {
			return v
		}
	}
	if itemURL == "" {
		return ""
	}
	u, err := url.Parse(itemURL)
	if err != nil {
		return ""
	}
	return path.Base(strings.TrimRight(u.Path, "/"))
}

// fillSessionFacts fills empty location and dates slots from labelled or
// shaped lines such as "Location: Miami, Florida" or "March 2 - 6, 2026".
func fillSessionFacts(s *integration.Session, lines []string) {
	for _, line := range lines {
		line = normalizeSpace(line)
		if line == "" {
			continue
		}
		label, value, labelled := strings.Cut(line, ":")
		if labelled {
			value = strings.TrimSpace(value)
			switch strings.ToLower(strings.TrimSpace(label)) {
			case "location", "where", "venue":
				if s.Location == "" {
					s.Location = value
				}
				continue
			case "dates", "date", "when":
				if s.Dates == "" {
					s.Dates = value
				}
				continue
			}
		}
		switch {
		case s.Dates == "" && looksLikeDate(line):
			s.Dates = line
		case s.Location == "" && locationShapeRe.MatchString(line) && !looksLikeDate(line):
			s.Location = line
		}
	}
}

// ---------------------------------------------------------------------------
// Date ranges
// ---------------------------------------------------------------------------

var dateRangeRe = regexp.MustCompile(`(?i)^([a-z]+)\.?\s+(\d{1,2})(?:,?\s+(\d{4}))?(?:\s*[-–]\s*(?:([a-z]+)\.?\s+)?(\d{1,2}))?,?\s+(\d{4})$`)

var monthPrefixes = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseDateRange reads storefront date text such as "February 28 - March 1,
// 2026", "March 2 - 6, 2026" or "March 2, 2026" into calendar dates.
func ParseDateRange(text string) (start, end string, ok bool) {
	m := dateRangeRe.FindStringSubmatch(normalizeSpace(text))
	if m == nil {
		return "", "", false
	}
	endYear := atoi(m[6])
	startMonth, ok1 := lookupMonth(m[1])
	if !ok1 {
		return "", "", false
	}
	endMonth := startMonth
	if m[4] != "" {
		var ok2 bool
		if endMonth, ok2 = lookupMonth(m[4]); !ok2 {
			return "", "", false
		}
	}
	startYear := endYear
	if m[3] != "" {
		startYear = atoi(m[3])
	} else if startMonth > endMonth {
		startYear = endYear - 1
	}

	startDay := atoi(m[2])
	endDay := startDay
	if m[5] != "" {
		endDay = atoi(m[5])
	}

	s, okStart := calendarDate(startYear, startMonth, startDay)
	e, okEnd := calendarDate(endYear, endMonth, endDay)
	if !okStart || !okEnd || e.Before(s) {
		return "", "", false
	}
	return s.Format(integration.DateLayout), e.Format(integration.DateLayout), true
}

func lookupMonth(name string) (time.Month, bool) {
	if len(name) < 3 {
		return 0, false
	}
	m, ok := monthPrefixes[strings.ToLower(name[:3])]
	return m, ok
}

func calendarDate(year int, month time.Month, day int) (time.Time, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t, t.Day() == day && t.Month() == month
}

// atoi parses digits already validated by the regexp
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
