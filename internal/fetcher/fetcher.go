// Package fetcher retrieves course identity and registration availability
// from the registrar's class schedule detail page.
//
// The page is scraped, not queried through an API, so this package is the
// only place that knows its shape. Callers get structured values or one of
// three error kinds: ErrNotFound, ErrParse or ErrTransport.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
)

// ErrNotFound is returned when the registrar has no section for the CRN.
var ErrNotFound = errors.New("course not found")

// ErrParse is returned when the page does not have the expected shape.
var ErrParse = errors.New("unexpected page shape")

// ErrTransport is returned on network failures, timeouts and unexpected
// HTTP statuses. It is always worth retrying later.
var ErrTransport = errors.New("transport error")

const availabilityCaption = "Registration Availability"

// statusFields is the number of integers in the availability table.
const statusFields = 6

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 4 << 20

// Options configures a Client.
type Options struct {
	// URLTemplate contains {term} and {crn} placeholders.
	URLTemplate string
	// Timeout bounds each request, including reading the body.
	Timeout time.Duration
	// RatePerSecond limits outbound requests; zero means unlimited.
	RatePerSecond float64
	Burst         int
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client fetches and parses course pages. It is stateless apart from the
// rate limiter and safe for concurrent use.
type Client struct {
	http        *http.Client
	urlTemplate string
	timeout     time.Duration
	limiter     *rate.Limiter
}

// New constructs a Client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		http:        httpClient,
		urlTemplate: opts.URLTemplate,
		timeout:     opts.Timeout,
		limiter:     rate.NewLimiter(limit, burst),
	}
}

// URL returns the detail page URL for a CRN in a term.
func (c *Client) URL(crn, term string) string {
	return strings.NewReplacer("{term}", term, "{crn}", crn).Replace(c.urlTemplate)
}

// Resolve looks up a course's identity. The header cell reads
// "name - crn - code - section"; a name containing hyphens stays intact.
func (c *Client) Resolve(ctx context.Context, crn, term string) (model.CourseInfo, error) {
	url := c.URL(crn, term)
	doc, err := c.get(ctx, url)
	if err != nil {
		return model.CourseInfo{}, fmt.Errorf("resolve %s: %w", crn, err)
	}

	header := doc.Find("th.ddlabel").First()
	if header.Length() == 0 {
		return model.CourseInfo{}, fmt.Errorf("resolve %s: %w", crn, ErrNotFound)
	}

	name, code, section, err := parseHeader(header.Text())
	if err != nil {
		return model.CourseInfo{}, fmt.Errorf("resolve %s: %w", crn, err)
	}

	return model.CourseInfo{
		CRN:     crn,
		Term:    term,
		Name:    name,
		Code:    code,
		Section: section,
		URL:     url,
	}, nil
}

// Refresh reads the current availability of an already resolved course.
func (c *Client) Refresh(ctx context.Context, info model.CourseInfo) (model.Status, error) {
	doc, err := c.get(ctx, info.URL)
	if err != nil {
		return model.Status{}, fmt.Errorf("refresh %s: %w", info.CRN, err)
	}

	table := doc.Find("caption").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == availabilityCaption
	}).First().Closest("table")
	if table.Length() == 0 {
		return model.Status{}, fmt.Errorf("refresh %s: %w", info.CRN, ErrNotFound)
	}

	status, err := parseStatus(table)
	if err != nil {
		return model.Status{}, fmt.Errorf("refresh %s: %w", info.CRN, err)
	}
	return status, nil
}

func (c *Client) get(ctx context.Context, url string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		// A body cut off by the deadline surfaces here.
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	return doc, nil
}

func parseHeader(text string) (name, code, section string, err error) {
	parts := strings.Split(text, "-")
	if len(parts) < 4 {
		return "", "", "", fmt.Errorf("%w: header %q has %d segments, want at least 4", ErrParse, strings.TrimSpace(text), len(parts))
	}
	n := len(parts)
	name = strings.TrimSpace(strings.Join(parts[:n-3], "-"))
	code = strings.TrimSpace(parts[n-2])
	section = strings.TrimSpace(parts[n-1])
	if name == "" || code == "" || section == "" {
		return "", "", "", fmt.Errorf("%w: header %q has empty segments", ErrParse, strings.TrimSpace(text))
	}
	return name, code, section, nil
}

// parseStatus reads seats, taken, vacant, waitlist seats, waitlist taken and
// waitlist vacant from the first six data cells, in that order.
func parseStatus(table *goquery.Selection) (model.Status, error) {
	cells := table.Find("td.dddefault")
	if cells.Length() < statusFields {
		return model.Status{}, fmt.Errorf("%w: availability table has %d cells, want %d", ErrParse, cells.Length(), statusFields)
	}

	values := make([]int, statusFields)
	for i := range statusFields {
		text := strings.TrimSpace(cells.Eq(i).Text())
		v, err := strconv.Atoi(text)
		if err != nil {
			return model.Status{}, fmt.Errorf("%w: cell %d %q is not an integer", ErrParse, i, text)
		}
		values[i] = v
	}

	return model.Status{
		Seats:          values[0],
		SeatsTaken:     values[1],
		SeatsVacant:    values[2],
		Waitlist:       values[3],
		WaitlistTaken:  values[4],
		WaitlistVacant: values[5],
	}, nil
}
