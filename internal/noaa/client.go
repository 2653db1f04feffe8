// Package noaa is a client for the NOAA Climate Data Online (CDO) v2 web services.
//
// The API pages every list endpoint with 1-based limit/offset parameters and caps a
// page at 1000 results. Client.Fetch walks those pages for one endpoint and returns
// the concatenated results.
package noaa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultBaseURL = "https://www.ncei.noaa.gov/cdo-web/api/v2/"

	// MaxPageSize is the largest limit the API accepts.
	MaxPageSize = 1000
)

// Termination decides which page is the last one.
type Termination string

const (
	// TerminateOnShortPage stops after a page holding fewer records than the page size.
	// It assumes the API never returns a short page followed by more data.
	TerminateOnShortPage Termination = "short-page"
	// TerminateOnResultCount stops once metadata.resultset.count records have been read.
	// Responses without a count fall back to the empty-page signal.
	TerminateOnResultCount Termination = "result-count"
)

// Observer receives the outcome of every page request.
type Observer interface {
	ObserveRequest(endpoint, status string, d time.Duration)
	ObservePage(endpoint string, records int)
}

// Options configures a Client.
type Options struct {
	BaseURL            string
	Token              string
	PageSize           int
	Delay              time.Duration
	Termination        Termination
	BreakerMaxFailures uint32
	Observer           Observer
	Logger             *slog.Logger
}

// Client fetches paginated CDO resources.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	pageSize    int
	delay       time.Duration
	termination Termination
	circuit     *gobreaker.CircuitBreaker
	observer    Observer
	log         *slog.Logger

	// sleep pauses between pages; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client. The http.Client carries the per-request timeout.
func NewClient(httpClient *http.Client, opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	termination := opts.Termination
	if termination == "" {
		termination = TerminateOnShortPage
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL:     baseURL,
		token:       opts.Token,
		httpClient:  httpClient,
		pageSize:    pageSize,
		delay:       opts.Delay,
		termination: termination,
		circuit:     newCircuitBreaker("noaa-cdo", opts.BreakerMaxFailures),
		observer:    opts.Observer,
		log:         log,
		sleep:       sleepContext,
	}
}

// Fetch reads every page of endpoint, merging params into each request.
//
// A failed page request ends the loop: the records accumulated so far are returned
// together with a *FetchError. Nothing is retried.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values) ([]Record, error) {
	var all []Record
	offset := 1

	for {
		p, err := c.fetchPage(ctx, endpoint, params, offset)
		if err != nil {
			c.log.Error("error fetching endpoint", "endpoint", endpoint, "offset", offset, "error", err)
			return all, &FetchError{Endpoint: endpoint, Offset: offset, Err: err}
		}

		n := len(p.Results)
		if c.observer != nil {
			c.observer.ObservePage(endpoint, n)
		}
		if n == 0 {
			break
		}

		all = append(all, p.Results...)
		c.log.Info(fmt.Sprintf("Fetched %d records from %s, total: %d", n, endpoint, len(all)))

		if c.lastPage(n, len(all), p.Metadata.ResultSet.Count) {
			break
		}

		offset += c.pageSize
		if err := c.sleep(ctx, c.delay); err != nil {
			return all, &FetchError{Endpoint: endpoint, Offset: offset, Err: err}
		}
	}

	return all, nil
}

func (c *Client) lastPage(pageLen, total, reported int) bool {
	switch c.termination {
	case TerminateOnResultCount:
		return reported > 0 && total >= reported
	default:
		return pageLen < c.pageSize
	}
}

func (c *Client) fetchPage(ctx context.Context, endpoint string, params url.Values, offset int) (*page, error) {
	start := time.Now()
	p, err := c.requestPage(ctx, endpoint, params, offset)
	if c.observer != nil {
		status := statusLabel(err)
		if _, ok := err.(*decodeError); ok {
			status = "decode_error"
		}
		c.observer.ObserveRequest(endpoint, status, time.Since(start))
	}
	return p, err
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) requestPage(ctx context.Context, endpoint string, params url.Values, offset int) (*page, error) {
	values := url.Values{}
	values.Set("limit", strconv.Itoa(c.pageSize))
	values.Set("offset", strconv.Itoa(offset))
	for k, vs := range params {
		values[k] = append([]string(nil), vs...)
	}

	u := c.baseURL + endpoint + "?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := doRequest(c.httpClient, c.circuit, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, &decodeError{err: err}
	}
	return &p, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
