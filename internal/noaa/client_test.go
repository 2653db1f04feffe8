package noaa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeCDO serves pages of the given sizes in order. A negative size answers with
// that HTTP status instead of a page.
type fakeCDO struct {
	mu       sync.Mutex
	pages    []int
	count    int
	requests []*http.Request
}

func (f *fakeCDO) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		idx := len(f.requests)
		f.requests = append(f.requests, r)
		f.mu.Unlock()

		if idx >= len(f.pages) {
			t.Errorf("unexpected request #%d: %s", idx+1, r.URL)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		size := f.pages[idx]
		if size < 0 {
			w.WriteHeader(-size)
			return
		}
		if size == 0 {
			fmt.Fprint(w, "{}")
			return
		}

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		results := make([]map[string]any, 0, size)
		for i := 0; i < size; i++ {
			results = append(results, map[string]any{
				"date":  "2020-01-01T00:00:00",
				"id":    fmt.Sprintf("REC%d", offset+i),
				"value": i,
			})
		}
		body := map[string]any{
			"metadata": map[string]any{
				"resultset": map[string]any{"offset": offset, "count": f.count, "limit": 1000},
			},
			"results": results,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}
}

func newTestClient(t *testing.T, f *fakeCDO, opts Options) (*Client, *[]time.Duration) {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	opts.BaseURL = server.URL
	if opts.Token == "" {
		opts.Token = "test-token"
	}
	c := NewClient(server.Client(), opts)

	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestFetchStopsOnShortPage(t *testing.T) {
	f := &fakeCDO{pages: []int{1000, 1000, 400}}
	c, sleeps := newTestClient(t, f, Options{Delay: 500 * time.Millisecond})

	records, err := c.Fetch(context.Background(), EndpointStations, url.Values{"locationid": {"CITY:SN000001"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2400 {
		t.Fatalf("expected 2400 records, got %d", len(records))
	}
	if len(f.requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(f.requests))
	}
	if len(*sleeps) != 2 {
		t.Fatalf("expected 2 pauses between pages, got %d", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != 500*time.Millisecond {
			t.Fatalf("expected 500ms pause, got %v", d)
		}
	}

	wantOffsets := []string{"1", "1001", "2001"}
	for i, r := range f.requests {
		q := r.URL.Query()
		if got := q.Get("offset"); got != wantOffsets[i] {
			t.Errorf("request %d: expected offset %s, got %s", i, wantOffsets[i], got)
		}
		if got := q.Get("limit"); got != "1000" {
			t.Errorf("request %d: expected limit 1000, got %s", i, got)
		}
		if got := q.Get("locationid"); got != "CITY:SN000001" {
			t.Errorf("request %d: expected locationid param, got %q", i, got)
		}
		if got := r.Header.Get("token"); got != "test-token" {
			t.Errorf("request %d: expected token header, got %q", i, got)
		}
		if !strings.HasSuffix(r.URL.Path, "/stations") {
			t.Errorf("request %d: unexpected path %s", i, r.URL.Path)
		}
	}
}

func TestFetchStopsOnEmptyPage(t *testing.T) {
	f := &fakeCDO{pages: []int{1000, 0}}
	c, _ := newTestClient(t, f, Options{})

	records, err := c.Fetch(context.Background(), EndpointDatatypes, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1000 {
		t.Fatalf("expected 1000 records, got %d", len(records))
	}
	if len(f.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(f.requests))
	}
}

func TestFetchReturnsPartialResultsOnFailure(t *testing.T) {
	f := &fakeCDO{pages: []int{1000, -http.StatusServiceUnavailable}}
	c, _ := newTestClient(t, f, Options{})

	records, err := c.Fetch(context.Background(), EndpointData, nil)
	if err == nil {
		t.Fatal("expected an error for the failed page")
	}
	if len(records) != 1000 {
		t.Fatalf("expected the 1000 records of the first page, got %d", len(records))
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.Offset != 1001 || fe.Endpoint != EndpointData {
		t.Fatalf("unexpected fetch error details: %+v", fe)
	}
	if !errors.Is(err, ErrServerError) {
		t.Fatalf("expected ErrServerError, got %v", err)
	}
}

func TestFetchClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: ErrRateLimited},
		{name: "bad request", status: http.StatusBadRequest, want: ErrUnexpectedStatus},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, want: ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeCDO{pages: []int{-tt.status}}
			c, _ := newTestClient(t, f, Options{})

			records, err := c.Fetch(context.Background(), EndpointDatasets, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(records) != 0 {
				t.Fatalf("expected no records, got %d", len(records))
			}
		})
	}
}

func TestFetchResultCountTermination(t *testing.T) {
	f := &fakeCDO{pages: []int{1000, 1000}, count: 2000}
	c, _ := newTestClient(t, f, Options{Termination: TerminateOnResultCount})

	records, err := c.Fetch(context.Background(), EndpointData, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2000 {
		t.Fatalf("expected 2000 records, got %d", len(records))
	}
	if len(f.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(f.requests))
	}
}

func TestFetchResultCountIgnoresShortPages(t *testing.T) {
	f := &fakeCDO{pages: []int{10, 10, 0}}
	c, _ := newTestClient(t, f, Options{PageSize: 10, Termination: TerminateOnResultCount})

	records, err := c.Fetch(context.Background(), EndpointData, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(records))
	}
	if len(f.requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(f.requests))
	}
}

func TestFetchCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	f := &fakeCDO{pages: []int{-500, -500}}
	c, _ := newTestClient(t, f, Options{BreakerMaxFailures: 2})

	for i := 0; i < 2; i++ {
		if _, err := c.Fetch(context.Background(), EndpointData, nil); !errors.Is(err, ErrServerError) {
			t.Fatalf("attempt %d: expected server error, got %v", i, err)
		}
	}

	_, err := c.Fetch(context.Background(), EndpointData, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if len(f.requests) != 2 {
		t.Fatalf("open circuit should not reach the server; got %d requests", len(f.requests))
	}
}

func TestFetchStopsWhenPauseIsCancelled(t *testing.T) {
	f := &fakeCDO{pages: []int{1000}}
	c, _ := newTestClient(t, f, Options{})
	c.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	records, err := c.Fetch(context.Background(), EndpointData, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(records) != 1000 {
		t.Fatalf("expected 1000 records, got %d", len(records))
	}
}

type recordingObserver struct {
	statuses []string
	pages    []int
}

func (o *recordingObserver) ObserveRequest(endpoint, status string, d time.Duration) {
	o.statuses = append(o.statuses, status)
}

func (o *recordingObserver) ObservePage(endpoint string, records int) {
	o.pages = append(o.pages, records)
}

func TestFetchNotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	f := &fakeCDO{pages: []int{1000, -404}}
	c, _ := newTestClient(t, f, Options{Observer: obs})

	c.Fetch(context.Background(), EndpointStations, nil)

	if got := strings.Join(obs.statuses, ","); got != "ok,unexpected_status" {
		t.Fatalf("unexpected statuses: %s", got)
	}
	if len(obs.pages) != 1 || obs.pages[0] != 1000 {
		t.Fatalf("unexpected pages: %v", obs.pages)
	}
}

func TestRecordKeepsKeyOrder(t *testing.T) {
	var r Record
	input := `{"mindate":"1763-01-01","maxdate":"2024-01-01","name":"Daily Summaries","datacoverage":1,"id":"GHCND","nested":{"a":1}}`
	if err := json.Unmarshal([]byte(input), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"mindate", "maxdate", "name", "datacoverage", "id", "nested"}
	if got := strings.Join(r.Keys(), ","); got != strings.Join(want, ",") {
		t.Fatalf("expected keys %v, got %v", want, r.Keys())
	}
	if r.String("id") != "GHCND" {
		t.Fatalf("expected id GHCND, got %q", r.String("id"))
	}
	v, _ := r.Get("datacoverage")
	if n, ok := v.(json.Number); !ok || n.String() != "1" {
		t.Fatalf("expected json.Number 1, got %#v", v)
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != input {
		t.Fatalf("expected round trip %s, got %s", input, out)
	}
}

func TestRecordRejectsNonObject(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`[1,2]`), &r); err == nil {
		t.Fatal("expected an error for a JSON array")
	}
}

func TestPageKeepsNullResultsAsEmptyRecords(t *testing.T) {
	var p page
	body := `{"metadata":{"resultset":{"offset":1,"count":3,"limit":1000}},"results":[{"id":"A"},null,{"id":"C"}]}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(p.Results) != 3 {
		t.Fatalf("expected 3 records, got %d", len(p.Results))
	}
	if p.Results[1].Len() != 0 {
		t.Fatalf("expected an empty record for null, got keys %v", p.Results[1].Keys())
	}
	if p.Results[2].String("id") != "C" {
		t.Fatalf("expected the record after null to be kept, got %q", p.Results[2].String("id"))
	}
}
