package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/godhahn/data-project/internal/extract"
	"github.com/godhahn/data-project/internal/history"
	"github.com/godhahn/data-project/internal/runner"
)

type fakeTrigger struct {
	err     error
	started int
	running bool
}

func (f *fakeTrigger) Start(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.started++
	return nil
}

func (f *fakeTrigger) Running() bool { return f.running }

func newApp(t *testing.T, repo history.Repository, trig Trigger, metrics http.Handler) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Deps{History: repo, Trigger: trig, Metrics: metrics})
	return app
}

func do(t *testing.T, app *fiber.App, method, target string) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestLatestRun(t *testing.T) {
	repo := history.NewMemoryRepository(10, 0)
	app := newApp(t, repo, &fakeTrigger{}, nil)

	resp, _ := do(t, app, http.MethodGet, "/api/v1/runs/latest")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}

	_ = repo.Save(context.Background(), extract.Summary{RunID: "run-1", Status: extract.StatusCompleted, StartedAt: time.Now()})

	resp, body := do(t, app, http.MethodGet, "/api/v1/runs/latest")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var sum extract.Summary
	if err := json.Unmarshal([]byte(body), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.RunID != "run-1" || sum.Status != extract.StatusCompleted {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

// TestListLimitValidation verifies that the list endpoint enforces the 1-100 range
// for the `limit` query parameter.
func TestListLimitValidation(t *testing.T) {
	app := newApp(t, history.NewMemoryRepository(10, 0), &fakeTrigger{}, nil)

	for _, target := range []string{
		"/api/v1/runs?limit=0",
		"/api/v1/runs?limit=101",
		"/api/v1/runs?limit=ten",
	} {
		resp, _ := do(t, app, http.MethodGet, target)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestListRuns(t *testing.T) {
	repo := history.NewMemoryRepository(0, 0)
	for _, id := range []string{"a", "b", "c"} {
		_ = repo.Save(context.Background(), extract.Summary{RunID: id})
	}
	app := newApp(t, repo, &fakeTrigger{}, nil)

	resp, body := do(t, app, http.MethodGet, "/api/v1/runs?limit=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var out struct {
		Limit int               `json:"limit"`
		Runs  []extract.Summary `json:"runs"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Limit != 2 || len(out.Runs) != 2 || out.Runs[0].RunID != "c" {
		t.Fatalf("unexpected response %+v", out)
	}

	resp, body = do(t, app, http.MethodGet, "/api/v1/runs")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"limit":10`) {
		t.Fatalf("expected default limit, got %d %s", resp.StatusCode, body)
	}
}

func TestTriggerRun(t *testing.T) {
	trig := &fakeTrigger{}
	app := newApp(t, history.NewMemoryRepository(10, 0), trig, nil)

	resp, _ := do(t, app, http.MethodPost, "/api/v1/runs")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, resp.StatusCode)
	}
	if trig.started != 1 {
		t.Fatalf("expected one run started, got %d", trig.started)
	}

	trig.err = runner.ErrRunInProgress
	resp, body := do(t, app, http.MethodPost, "/api/v1/runs")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, resp.StatusCode)
	}
	if !strings.Contains(body, `"error":true`) {
		t.Fatalf("expected JSON error body, got %s", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "noaa_extract_runs_total 1\n")
	})
	app := newApp(t, history.NewMemoryRepository(10, 0), &fakeTrigger{running: true}, metrics)

	resp, body := do(t, app, http.MethodGet, "/health")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"running":true`) {
		t.Fatalf("unexpected health response %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, app, http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "noaa_extract_runs_total 1") {
		t.Fatalf("unexpected metrics response %d %s", resp.StatusCode, body)
	}
}
