package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ListingConverter/internal/ports"
	"ListingConverter/internal/stream"
	"ListingConverter/internal/usecase"
)

type fakeConverter struct {
	mu   sync.Mutex
	opts []usecase.ConvertOptions
}

func (f *fakeConverter) record(opts usecase.ConvertOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
}

func (f *fakeConverter) lastOptions() usecase.ConvertOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts[len(f.opts)-1]
}

func (f *fakeConverter) result(url string) *usecase.ItemResult {
	return &usecase.ItemResult{SourceURL: url, Status: usecase.StatusCompleted, Step: usecase.StepComplete}
}

func (f *fakeConverter) ConvertOne(_ context.Context, url string, opts usecase.ConvertOptions, _ usecase.Hooks) *usecase.ItemResult {
	f.record(opts)
	return f.result(url)
}

func (f *fakeConverter) ConvertMany(ctx context.Context, urls []string, opts usecase.ConvertOptions, hooks usecase.Hooks) *usecase.BatchProgress {
	f.record(opts)
	if hooks == nil {
		hooks = usecase.HookFuncs{}
	}
	progress := &usecase.BatchProgress{Total: len(urls)}
	for i, url := range urls {
		if hooks.Cancelled() {
			break
		}
		hooks.OnItemStarted(ctx, i, url)
		hooks.OnStep(ctx, i, url, usecase.StepFetching)
		res := f.result(url)
		progress.Results = append(progress.Results, res)
		progress.Completed++
		hooks.OnItemCompleted(ctx, i, url, true, res, "")
	}
	return progress
}

type fakeHistory struct {
	mu      sync.Mutex
	filter  ports.ConversionFilter
	records []ports.ConversionRecord
}

func (f *fakeHistory) lastFilter() ports.ConversionFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter
}

func (f *fakeHistory) SaveConversion(context.Context, ports.ConversionRecord) error {
	return nil
}

func (f *fakeHistory) ListConversions(_ context.Context, filter ports.ConversionFilter) ([]ports.ConversionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	return f.records, nil
}

type harness struct {
	srv       *httptest.Server
	converter *fakeConverter
	manager   *stream.Manager
}

func newHarness(t *testing.T, history ports.ConversionRepository) *harness {
	t.Helper()

	conv := &fakeConverter{}
	manager := stream.NewManager(stream.NewMemoryStore())
	coordinator := usecase.NewStreamCoordinator(usecase.CoordinatorDeps{Runner: conv, Manager: manager})
	srv := httptest.NewServer(NewServer(Deps{
		Converter: conv,
		Streams:   coordinator,
		Jobs:      manager,
		History:   history,
		MaxBatch:  3,
	}))
	t.Cleanup(srv.Close)
	return &harness{srv: srv, converter: conv, manager: manager}
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "seller-7")
	resp, err := h.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(raw)
}

func TestConvert(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	resp, body := h.do(t, http.MethodPost, "/api/v1/conversions", `{"url":"https://www.amazon.com/dp/B0TEST1234","publish":true,"sell_price":24.5}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["url"] != "https://www.amazon.com/dp/B0TEST1234" || got["status"] != "completed" {
		t.Fatalf("unexpected body: %s", body)
	}

	opts := h.converter.lastOptions()
	if opts.ActorID != "seller-7" || !opts.Publish || opts.PriceOverride == nil || *opts.PriceOverride != 24.5 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestPreviewNeverPublishes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	resp, body := h.do(t, http.MethodPost, "/api/v1/conversions/preview", `{"url":"https://www.walmart.com/ip/123","publish":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if h.converter.lastOptions().Publish {
		t.Fatal("preview must not publish")
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	cases := []struct {
		name, path, body string
		want             int
	}{
		{"bad json", "/api/v1/conversions", `{"url":`, http.StatusBadRequest},
		{"empty body", "/api/v1/conversions", ``, http.StatusBadRequest},
		{"missing url", "/api/v1/conversions", `{"publish":true}`, http.StatusUnprocessableEntity},
		{"negative price", "/api/v1/conversions", `{"url":"https://www.amazon.com/dp/B0TEST1234","sell_price":-1}`, http.StatusUnprocessableEntity},
		{"no urls", "/api/v1/conversions/bulk", `{"urls":[]}`, http.StatusUnprocessableEntity},
		{"too many urls", "/api/v1/conversions/bulk", `{"urls":["a","b","c","d"]}`, http.StatusUnprocessableEntity},
		{"blank url", "/api/v1/conversions/bulk/stream", `{"urls":["a"," "]}`, http.StatusUnprocessableEntity},
		{"bulk negative price", "/api/v1/conversions/bulk/stream", `{"urls":["a"],"sell_price":-0.01}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		resp, body := h.do(t, http.MethodPost, tc.path, tc.body)
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: status %d, want %d (%s)", tc.name, resp.StatusCode, tc.want, body)
		}
		if !strings.Contains(body, `"detail"`) {
			t.Fatalf("%s: error body lacks detail: %s", tc.name, body)
		}
	}
}

func TestBulk(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	resp, body := h.do(t, http.MethodPost, "/api/v1/conversions/bulk", `{"urls":["https://www.amazon.com/dp/B0A","https://www.amazon.com/dp/B0B"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var got struct {
		Total       int               `json:"total"`
		Completed   int               `json:"completed"`
		Pending     int               `json:"pending"`
		ProgressPct float64           `json:"progress_pct"`
		Results     []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 2 || got.Completed != 2 || got.Pending != 0 || got.ProgressPct != 100 || len(got.Results) != 2 {
		t.Fatalf("unexpected progress: %s", body)
	}
}

func TestBulkStream(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	resp, body := h.do(t, http.MethodPost, "/api/v1/conversions/bulk/stream", `{"urls":["https://www.amazon.com/dp/B0A","https://www.amazon.com/dp/B0B"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	for header, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	jobID := resp.Header.Get("X-Job-ID")
	if jobID == "" {
		t.Fatal("missing X-Job-ID header")
	}

	var kinds []string
	for _, line := range strings.Split(body, "\n") {
		if kind, ok := strings.CutPrefix(line, "event: "); ok {
			kinds = append(kinds, kind)
		}
	}
	want := []string{
		"job_started",
		"item_started", "item_step", "item_completed", "job_progress",
		"item_started", "item_step", "item_completed", "job_progress",
		"job_completed",
	}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("event order:\n got %v\nwant %v", kinds, want)
	}
	if !strings.Contains(body, `"job_id":"`+jobID+`"`) {
		t.Fatalf("events must carry the job id %s", jobID)
	}

	// The job is released once the stream ends.
	resp, _ = h.do(t, http.MethodGet, "/api/v1/conversions/jobs/"+jobID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("finished job still visible: %d", resp.StatusCode)
	}
	if opts := h.converter.lastOptions(); opts.ActorID != "seller-7" {
		t.Fatalf("actor not propagated: %+v", opts)
	}
}

func TestJobStatusAndCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	jobID, err := h.manager.CreateJob(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	resp, body := h.do(t, http.MethodGet, "/api/v1/conversions/jobs/"+jobID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var snap map[string]any
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap["job_id"] != jobID || snap["pending"] != float64(2) || snap["is_cancelled"] != false {
		t.Fatalf("unexpected snapshot: %s", body)
	}

	resp, body = h.do(t, http.MethodPost, "/api/v1/conversions/jobs/"+jobID+"/cancel", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", resp.StatusCode, body)
	}
	var cancelled cancelResponse
	if err := json.Unmarshal([]byte(body), &cancelled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cancelled.JobID != jobID || cancelled.Status != "cancelling" || cancelled.Message == "" {
		t.Fatalf("unexpected cancel body: %s", body)
	}

	resp, _ = h.do(t, http.MethodPost, "/api/v1/conversions/jobs/"+jobID+"/cancel", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second cancel must 404, got %d", resp.StatusCode)
	}

	for _, path := range []string{"/api/v1/conversions/jobs/nope", "/api/v1/conversions/jobs/nope/cancel"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "/cancel") {
			method = http.MethodPost
		}
		if resp, _ := h.do(t, method, path, ""); resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s %s: status %d, want 404", method, path, resp.StatusCode)
		}
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{records: []ports.ConversionRecord{{
		SourceURL:         "https://www.amazon.com/dp/B0A",
		Status:            "completed",
		Step:              "complete",
		MarketplaceItemID: "9001",
		StartedAt:         now,
		CompletedAt:       now,
	}}}
	h := newHarness(t, history)

	resp, body := h.do(t, http.MethodGet, "/api/v1/conversions?status=completed&limit=10&offset=5", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if got := history.lastFilter(); got != (ports.ConversionFilter{ActorID: "seller-7", Status: "completed", Limit: 10, Offset: 5}) {
		t.Fatalf("unexpected filter: %+v", got)
	}
	if !strings.Contains(body, `"listing_id":"9001"`) || !strings.Contains(body, `"error_message":null`) || !strings.Contains(body, `"total":1`) {
		t.Fatalf("unexpected body: %s", body)
	}

	if resp, _ := h.do(t, http.MethodGet, "/api/v1/conversions?limit=0", ""); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("limit=0 must be rejected, got %d", resp.StatusCode)
	}
}

func TestHistoryUnavailable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	if resp, _ := h.do(t, http.MethodGet, "/api/v1/conversions", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a repository, got %d", resp.StatusCode)
	}
}
