package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ListingConverter/internal/ports"
	"ListingConverter/internal/stream"
	"ListingConverter/internal/usecase"
)

type convertRequest struct {
	URL       string   `json:"url"`
	Publish   bool     `json:"publish"`
	SellPrice *float64 `json:"sell_price"`
}

type bulkRequest struct {
	URLs      []string `json:"urls"`
	Publish   bool     `json:"publish"`
	SellPrice *float64 `json:"sell_price"`
}

type cancelResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type historyEntry struct {
	SourceURL       string    `json:"url"`
	Source          string    `json:"source_marketplace"`
	SourceProductID string    `json:"source_product_id"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	Step            string    `json:"step"`
	SellPrice       float64   `json:"sell_price"`
	NetProfit       float64   `json:"net_profit"`
	Violations      []string  `json:"violations"`
	ListingID       *string   `json:"listing_id"`
	ErrorMessage    *string   `json:"error_message"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

type historyResponse struct {
	Conversions []historyEntry `json:"conversions"`
	Total       int            `json:"total"`
}

func validSellPrice(w http.ResponseWriter, price *float64) bool {
	if price != nil && *price < 0 {
		writeError(w, http.StatusUnprocessableEntity, "sell_price must be >= 0")
		return false
	}
	return true
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusUnprocessableEntity, "url is required")
		return
	}
	if !validSellPrice(w, req.SellPrice) {
		return
	}

	result := s.converter.ConvertOne(r.Context(), req.URL, usecase.ConvertOptions{
		ActorID:       actorID(r),
		Publish:       req.Publish,
		PriceOverride: req.SellPrice,
	}, nil)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusUnprocessableEntity, "url is required")
		return
	}

	result := s.converter.ConvertOne(r.Context(), req.URL, usecase.ConvertOptions{ActorID: actorID(r)}, nil)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) decodeBulk(w http.ResponseWriter, r *http.Request) (bulkRequest, bool) {
	var req bulkRequest
	if !decodeBody(w, r, &req) {
		return req, false
	}
	switch n := len(req.URLs); {
	case n == 0:
		writeError(w, http.StatusUnprocessableEntity, "urls must contain at least 1 item")
		return req, false
	case n > s.maxBatch:
		writeError(w, http.StatusUnprocessableEntity, "urls must contain at most %d items", s.maxBatch)
		return req, false
	}
	for i, u := range req.URLs {
		req.URLs[i] = strings.TrimSpace(u)
		if req.URLs[i] == "" {
			writeError(w, http.StatusUnprocessableEntity, "urls[%d] is empty", i)
			return req, false
		}
	}
	if !validSellPrice(w, req.SellPrice) {
		return req, false
	}
	return req, true
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeBulk(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	hooks := usecase.HookFuncs{CancelCheck: func() bool { return ctx.Err() != nil }}
	progress := s.converter.ConvertMany(ctx, req.URLs, usecase.ConvertOptions{
		ActorID:       actorID(r),
		Publish:       req.Publish,
		PriceOverride: req.SellPrice,
	}, hooks)
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleBulkStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeBulk(w, r)
	if !ok {
		return
	}

	session, err := s.streams.Open(r.Context(), usecase.BatchRequest{
		URLs: req.URLs,
		Options: usecase.ConvertOptions{
			ActorID:       actorID(r),
			Publish:       req.Publish,
			PriceOverride: req.SellPrice,
		},
	})
	if err != nil {
		s.logger.Error("open batch stream", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot start batch: %v", err)
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive any server-wide write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Job-ID", session.JobID())
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	log := s.logger.With("job_id", session.JobID())
	log.Info("batch stream opened", "total", len(req.URLs))

	err = session.Forward(r.Context(), func(block string) error {
		if _, err := io.WriteString(w, block); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err != nil {
		log.Info("batch stream closed by client", "error", err)
		return
	}
	log.Info("batch stream finished")
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.jobs.GetJob(r.Context(), id)
	switch {
	case errors.Is(err, stream.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "Job '%s' not found (may have been cleaned up)", id)
		return
	case err != nil:
		s.logger.Error("get job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "cannot load job: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.jobs.CancelJob(r.Context(), id) {
		writeError(w, http.StatusNotFound, "Job '%s' not found or already completed", id)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		JobID:   id,
		Status:  "cancelling",
		Message: "Job will stop after current item completes",
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "conversion history is not configured")
		return
	}

	q := r.URL.Query()
	limit, err := queryUint(q.Get("limit"), 50)
	if err != nil || limit < 1 || limit > maxHistoryPage {
		writeError(w, http.StatusUnprocessableEntity, "limit must be between 1 and %d", maxHistoryPage)
		return
	}
	offset, err := queryUint(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "offset must be >= 0")
		return
	}

	records, err := s.history.ListConversions(r.Context(), ports.ConversionFilter{
		ActorID: actorID(r),
		Status:  q.Get("status"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.logger.Error("list conversions", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot list conversions")
		return
	}

	resp := historyResponse{Conversions: make([]historyEntry, 0, len(records)), Total: len(records)}
	for _, rec := range records {
		resp.Conversions = append(resp.Conversions, toHistoryEntry(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryUint(raw string, def uint64) (uint64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func toHistoryEntry(rec ports.ConversionRecord) historyEntry {
	entry := historyEntry{
		SourceURL:       rec.SourceURL,
		Source:          string(rec.Source),
		SourceProductID: rec.SourceProductID,
		Title:           rec.Title,
		Status:          rec.Status,
		Step:            rec.Step,
		SellPrice:       rec.SellPrice,
		NetProfit:       rec.NetProfit,
		Violations:      rec.Violations,
		StartedAt:       rec.StartedAt,
		CompletedAt:     rec.CompletedAt,
	}
	if entry.Violations == nil {
		entry.Violations = []string{}
	}
	if rec.MarketplaceItemID != "" {
		entry.ListingID = &rec.MarketplaceItemID
	}
	if rec.ErrorMessage != "" {
		entry.ErrorMessage = &rec.ErrorMessage
	}
	return entry
}
