package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/sqlshape/pkg/analysis"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

const maxBodyBytes = 1 << 20

type sqlRequest struct {
	SQL string `json:"sql"`
}

// FingerprintResponse is the body of POST /api/fingerprint.
type FingerprintResponse struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Sentinel    bool                    `json:"sentinel"`
	Description fingerprint.Description `json:"description"`
	ParseError  string                  `json:"parse_error,omitempty"`
}

// UnitListItem is one row of GET /api/units.
type UnitListItem struct {
	Unit             string               `json:"orm_code"`
	Reference        string               `json:"reference_caller"`
	Reason           string               `json:"reason"`
	FingerprintCount int                  `json:"fingerprint_count"`
	Summary          analysis.UnitSummary `json:"summary"`
}

// UnitsResponse is the body of GET /api/units.
type UnitsResponse struct {
	LoadedAt time.Time      `json:"loaded_at"`
	Units    []UnitListItem `json:"units"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, loadedAt, gen, err := s.current()
	body := map[string]any{"status": "ok", "generation": gen}
	if !loadedAt.IsZero() {
		body["loaded_at"] = loadedAt
	}
	if err != nil {
		body["last_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSQL(w, r)
	if !ok {
		return
	}

	fp := s.fp.Fingerprint(req.SQL)
	desc, err := fingerprint.Describe(req.SQL)
	resp := FingerprintResponse{
		Fingerprint: fp,
		Sentinel:    fingerprint.IsSentinel(fp),
		Description: desc,
	}
	if err != nil {
		resp.ParseError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog configured")
		return
	}
	req, ok := decodeSQL(w, r)
	if !ok {
		return
	}

	res, err := s.catalog.Match(r.Context(), req.SQL)
	if err != nil {
		s.logger.Error("match failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.loaded(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.Summary(time.Now().UTC()))
}

func (s *Server) handleUnits(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.loaded(w)
	if !ok {
		return
	}
	_, loadedAt, _, _ := s.current()

	items := make([]UnitListItem, 0, len(res.Units))
	for _, ua := range res.Units {
		items = append(items, UnitListItem{
			Unit:             ua.Unit,
			Reference:        ua.Reference.Caller,
			Reason:           ua.Reference.Reason,
			FingerprintCount: len(ua.Reference.Fingerprints),
			Summary:          ua.Summary,
		})
	}
	writeJSON(w, http.StatusOK, UnitsResponse{LoadedAt: loadedAt, Units: items})
}

func (s *Server) handleUnit(w http.ResponseWriter, r *http.Request) {
	res, ok := s.loaded(w)
	if !ok {
		return
	}
	unit := chi.URLParam(r, "unit")
	ua := res.Unit(unit)
	if ua == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unit %q not found", unit))
		return
	}
	writeJSON(w, http.StatusOK, ua)
}

// handleEvents streams reload generations as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.notifier.subscribe()
	defer s.notifier.unsubscribe(ch)

	_, _, gen, _ := s.current()
	_, _ = fmt.Fprintf(w, "event: reload\ndata: %d\n\n", gen)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case gen := <-ch:
			_, _ = fmt.Fprintf(w, "event: reload\ndata: %d\n\n", gen)
			flusher.Flush()
		}
	}
}

// loaded returns the current analysis or writes 503.
func (s *Server) loaded(w http.ResponseWriter) (*analysis.Result, bool) {
	res, _, _, err := s.current()
	if res != nil {
		return res, true
	}
	msg := "no analysis loaded"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	writeError(w, http.StatusServiceUnavailable, msg)
	return nil, false
}

func decodeSQL(w http.ResponseWriter, r *http.Request) (sqlRequest, bool) {
	var req sqlRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return req, false
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(w, http.StatusBadRequest, "sql is required")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
