package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/benchsubmit/pkg/records"
	"github.com/ethpandaops/benchsubmit/pkg/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListBuilds returns the most recent builds, newest first.
func (s *server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"limit must be between 1 and 1000"})

			return
		}

		limit = n
	}

	builds, err := s.store.ListBuilds(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list builds")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if builds == nil {
		builds = []store.BenchmarkBuild{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

// handleGetBuild returns a single build by identifier.
func (s *server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	build, ok := s.loadBuild(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, build)
}

// handleListTests returns the test names that have results for a build.
func (s *server) handleListTests(w http.ResponseWriter, r *http.Request) {
	build, ok := s.loadBuild(w, r)
	if !ok {
		return
	}

	tests, err := s.store.ListBenchmarkTests(r.Context(), build.BuildID)
	if err != nil {
		s.log.WithError(err).Error("Failed to list tests")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if tests == nil {
		tests = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"tests": tests})
}

// handleLatency returns the latency rows of a build, optionally filtered
// by the test query parameter.
func (s *server) handleLatency(w http.ResponseWriter, r *http.Request) {
	build, ok := s.loadBuild(w, r)
	if !ok {
		return
	}

	rows, err := s.store.ListLatencyResults(
		r.Context(), build.BuildID, r.URL.Query().Get("test"),
	)
	if err != nil {
		s.log.WithError(err).Error("Failed to list latency results")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if rows == nil {
		rows = []store.LatencyResult{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"latency": rows})
}

// handleThroughput returns the throughput rows of a build, optionally
// filtered by the test query parameter.
func (s *server) handleThroughput(w http.ResponseWriter, r *http.Request) {
	build, ok := s.loadBuild(w, r)
	if !ok {
		return
	}

	rows, ok := s.listThroughput(w, r, build.BuildID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"throughput": rows})
}

// handleThroughputSummary returns per-test throughput statistics.
func (s *server) handleThroughputSummary(
	w http.ResponseWriter, r *http.Request,
) {
	build, ok := s.loadBuild(w, r)
	if !ok {
		return
	}

	rows, ok := s.listThroughput(w, r, build.BuildID)
	if !ok {
		return
	}

	samples := make(map[string][]float64, 8)
	for _, row := range rows {
		samples[row.BenchmarkTest] = append(
			samples[row.BenchmarkTest], float64(row.OpsPerSec),
		)
	}

	summaries := make(map[string]records.ThroughputSummary, len(samples))
	for test, ops := range samples {
		summaries[test] = records.SummarizeThroughput(ops)
	}

	writeJSON(w, http.StatusOK, map[string]any{"summary": summaries})
}

func (s *server) listThroughput(
	w http.ResponseWriter, r *http.Request, buildID int64,
) ([]store.ThroughputResult, bool) {
	rows, err := s.store.ListThroughputResults(
		r.Context(), buildID, r.URL.Query().Get("test"),
	)
	if err != nil {
		s.log.WithError(err).Error("Failed to list throughput results")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return nil, false
	}

	if rows == nil {
		rows = []store.ThroughputResult{}
	}

	return rows, true
}

// loadBuild resolves the identifier URL parameter. It writes the error
// response itself and reports false when the handler should stop.
func (s *server) loadBuild(
	w http.ResponseWriter, r *http.Request,
) (*store.BenchmarkBuild, bool) {
	identifier := chi.URLParam(r, "identifier")

	build, err := s.store.GetBuildByIdentifier(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"build not found"})

			return nil, false
		}

		s.log.WithError(err).
			WithField("identifier", identifier).
			Error("Failed to get build")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return nil, false
	}

	return build, true
}
