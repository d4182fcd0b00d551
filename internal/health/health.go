// Package health provides the diagnostics HTTP surface of a chat session.
//
// The package exposes these endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when all registered
//     [Checker] functions pass. The tool server session state is the usual
//     checker.
//   - /toolz: per-tool latency percentiles and error rates of the session.
//   - /metrics: Prometheus scrape endpoint, when a metrics handler is given.
//
// Health responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrWong99/mcpchat/internal/mcp"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is healthy and an error describing the failure otherwise.
type Checker struct {
	// Name appears as a key in the JSON response (e.g. "mcp:weather").
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// SessionState is the read-only view of a tool server session that
// readiness needs. [mcp.Session] satisfies it.
type SessionState interface {
	ServerName() string
	Err() error
}

// SessionChecker returns a Checker that reports whether s is still usable.
// It reads the session's local state only; no request is sent to the server,
// so the probe never shares the connection with the chat loop.
func SessionChecker(s SessionState) Checker {
	return Checker{
		Name:  "mcp:" + s.ServerName(),
		Check: func(context.Context) error { return s.Err() },
	}
}

// StatsSource reports per-tool call statistics. [mcp.Session] satisfies it.
type StatsSource interface {
	Stats() []mcp.ToolStats
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// toolStat is the JSON shape of one /toolz entry.
type toolStat struct {
	Name      string  `json:"name"`
	Calls     int     `json:"calls"`
	P50Ms     int64   `json:"p50_ms"`
	P99Ms     int64   `json:"p99_ms"`
	ErrorRate float64 `json:"error_rate"`
}

// Handler serves the diagnostics endpoints. It is safe for concurrent use;
// the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
	stats    StatsSource
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request, in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// WithStats makes /toolz report the statistics of src.
func (h *Handler) WithStats(src StatsSource) *Handler {
	h.stats = src
	return h
}

// Healthz is a liveness probe that always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every registered [Checker] passes. Each
// checker gets a context with a [checkTimeout] deadline derived from the
// request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Toolz lists per-tool statistics, sorted by tool name. Without a stats
// source the list is empty.
func (h *Handler) Toolz(w http.ResponseWriter, _ *http.Request) {
	out := []toolStat{}
	if h.stats != nil {
		for _, s := range h.stats.Stats() {
			out = append(out, toolStat{
				Name:      s.Name,
				Calls:     s.CallCount,
				P50Ms:     s.P50Ms,
				P99Ms:     s.P99Ms,
				ErrorRate: s.ErrorRate,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Register adds the diagnostics routes to mux. metrics may be nil.
func (h *Handler) Register(mux *http.ServeMux, metrics http.Handler) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /toolz", h.Toolz)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
