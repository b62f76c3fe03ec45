// Package health serves the status checks of the assistant and turns the same
// backend checks into the warnings shown at startup and after a settings
// change.
//
// Two endpoints are exposed:
//
//   - /healthz: liveness, always 200 OK.
//   - /readyz: readiness, 200 only when every registered [Checker] passes.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map holding the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Checker is one named backend check.
type Checker struct {
	// Name labels the check in the JSON response (e.g. "llm", "tts").
	Name string

	// Warning is the message shown to the user when the check fails. When
	// empty the error text is used.
	Warning string

	// Check returns nil when the backend is usable. It must respect ctx.
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction and the handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] over checkers.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Run evaluates every checker concurrently, each under [checkTimeout], and
// returns the errors indexed like the checker list.
func (h *Handler) Run(ctx context.Context) []error {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Warnings runs the checks and returns one user-facing line per failure, in
// checker order.
func (h *Handler) Warnings(ctx context.Context) []string {
	var out []string
	for i, err := range h.Run(ctx) {
		if err == nil {
			continue
		}
		msg := h.checkers[i].Warning
		if msg == "" {
			msg = err.Error()
		}
		out = append(out, msg)
	}
	return out
}

// Healthz is the liveness check.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every checker passes.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true
	for i, err := range h.Run(r.Context()) {
		if err != nil {
			checks[h.checkers[i].Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[h.checkers[i].Name] = "ok"
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

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
