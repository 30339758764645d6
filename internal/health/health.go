// Package health serves the gateway's liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz runs the
// registered probes — in voxgate these are the speech backends (parakeet, the
// TTS providers) — and answers 503 with a per-probe breakdown when any of
// them is down, so an orchestrator can hold traffic while the backends warm
// up.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds one backend probe. Speech backends answer their health
// endpoints in milliseconds when up; anything slower counts as down.
const probeTimeout = 5 * time.Second

// Checker probes one dependency by name. Check returns nil when the
// dependency can serve and an error describing why not otherwise; it must
// honor ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// report is the JSON body of both probes: "ok" or "fail" overall, plus one
// entry per named check on /readyz.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the two probe routes. The checker set is fixed at
// construction; the handler itself is stateless and safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a Handler over the given backend probes. /readyz evaluates them
// in registration order.
func New(checkers ...Checker) *Handler {
	h := &Handler{checkers: make([]Checker, len(checkers))}
	copy(h.checkers, checkers)
	return h
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz answers the liveness probe. Reaching this handler at all means the
// process is alive, so it is unconditionally 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: "ok"})
}

// Readyz answers the readiness probe: 200 when every backend probe passes,
// 503 otherwise. Each probe runs under its own probeTimeout deadline derived
// from the request context, so one hung backend cannot stall the rest
// indefinitely.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = "ok"
	}

	respond(w, code, rep)
}

func respond(w http.ResponseWriter, code int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
