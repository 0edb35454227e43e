package handlers

import (
	"net/http"

	httpx "github.com/dropDatabas3/vetsecure/internal/http"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
)

type Health struct {
	repo core.Repository
}

func NewHealth(repo core.Repository) *Health { return &Health{repo: repo} }

// GET /healthz — liveness simple.
func (h *Health) Live(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — readiness: el store tiene que responder.
func (h *Health) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "not_ready", "store no disponible", httpx.ErrCodeInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
