package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

type healthHandler struct {
	pool *pgxpool.Pool
}

// health handles GET /healthz. The database probe is best effort: a
// degraded database still reports 200 with db "down", because the chat
// path survives storage faults by design.
func (h *healthHandler) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if h.pool != nil {
		if err := h.pool.Ping(r.Context()); err != nil {
			status["db"] = "down"
		} else {
			status["db"] = "up"
		}
	}
	writeJSON(w, http.StatusOK, status)
}
