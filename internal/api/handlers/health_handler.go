package handlers

import "net/http"

// ConnectionState reports whether the storage engine is reachable.
type ConnectionState interface {
	Connected() bool
}

// HealthHandler answers liveness probes. It is served even while the
// database is unreachable.
type HealthHandler struct {
	conn ConnectionState
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(conn ConnectionState) *HealthHandler {
	return &HealthHandler{conn: conn}
}

// Get reports the service and database status.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.conn.Connected() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "connected"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "disconnected"})
}
