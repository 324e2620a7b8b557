package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/isdelr/records-be/internal/database"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds request bodies, inline snapshots included.
const maxBodyBytes = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// statusFor maps an unexpected service error to a status code. An
// unreachable database is reported as temporarily unavailable.
func statusFor(err error) int {
	if errors.Is(err, database.ErrNotConnected) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
