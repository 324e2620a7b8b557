package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/isdelr/records-be/internal/models"
	"github.com/isdelr/records-be/internal/services"
	"github.com/rs/zerolog/log"
)

// RecordHandler serves the org-record collections.
type RecordHandler struct {
	sources map[string]services.CollectionSource
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(sources []services.CollectionSource) *RecordHandler {
	byName := make(map[string]services.CollectionSource, len(sources))
	for _, src := range sources {
		byName[src.Name()] = src
	}
	return &RecordHandler{sources: byName}
}

func (h *RecordHandler) source(w http.ResponseWriter, r *http.Request) (services.CollectionSource, bool) {
	name := chi.URLParam(r, "collection")
	src, ok := h.sources[name]
	if !ok {
		http.Error(w, "Unknown collection", http.StatusNotFound)
	}
	return src, ok
}

// List returns every record of a collection in insertion order.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	src, ok := h.source(w, r)
	if !ok {
		return
	}
	records, err := src.List(r.Context())
	if err != nil {
		log.Error().Err(err).Str("collection", src.Name()).Msg("Failed to list records")
		http.Error(w, "Failed to list records", statusFor(err))
		return
	}
	if records == nil {
		records = []models.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Create inserts one record. Collections keyed by "id" get a generated id
// when the client omits it.
func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	src, ok := h.source(w, r)
	if !ok {
		return
	}

	var fields map[string]json.RawMessage
	if err := decodeJSON(w, r, &fields); err != nil || fields == nil {
		http.Error(w, "Request body must be a JSON object", http.StatusBadRequest)
		return
	}
	if key := services.CollectionKeys[src.Name()]; key == "id" {
		if _, present := fields[key]; !present {
			fields[key], _ = json.Marshal(uuid.New().String())
		}
	}
	record, err := json.Marshal(fields)
	if err != nil {
		http.Error(w, "Invalid record", http.StatusBadRequest)
		return
	}

	created, err := src.Create(r.Context(), record)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, created)
	case services.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case services.IsDuplicateKey(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error().Err(err).Str("collection", src.Name()).Msg("Failed to create record")
		http.Error(w, "Failed to create record", statusFor(err))
	}
}

// Clear removes every record of a collection.
func (h *RecordHandler) Clear(w http.ResponseWriter, r *http.Request) {
	src, ok := h.source(w, r)
	if !ok {
		return
	}
	if err := src.Clear(r.Context()); err != nil {
		log.Error().Err(err).Str("collection", src.Name()).Msg("Failed to clear collection")
		http.Error(w, "Failed to clear collection", statusFor(err))
		return
	}
	log.Info().Str("collection", src.Name()).Msg("Collection cleared")
	w.WriteHeader(http.StatusNoContent)
}
