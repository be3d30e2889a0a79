package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"vidstream/internal/domain"
)

// writeJSON сериализует ответ с нужным статусом
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

// writeServiceError переводит ошибки сервисного слоя в HTTP статусы
func writeServiceError(w http.ResponseWriter, err error) {
	var incomplete *domain.IncompleteUploadError
	if errors.As(err, &incomplete) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":           "incomplete_upload",
			"missing_indices": incomplete.Missing,
		})
		return
	}

	var failed *domain.UploadFailedError
	if errors.As(err, &failed) {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":       "upload_failed",
			"chunk_index": failed.Index,
			"attempts":    failed.Attempts,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrRangeNotSatisfiable):
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
	case errors.Is(err, domain.ErrStorageUnavailable):
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrAccessDenied):
		http.Error(w, "Access denied", http.StatusForbidden)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
