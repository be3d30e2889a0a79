package handler

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vidstream/internal/auth"
	"vidstream/internal/service"
)

type UploadHandler struct {
	uploadService *service.UploadService
}

func NewUploadHandler(uploadService *service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// InitUploadRequest — метаданные файла при инициализации
type InitUploadRequest struct {
	Name           string `json:"name"`
	MIMEType       string `json:"mime_type"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
	Folder         string `json:"folder,omitempty"`
}

// InitUploadResponse возвращает параметры созданной сессии
type InitUploadResponse struct {
	SessionUUID    uuid.UUID `json:"session_uuid"`
	TotalChunks    int       `json:"total_chunks"`
	ChunkSizeBytes int64     `json:"chunk_size_bytes"`
}

// ChunkUploadResponse — результат приема одного чанка
type ChunkUploadResponse struct {
	ChunkIndex      int     `json:"chunk_index"`
	Status          string  `json:"status"` // uploaded | already_uploaded
	ProgressPercent float64 `json:"progress_percent"`
	IsComplete      bool    `json:"is_complete"`
}

// InitUpload создает сессию чанковой загрузки
func (h *UploadHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.uploadService.InitSession(r.Context(), userID, service.InitSessionRequest{
		Name:           req.Name,
		MIMEType:       req.MIMEType,
		TotalSizeBytes: req.TotalSizeBytes,
		Folder:         req.Folder,
	})
	if err != nil {
		log.Printf("[Upload] Failed to init session: %v", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, InitUploadResponse{
		SessionUUID:    session.UUID,
		TotalChunks:    session.TotalChunks,
		ChunkSizeBytes: session.ChunkSizeBytes,
	})
}

// UploadChunk принимает один чанк из multipart-формы:
// session_id, chunk_index и файловое поле chunk
func (h *UploadHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyRequest(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(100 << 20); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	sessionUUID, err := uuid.Parse(r.FormValue("session_id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	chunkIndex, err := strconv.Atoi(r.FormValue("chunk_index"))
	if err != nil {
		http.Error(w, "Invalid chunk index", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["chunk"]
	if len(files) == 0 {
		http.Error(w, "No chunk uploaded", http.StatusBadRequest)
		return
	}

	file, err := files[0].Open()
	if err != nil {
		log.Printf("[Upload] Error opening chunk part: %v", err)
		http.Error(w, "Failed to process chunk", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("[Upload] Error reading chunk part: %v", err)
		http.Error(w, "Failed to process chunk", http.StatusInternalServerError)
		return
	}

	receipt, already, session, err := h.uploadService.IngestChunk(r.Context(), sessionUUID, chunkIndex, data)
	if err != nil {
		log.Printf("[Upload] Failed to ingest chunk %d of %s: %v", chunkIndex, sessionUUID, err)
		writeServiceError(w, err)
		return
	}

	status := "uploaded"
	if already {
		status = "already_uploaded"
	}

	writeJSON(w, http.StatusOK, ChunkUploadResponse{
		ChunkIndex:      receipt.Index,
		Status:          status,
		ProgressPercent: session.Progress(),
		IsComplete:      session.IsComplete(),
	})
}

// CompleteUpload завершает сессию и возвращает манифест
func (h *UploadHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyRequest(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sessionUUID, err := uuid.Parse(req.SessionID)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	manifest, err := h.uploadService.Complete(r.Context(), sessionUUID)
	if err != nil {
		log.Printf("[Upload] Failed to complete session %s: %v", sessionUUID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, manifest)
}

// GetProgress возвращает состояние загрузки
func (h *UploadHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyRequest(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionUUID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	progress, err := h.uploadService.Progress(r.Context(), sessionUUID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// AbortUpload удаляет незавершенную сессию вместе с чанками.
// Завершенную сессию этим путем удалить нельзя
func (h *UploadHandler) AbortUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionUUID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	if err := h.uploadService.Abort(r.Context(), sessionUUID, userID); err != nil {
		log.Printf("[Upload] Failed to abort session %s: %v", sessionUUID, err)
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
