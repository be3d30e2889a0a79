package handler

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vidstream/internal/auth"
	"vidstream/internal/service"
	"vidstream/internal/stream"
)

type VideoHandler struct {
	uploadService *service.UploadService
	videoService  *service.VideoService
	responder     *stream.Responder
	streamCap     int64
}

func NewVideoHandler(
	uploadService *service.UploadService,
	videoService *service.VideoService,
	responder *stream.Responder,
	streamCap int64,
) *VideoHandler {
	return &VideoHandler{
		uploadService: uploadService,
		videoService:  videoService,
		responder:     responder,
		streamCap:     streamCap,
	}
}

// GetManifest отдает манифест для инициализации плеера
func (h *VideoHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyRequest(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionUUID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	manifest, err := h.uploadService.GetManifest(r.Context(), sessionUUID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, manifest)
}

// GetInfo отдает сводку по видео
func (h *VideoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyRequest(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionUUID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	info, err := h.videoService.Info(r.Context(), sessionUUID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// StreamVideo отдает видео по чанкам с поддержкой Range-запросов
func (h *VideoHandler) StreamVideo(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyRequest(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionUUID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	manifest, err := h.uploadService.GetManifest(r.Context(), sessionUUID)
	if err != nil {
		log.Printf("[Stream] Failed to get manifest for %s: %v", sessionUUID, err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", manifest.MIMEType)
	w.Header().Set("Accept-Ranges", "bytes")

	var start, end int64
	rangeHeader := r.Header.Get("Range")

	if rangeHeader == "" {
		// Целый объект: поток чанк за чанком без ограничения размера
		start = 0
		end = manifest.TotalSizeBytes - 1
		w.Header().Set("Content-Length", strconv.FormatInt(manifest.TotalSizeBytes, 10))
	} else {
		ranges, err := parseRange(rangeHeader, manifest.TotalSizeBytes)
		if err != nil {
			http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if len(ranges) != 1 {
			http.Error(w, "Multiple ranges not supported", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		start = ranges[0][0]
		end = ranges[0][1]

		// Очень широкий диапазон укорачиваем: клиент доберет
		// остаток следующими range-запросами
		if h.streamCap > 0 && end-start+1 > h.streamCap {
			end = start + h.streamCap - 1
		}
	}

	plan, err := stream.BuildPlan(manifest, start, end)
	if err != nil {
		log.Printf("[Stream] Failed to build plan for %s: %v", sessionUUID, err)
		writeServiceError(w, err)
		return
	}

	size := end - start + 1
	if rangeHeader != "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, manifest.TotalSizeBytes))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	written, err := h.responder.Stream(r.Context(), w, sessionUUID, plan, size)
	if err != nil {
		// Заголовки уже ушли: передача просто обрывается,
		// клиент перезапросит остаток диапазона
		log.Printf("[Stream] Aborted for %s after %d byte(s): %v", sessionUUID, written, err)
		return
	}

	log.Printf("[Stream] Served %d byte(s) for %s (%d-%d)", written, sessionUUID, start, end)
}

// Вспомогательная функция для парсинга Range заголовка
func parseRange(rangeHeader string, fileSize int64) ([][2]int64, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return nil, fmt.Errorf("invalid range format")
	}

	rangeHeader = strings.TrimPrefix(rangeHeader, "bytes=")
	var ranges [][2]int64

	for _, r := range strings.Split(rangeHeader, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}

		parts := strings.Split(r, "-")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid range format")
		}

		var start, end int64
		var err error

		if parts[0] == "" {
			// Suffix range: -N
			end, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, err
			}
			start = fileSize - end
			if start < 0 {
				start = 0
			}
			end = fileSize - 1
		} else {
			// Standard range: N-M
			start, err = strconv.ParseInt(parts[0], 10, 64)
			if err != nil {
				return nil, err
			}

			if parts[1] == "" {
				// Range: N-
				end = fileSize - 1
			} else {
				end, err = strconv.ParseInt(parts[1], 10, 64)
				if err != nil {
					return nil, err
				}
				// Хвост за концом объекта обрезается, а не отвергается
				if end >= fileSize {
					end = fileSize - 1
				}
			}
		}

		if start < 0 || end < 0 || start > end || start >= fileSize {
			return nil, fmt.Errorf("invalid range values")
		}

		ranges = append(ranges, [2]int64{start, end})
	}

	return ranges, nil
}
