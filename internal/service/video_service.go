package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"vidstream/internal/domain"
	"vidstream/internal/service/s3"
)

// Длительность из ffprobe доступна только когда метаданные лежат
// в начале файла (faststart mp4). Для остальных случаев оцениваем
// по размеру и предполагаемому битрейту — оценка не авторитетна
const assumedBitrateBps = 8_000_000

type VideoService struct {
	uploads      *UploadService
	registry     SessionRegistry
	storage      s3.Storage
	probeEnabled bool
}

// VideoInfo — сводка по видео для клиента
type VideoInfo struct {
	SessionUUID       uuid.UUID `json:"session_uuid"`
	OriginalName      string    `json:"original_name"`
	MIMEType          string    `json:"mime_type"`
	TotalSizeBytes    int64     `json:"total_size_bytes"`
	TotalChunks       int       `json:"total_chunks"`
	IsComplete        bool      `json:"is_complete"`
	DurationSeconds   *float64  `json:"duration_seconds,omitempty"`
	DurationEstimated bool      `json:"duration_estimated,omitempty"`
}

func NewVideoService(uploads *UploadService, registry SessionRegistry, storage s3.Storage) *VideoService {
	// ffprobe опционален: без него остается только оценка по битрейту
	_, err := exec.LookPath("ffprobe")
	if err != nil {
		log.Printf("[VideoService] ffprobe not found, duration probing disabled: %v", err)
	}

	return &VideoService{
		uploads:      uploads,
		registry:     registry,
		storage:      storage,
		probeEnabled: err == nil,
	}
}

// Info возвращает сводку по сессии. Для завершенного видео добавляет
// длительность: сперва пробуем ffprobe по первому чанку, при неудаче
// оцениваем по размеру
func (s *VideoService) Info(ctx context.Context, sessionUUID uuid.UUID) (*VideoInfo, error) {
	session, err := s.registry.GetByID(ctx, sessionUUID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		// Запись сессии вычищена — сводку строим по манифесту
		manifest, merr := s.uploads.GetManifest(ctx, sessionUUID)
		if merr != nil {
			return nil, err
		}
		info := &VideoInfo{
			SessionUUID:    manifest.SessionUUID,
			OriginalName:   manifest.OriginalName,
			MIMEType:       manifest.MIMEType,
			TotalSizeBytes: manifest.TotalSizeBytes,
			TotalChunks:    manifest.TotalChunks,
			IsComplete:     true,
		}
		s.attachDuration(ctx, info)
		return info, nil
	}

	info := &VideoInfo{
		SessionUUID:    session.UUID,
		OriginalName:   session.OriginalName,
		MIMEType:       session.MIMEType,
		TotalSizeBytes: session.TotalSizeBytes,
		TotalChunks:    session.TotalChunks,
		IsComplete:     session.CompletedAt != nil,
	}

	if info.IsComplete {
		s.attachDuration(ctx, info)
	}

	return info, nil
}

func (s *VideoService) attachDuration(ctx context.Context, info *VideoInfo) {
	if s.probeEnabled {
		duration, err := s.probeDuration(ctx, info.SessionUUID)
		if err == nil {
			info.DurationSeconds = &duration
			return
		}
		log.Printf("[VideoService] Duration probe failed for %s, falling back to estimate: %v", info.SessionUUID, err)
	}

	estimate := float64(info.TotalSizeBytes) * 8 / assumedBitrateBps
	info.DurationSeconds = &estimate
	info.DurationEstimated = true
}

// probeDuration запускает ffprobe по первому чанку, сброшенному
// во временный файл
func (s *VideoService) probeDuration(ctx context.Context, sessionUUID uuid.UUID) (float64, error) {
	object, err := s.storage.GetObject(ctx, domain.ChunkObjectKey(sessionUUID, 0))
	if err != nil {
		return 0, fmt.Errorf("failed to get first chunk: %w", err)
	}
	defer object.Close()

	probeFile, err := os.CreateTemp(os.TempDir(), "probe-*.mp4")
	if err != nil {
		return 0, err
	}
	defer os.Remove(probeFile.Name())
	defer probeFile.Close()

	// Копируем с отслеживанием отмены контекста
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(probeFile, object)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return 0, fmt.Errorf("failed to spool chunk to temp file: %w", err)
		}
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	return getVideoDuration(ctx, probeFile.Name())
}

// getVideoDuration получает длительность видео
func getVideoDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get duration: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(string(output)), err)
	}

	return duration, nil
}
