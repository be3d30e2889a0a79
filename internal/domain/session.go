package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChunkReceipt подтверждает, что конкретный чанк сохранен в хранилище
type ChunkReceipt struct {
	Index      int       `json:"index" db:"chunk_index"`
	StoredPath string    `json:"stored_path" db:"stored_path"`
	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// UploadSession — агрегат одной чанковой загрузки.
// Чанки хранятся строго по индексу, дубликаты индексов невозможны.
type UploadSession struct {
	UUID           uuid.UUID  `json:"uuid" db:"uuid"`
	OriginalName   string     `json:"original_name" db:"original_name"`
	MIMEType       string     `json:"mime_type" db:"mime_type"`
	TotalSizeBytes int64      `json:"total_size_bytes" db:"total_size_bytes"`
	ChunkSizeBytes int64      `json:"chunk_size_bytes" db:"chunk_size_bytes"`
	TotalChunks    int        `json:"total_chunks" db:"total_chunks"`
	Bucket         string     `json:"bucket" db:"bucket"`
	NamePrefix     string     `json:"name_prefix" db:"name_prefix"`
	OwnerID        string     `json:"owner_id" db:"owner_id"`
	ManifestURL    *string    `json:"manifest_url,omitempty" db:"manifest_url"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	Chunks map[int]ChunkReceipt `json:"chunks" db:"-"`
}

// CountChunks вычисляет количество чанков для заданного размера файла
func CountChunks(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// Receipt возвращает квитанцию для индекса, если чанк уже загружен
func (s *UploadSession) Receipt(index int) (ChunkReceipt, bool) {
	r, ok := s.Chunks[index]
	return r, ok
}

// IsComplete истинно, когда получены все индексы 0..TotalChunks-1
func (s *UploadSession) IsComplete() bool {
	if s.TotalChunks <= 0 || len(s.Chunks) != s.TotalChunks {
		return false
	}
	for i := 0; i < s.TotalChunks; i++ {
		if _, ok := s.Chunks[i]; !ok {
			return false
		}
	}
	return true
}

// MissingIndices возвращает отсортированный список недостающих индексов
func (s *UploadSession) MissingIndices() []int {
	missing := make([]int, 0)
	for i := 0; i < s.TotalChunks; i++ {
		if _, ok := s.Chunks[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// Progress возвращает процент загрузки 0..100
func (s *UploadSession) Progress() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(len(s.Chunks)) / float64(s.TotalChunks) * 100
}

// ExpectedChunkSize возвращает ожидаемый размер чанка с учетом того,
// что последний чанк может быть короче
func (s *UploadSession) ExpectedChunkSize(index int) int64 {
	if index < 0 || index >= s.TotalChunks {
		return 0
	}
	if index == s.TotalChunks-1 {
		last := s.TotalSizeBytes - int64(s.TotalChunks-1)*s.ChunkSizeBytes
		return last
	}
	return s.ChunkSizeBytes
}

// ChunkObjectKey строит детерминированный ключ чанка в хранилище.
// Повторная загрузка того же индекса попадает в тот же объект.
func ChunkObjectKey(sessionUUID uuid.UUID, index int) string {
	return fmt.Sprintf("video_chunks/%s/chunk_%06d", sessionUUID, index)
}

// ManifestObjectKey строит ключ манифеста, зависящий только от сессии
func ManifestObjectKey(sessionUUID uuid.UUID) string {
	return fmt.Sprintf("video_chunks/%s/manifest.json", sessionUUID)
}
