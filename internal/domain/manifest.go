package domain

import (
	"time"

	"github.com/google/uuid"
)

// ManifestChunk описывает один чанк в манифесте
type ManifestChunk struct {
	Index     int    `json:"index"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes"`
}

// Manifest — сохраненное в хранилище описание завершенной загрузки.
// Его одного достаточно для воспроизведения любого диапазона байт,
// живая запись сессии для этого не нужна.
type Manifest struct {
	SessionUUID    uuid.UUID       `json:"session_uuid"`
	OriginalName   string          `json:"original_name"`
	MIMEType       string          `json:"mime_type"`
	TotalSizeBytes int64           `json:"total_size_bytes"`
	ChunkSizeBytes int64           `json:"chunk_size_bytes"`
	TotalChunks    int             `json:"total_chunks"`
	Chunks         []ManifestChunk `json:"chunks"`
	CompletedAt    time.Time       `json:"completed_at"`
}
