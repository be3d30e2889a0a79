package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func sessionWithChunks(totalChunks int, indices ...int) *UploadSession {
	s := &UploadSession{
		UUID:           uuid.New(),
		TotalSizeBytes: int64(totalChunks) * 10,
		ChunkSizeBytes: 10,
		TotalChunks:    totalChunks,
		Chunks:         make(map[int]ChunkReceipt),
	}
	for _, i := range indices {
		s.Chunks[i] = ChunkReceipt{Index: i, SizeBytes: 10}
	}
	return s
}

func TestCountChunks(t *testing.T) {
	tests := []struct {
		name      string
		totalSize int64
		chunkSize int64
		want      int
	}{
		{name: "exact multiple", totalSize: 100, chunkSize: 25, want: 4},
		{name: "short last chunk", totalSize: 130, chunkSize: 25, want: 6},
		{name: "single chunk", totalSize: 10, chunkSize: 25, want: 1},
		{name: "chunk equals size", totalSize: 25, chunkSize: 25, want: 1},
		{name: "zero size", totalSize: 0, chunkSize: 25, want: 0},
		{name: "zero chunk size", totalSize: 100, chunkSize: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountChunks(tt.totalSize, tt.chunkSize))
		})
	}
}

func TestIsCompleteRequiresEveryIndex(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		indices []int
		want    bool
	}{
		{name: "all present in order", total: 3, indices: []int{0, 1, 2}, want: true},
		{name: "all present out of order", total: 6, indices: []int{3, 1, 0, 5, 2, 4}, want: true},
		{name: "missing middle", total: 3, indices: []int{0, 2}, want: false},
		{name: "missing last", total: 3, indices: []int{0, 1}, want: false},
		{name: "empty", total: 3, indices: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessionWithChunks(tt.total, tt.indices...)
			assert.Equal(t, tt.want, s.IsComplete())
		})
	}
}

func TestMissingIndices(t *testing.T) {
	s := sessionWithChunks(5, 0, 2, 4)
	assert.Equal(t, []int{1, 3}, s.MissingIndices())

	complete := sessionWithChunks(3, 0, 1, 2)
	assert.Empty(t, complete.MissingIndices())
}

func TestProgress(t *testing.T) {
	s := sessionWithChunks(4, 0, 1)
	assert.InDelta(t, 50.0, s.Progress(), 0.001)

	empty := sessionWithChunks(4)
	assert.Zero(t, empty.Progress())
}

func TestExpectedChunkSize(t *testing.T) {
	s := &UploadSession{
		TotalSizeBytes: 130,
		ChunkSizeBytes: 25,
		TotalChunks:    6,
	}

	assert.Equal(t, int64(25), s.ExpectedChunkSize(0))
	assert.Equal(t, int64(25), s.ExpectedChunkSize(4))
	assert.Equal(t, int64(5), s.ExpectedChunkSize(5))
	assert.Zero(t, s.ExpectedChunkSize(-1))
	assert.Zero(t, s.ExpectedChunkSize(6))
}

func TestObjectKeysAreDeterministic(t *testing.T) {
	id := uuid.MustParse("7a1e2f30-0000-4000-8000-000000000001")

	assert.Equal(t, ChunkObjectKey(id, 3), ChunkObjectKey(id, 3))
	assert.Equal(t, "video_chunks/7a1e2f30-0000-4000-8000-000000000001/chunk_000003", ChunkObjectKey(id, 3))
	assert.Equal(t, "video_chunks/7a1e2f30-0000-4000-8000-000000000001/manifest.json", ManifestObjectKey(id))
}
