package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidstream/internal/domain"
	"vidstream/internal/service/s3"
)

// memStorage — хранилище в памяти с поддержкой диапазонов, для тестов
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	// ключи, на которых GetObjectRange возвращает ошибку
	failKeys map[string]bool
}

func newMemStorage() *memStorage {
	return &memStorage{
		objects:  make(map[string][]byte),
		failKeys: make(map[string]bool),
	}
}

type memObject struct {
	io.ReadCloser
	length int64
}

func (o *memObject) ContentLength() int64 { return o.length }
func (o *memObject) ContentType() string  { return "application/octet-stream" }

func (m *memStorage) UploadBytes(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memStorage) GetObject(ctx context.Context, key string) (s3.S3Object, error) {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return &memObject{
		ReadCloser: io.NopCloser(bytes.NewReader(data)),
		length:     int64(len(data)),
	}, nil
}

func (m *memStorage) GetObjectRange(_ context.Context, key string, start, end int64) (s3.S3Object, error) {
	m.mu.Lock()
	data, ok := m.objects[key]
	fail := m.failKeys[key]
	m.mu.Unlock()
	if fail {
		return nil, errors.New("simulated storage outage")
	}
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	if start < 0 || start >= int64(len(data)) || end < start {
		return nil, fmt.Errorf("invalid range %d-%d for %d byte(s)", start, end, len(data))
	}
	if end > int64(len(data))-1 {
		end = int64(len(data)) - 1
	}
	part := data[start : end+1]
	return &memObject{
		ReadCloser: io.NopCloser(bytes.NewReader(part)),
		length:     int64(len(part)),
	}, nil
}

func (m *memStorage) DeleteObjects(_ context.Context, keys []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil, nil
}

func (m *memStorage) PublicURL(key string) string { return "https://cdn.test/" + key }
func (m *memStorage) Bucket() string              { return "test-bucket" }

// seedChunks нарезает объект чанками и кладет их в хранилище,
// возвращая манифест раскладки
func seedChunks(t *testing.T, st *memStorage, sessionUUID uuid.UUID, object []byte, chunkSize int64) *domain.Manifest {
	t.Helper()

	totalSize := int64(len(object))
	total := domain.CountChunks(totalSize, chunkSize)
	m := &domain.Manifest{
		SessionUUID:    sessionUUID,
		TotalSizeBytes: totalSize,
		ChunkSizeBytes: chunkSize,
		TotalChunks:    total,
	}
	for i := 0; i < total; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if end > totalSize {
			end = totalSize
		}
		key := domain.ChunkObjectKey(sessionUUID, i)
		require.NoError(t, st.UploadBytes(context.Background(), key, object[start:end]))
		m.Chunks = append(m.Chunks, domain.ManifestChunk{Index: i, SizeBytes: end - start})
	}
	return m
}

func TestStreamWritesExactRange(t *testing.T) {
	st := newMemStorage()
	sessionUUID := uuid.New()

	object := make([]byte, 130)
	for i := range object {
		object[i] = byte(i)
	}
	m := seedChunks(t, st, sessionUUID, object, 25)

	plan, err := BuildPlan(m, 20, 60)
	require.NoError(t, err)

	var buf bytes.Buffer
	written, err := NewResponder(st).Stream(context.Background(), &buf, sessionUUID, plan, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(41), written)
	assert.Equal(t, object[20:61], buf.Bytes())
}

func TestStreamFullObject(t *testing.T) {
	st := newMemStorage()
	sessionUUID := uuid.New()

	object := bytes.Repeat([]byte("vidstream"), 37) // 333 байта, последний чанк короткий
	m := seedChunks(t, st, sessionUUID, object, 100)

	plan, err := BuildPlan(m, 0, m.TotalSizeBytes-1)
	require.NoError(t, err)

	var buf bytes.Buffer
	written, err := NewResponder(st).Stream(context.Background(), &buf, sessionUUID, plan, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(len(object)), written)
	assert.Equal(t, object, buf.Bytes())
}

func TestStreamHonorsLimit(t *testing.T) {
	st := newMemStorage()
	sessionUUID := uuid.New()

	object := make([]byte, 100)
	for i := range object {
		object[i] = byte(i)
	}
	m := seedChunks(t, st, sessionUUID, object, 25)

	plan, err := BuildPlan(m, 0, 99)
	require.NoError(t, err)

	var buf bytes.Buffer
	written, err := NewResponder(st).Stream(context.Background(), &buf, sessionUUID, plan, 30)
	require.NoError(t, err)

	assert.Equal(t, int64(30), written)
	assert.Equal(t, object[:30], buf.Bytes())
}

func TestStreamAbortsOnFetchFailure(t *testing.T) {
	st := newMemStorage()
	sessionUUID := uuid.New()

	object := make([]byte, 100)
	m := seedChunks(t, st, sessionUUID, object, 25)
	st.failKeys[domain.ChunkObjectKey(sessionUUID, 2)] = true

	plan, err := BuildPlan(m, 0, 99)
	require.NoError(t, err)

	var buf bytes.Buffer
	written, err := NewResponder(st).Stream(context.Background(), &buf, sessionUUID, plan, 0)

	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	// Отданы только чанки до точки отказа, ответ оборван
	assert.Equal(t, int64(50), written)
	assert.Equal(t, int64(50), int64(buf.Len()))
}

func TestStreamEmptyPlan(t *testing.T) {
	st := newMemStorage()

	var buf bytes.Buffer
	written, err := NewResponder(st).Stream(context.Background(), &buf, uuid.New(), nil, 0)

	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Zero(t, buf.Len())
}

// cancelingWriter отменяет контекст после первой записи,
// имитируя отключение клиента посреди ответа
type cancelingWriter struct {
	buf    bytes.Buffer
	cancel context.CancelFunc
}

func (w *cancelingWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.cancel()
	return n, err
}

func TestStreamStopsOnCanceledContext(t *testing.T) {
	st := newMemStorage()
	sessionUUID := uuid.New()

	object := make([]byte, 100)
	m := seedChunks(t, st, sessionUUID, object, 25)

	plan, err := BuildPlan(m, 0, 99)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &cancelingWriter{cancel: cancel}

	written, err := NewResponder(st).Stream(ctx, w, sessionUUID, plan, 0)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(25), written)
}
