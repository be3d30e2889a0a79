package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vidstream/internal/config"
	"vidstream/internal/domain"
	"vidstream/internal/service"
	"vidstream/internal/service/s3"
	"vidstream/internal/stream"
)

// fakeRegistry — реестр сессий в памяти для HTTP-тестов
type fakeRegistry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.UploadSession
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{sessions: make(map[uuid.UUID]*domain.UploadSession)}
}

func cloneSession(s *domain.UploadSession) *domain.UploadSession {
	cp := *s
	cp.Chunks = make(map[int]domain.ChunkReceipt, len(s.Chunks))
	for k, v := range s.Chunks {
		cp.Chunks[k] = v
	}
	return &cp
}

func (r *fakeRegistry) Create(_ context.Context, session *domain.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.CreatedAt = time.Now().UTC()
	r.sessions[session.UUID] = cloneSession(session)
	return nil
}

func (r *fakeRegistry) GetByID(_ context.Context, sessionUUID uuid.UUID) (*domain.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionUUID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *fakeRegistry) AppendChunk(_ context.Context, sessionUUID uuid.UUID, receipt domain.ChunkReceipt) (*domain.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionUUID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if _, exists := s.Chunks[receipt.Index]; !exists {
		receipt.UploadedAt = time.Now().UTC()
		s.Chunks[receipt.Index] = receipt
	}
	return cloneSession(s), nil
}

func (r *fakeRegistry) MarkComplete(_ context.Context, sessionUUID uuid.UUID, manifestURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionUUID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.CompletedAt != nil || !s.IsComplete() {
		return domain.ErrInvalidState
	}
	now := time.Now().UTC()
	s.CompletedAt = &now
	s.ManifestURL = &manifestURL
	return nil
}

func (r *fakeRegistry) Delete(_ context.Context, sessionUUID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionUUID]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(r.sessions, sessionUUID)
	return nil
}

func (r *fakeRegistry) ListStale(_ context.Context, olderThan time.Time) ([]domain.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []domain.UploadSession
	for _, s := range r.sessions {
		if s.CompletedAt == nil && s.CreatedAt.Before(olderThan) {
			stale = append(stale, *cloneSession(s))
		}
	}
	return stale, nil
}

// fakeStorage — хранилище в памяти с поддержкой диапазонов
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

type fakeObject struct {
	io.ReadCloser
	length int64
}

func (o *fakeObject) ContentLength() int64 { return o.length }
func (o *fakeObject) ContentType() string  { return "application/octet-stream" }

func (s *fakeStorage) UploadBytes(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStorage) GetObject(_ context.Context, key string) (s3.S3Object, error) {
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return &fakeObject{
		ReadCloser: io.NopCloser(bytes.NewReader(data)),
		length:     int64(len(data)),
	}, nil
}

func (s *fakeStorage) GetObjectRange(_ context.Context, key string, start, end int64) (s3.S3Object, error) {
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	if end > int64(len(data))-1 {
		end = int64(len(data)) - 1
	}
	part := data[start : end+1]
	return &fakeObject{
		ReadCloser: io.NopCloser(bytes.NewReader(part)),
		length:     int64(len(part)),
	}, nil
}

func (s *fakeStorage) DeleteObjects(_ context.Context, keys []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.objects, k)
	}
	return nil, nil
}

func (s *fakeStorage) PublicURL(key string) string { return "https://cdn.test/" + key }
func (s *fakeStorage) Bucket() string              { return "test-bucket" }

// newTestRouter собирает приложение с фейковыми реестром и хранилищем;
// маршруты повторяют боевую раскладку
func newTestRouter(t *testing.T, streamCap int64) chi.Router {
	t.Helper()

	registry := newFakeRegistry()
	storage := newFakeStorage()

	cfg := config.UploadConfig{
		ChunkSizeBytes:    4,
		MaxRetries:        2,
		BaseDelayMs:       1,
		JitterMaxMs:       1,
		AttemptTimeoutSec: 5,
	}
	uploadService := service.NewUploadService(registry, storage, cfg)
	videoService := service.NewVideoService(uploadService, registry, storage)
	responder := stream.NewResponder(storage)

	uploadHandler := NewUploadHandler(uploadService)
	videoHandler := NewVideoHandler(uploadService, videoService, responder, streamCap)

	r := chi.NewRouter()
	r.Route("/v1/uploads", func(r chi.Router) {
		r.Post("/", uploadHandler.InitUpload)
		r.Post("/chunks", uploadHandler.UploadChunk)
		r.Post("/complete", uploadHandler.CompleteUpload)
		r.Get("/{sessionID}/progress", uploadHandler.GetProgress)
		r.Delete("/{sessionID}", uploadHandler.AbortUpload)
	})
	r.Route("/v1/video", func(r chi.Router) {
		r.Get("/manifest/{sessionID}", videoHandler.GetManifest)
		r.Get("/info/{sessionID}", videoHandler.GetInfo)
		r.Get("/stream/{sessionID}", videoHandler.StreamVideo)
	})

	return r
}

func doRequest(router chi.Router, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("X-User-Id", "user-1")
	return req
}

// chunkRequest собирает multipart-запрос с одним чанком
func chunkRequest(t *testing.T, sessionID string, index int, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("session_id", sessionID))
	require.NoError(t, mw.WriteField("chunk_index", strconv.Itoa(index)))
	fw, err := mw.CreateFormFile("chunk", "blob")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := authedRequest(http.MethodPost, "/v1/uploads/chunks", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
