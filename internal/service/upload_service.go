package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidstream/internal/config"
	"vidstream/internal/domain"
	"vidstream/internal/retry"
	"vidstream/internal/service/s3"
)

// SessionRegistry — долговечный реестр сессий загрузки
type SessionRegistry interface {
	Create(ctx context.Context, session *domain.UploadSession) error
	GetByID(ctx context.Context, sessionUUID uuid.UUID) (*domain.UploadSession, error)
	AppendChunk(ctx context.Context, sessionUUID uuid.UUID, receipt domain.ChunkReceipt) (*domain.UploadSession, error)
	MarkComplete(ctx context.Context, sessionUUID uuid.UUID, manifestURL string) error
	Delete(ctx context.Context, sessionUUID uuid.UUID) error
	ListStale(ctx context.Context, olderThan time.Time) ([]domain.UploadSession, error)
}

type UploadService struct {
	registry  SessionRegistry
	storage   s3.Storage
	chunkSize int64
	policy    retry.Policy

	// Замки на сессию: загрузки разных сессий друг другу не мешают
	locks sync.Map
}

// InitSessionRequest — метаданные файла при инициализации загрузки
type InitSessionRequest struct {
	Name           string
	MIMEType       string
	TotalSizeBytes int64
	Folder         string
}

// ProgressInfo — состояние загрузки для клиента.
// IsComplete выводится из квитанций: все индексы на месте. Признак
// финализации — ManifestURL, он появляется только после Complete
type ProgressInfo struct {
	Progress       float64 `json:"progress"`
	UploadedChunks int     `json:"uploaded_chunks"`
	TotalChunks    int     `json:"total_chunks"`
	IsComplete     bool    `json:"is_complete"`
	ManifestURL    *string `json:"manifest_url,omitempty"`
}

func NewUploadService(registry SessionRegistry, storage s3.Storage, cfg config.UploadConfig) *UploadService {
	return &UploadService{
		registry:  registry,
		storage:   storage,
		chunkSize: cfg.ChunkSizeBytes,
		policy: retry.Policy{
			MaxAttempts:    cfg.MaxRetries,
			BaseDelay:      cfg.BaseDelay(),
			JitterMax:      cfg.JitterMax(),
			AttemptTimeout: cfg.AttemptTimeout(),
		},
	}
}

func (s *UploadService) sessionLock(sessionUUID uuid.UUID) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionUUID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// InitSession создает новую сессию чанковой загрузки
func (s *UploadService) InitSession(ctx context.Context, ownerID string, req InitSessionRequest) (*domain.UploadSession, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required: %w", domain.ErrInvalidArgument)
	}
	if req.Name == "" || req.MIMEType == "" {
		return nil, fmt.Errorf("name and mime type are required: %w", domain.ErrInvalidArgument)
	}
	if req.TotalSizeBytes <= 0 {
		return nil, fmt.Errorf("total size must be positive, got %d: %w", req.TotalSizeBytes, domain.ErrInvalidArgument)
	}

	session := &domain.UploadSession{
		UUID:           uuid.New(),
		OriginalName:   req.Name,
		MIMEType:       req.MIMEType,
		TotalSizeBytes: req.TotalSizeBytes,
		ChunkSizeBytes: s.chunkSize,
		TotalChunks:    domain.CountChunks(req.TotalSizeBytes, s.chunkSize),
		Bucket:         s.storage.Bucket(),
		NamePrefix:     req.Folder,
		OwnerID:        ownerID,
		Chunks:         make(map[int]domain.ChunkReceipt),
	}

	if err := s.registry.Create(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("[Upload] Session %s created: %s, %d byte(s), %d chunk(s)",
		session.UUID, session.OriginalName, session.TotalSizeBytes, session.TotalChunks)

	return session, nil
}

// IngestChunk принимает один чанк: валидирует, сохраняет в хранилище
// с повторами и записывает квитанцию в реестр.
//
// Повторная отправка уже принятого индекса возвращает существующую
// квитанцию без побочных эффектов — клиент может безопасно ретраить
// чанк после таймаута
func (s *UploadService) IngestChunk(ctx context.Context, sessionUUID uuid.UUID, index int, data []byte) (domain.ChunkReceipt, bool, *domain.UploadSession, error) {
	lock := s.sessionLock(sessionUUID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.registry.GetByID(ctx, sessionUUID)
	if err != nil {
		return domain.ChunkReceipt{}, false, nil, err
	}

	if index < 0 || index >= session.TotalChunks {
		return domain.ChunkReceipt{}, false, nil, fmt.Errorf("chunk index %d out of range [0, %d): %w",
			index, session.TotalChunks, domain.ErrInvalidArgument)
	}

	if receipt, ok := session.Receipt(index); ok {
		log.Printf("[Upload] Session %s: chunk %d already uploaded, returning existing receipt", sessionUUID, index)
		return receipt, true, session, nil
	}

	if expected := session.ExpectedChunkSize(index); int64(len(data)) != expected {
		return domain.ChunkReceipt{}, false, nil, fmt.Errorf("chunk %d size %d, expected %d: %w",
			index, len(data), expected, domain.ErrInvalidArgument)
	}

	// Ключ детерминирован: ретраи попадают в тот же объект хранилища
	key := domain.ChunkObjectKey(sessionUUID, index)

	err = s.policy.Do(ctx, func(ctx context.Context) error {
		return s.storage.UploadBytes(ctx, key, data)
	})
	if err != nil {
		attempts := s.policy.MaxAttempts
		var rerr *retry.Error
		if errors.As(err, &rerr) {
			attempts = rerr.Attempts
			err = rerr.Err
		}
		// Квитанция не записывается: сессия остается в последнем
		// согласованном состоянии
		return domain.ChunkReceipt{}, false, nil, &domain.UploadFailedError{
			SessionID: sessionUUID.String(),
			Index:     index,
			Attempts:  attempts,
			Err:       err,
		}
	}

	updated, err := s.registry.AppendChunk(ctx, sessionUUID, domain.ChunkReceipt{
		Index:      index,
		StoredPath: key,
		SizeBytes:  int64(len(data)),
	})
	if err != nil {
		return domain.ChunkReceipt{}, false, nil, err
	}

	receipt, _ := updated.Receipt(index)
	log.Printf("[Upload] Session %s: chunk %d stored (%d/%d)",
		sessionUUID, index, len(updated.Chunks), updated.TotalChunks)

	return receipt, false, updated, nil
}

// Complete проверяет инвариант завершения, строит манифест, сохраняет его
// в хранилище и помечает сессию завершенной. Повторный вызов для уже
// завершенной сессии возвращает существующий манифест
func (s *UploadService) Complete(ctx context.Context, sessionUUID uuid.UUID) (*domain.Manifest, error) {
	lock := s.sessionLock(sessionUUID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.registry.GetByID(ctx, sessionUUID)
	if err != nil {
		return nil, err
	}

	if session.CompletedAt != nil {
		return s.loadManifest(ctx, session)
	}

	if !session.IsComplete() {
		return nil, &domain.IncompleteUploadError{
			SessionID: sessionUUID.String(),
			Missing:   session.MissingIndices(),
		}
	}

	manifest := s.buildManifest(session, time.Now().UTC())

	payload, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	// Манифест живет в хранилище рядом с чанками: воспроизведение
	// не зависит от того, доживет ли запись сессии в реестре
	manifestKey := domain.ManifestObjectKey(sessionUUID)
	if err := s.storage.UploadBytes(ctx, manifestKey, payload); err != nil {
		return nil, fmt.Errorf("failed to persist manifest: %w", err)
	}

	if err := s.registry.MarkComplete(ctx, sessionUUID, s.storage.PublicURL(manifestKey)); err != nil {
		return nil, err
	}

	log.Printf("[Upload] Session %s completed: %d chunk(s), manifest at %s",
		sessionUUID, manifest.TotalChunks, manifestKey)

	return manifest, nil
}

func (s *UploadService) buildManifest(session *domain.UploadSession, completedAt time.Time) *domain.Manifest {
	if session.CompletedAt != nil {
		completedAt = *session.CompletedAt
	}

	chunks := make([]domain.ManifestChunk, 0, session.TotalChunks)
	for i := 0; i < session.TotalChunks; i++ {
		receipt := session.Chunks[i]
		chunks = append(chunks, domain.ManifestChunk{
			Index:     i,
			URL:       s.storage.PublicURL(receipt.StoredPath),
			SizeBytes: receipt.SizeBytes,
		})
	}

	return &domain.Manifest{
		SessionUUID:    session.UUID,
		OriginalName:   session.OriginalName,
		MIMEType:       session.MIMEType,
		TotalSizeBytes: session.TotalSizeBytes,
		ChunkSizeBytes: session.ChunkSizeBytes,
		TotalChunks:    session.TotalChunks,
		Chunks:         chunks,
		CompletedAt:    completedAt,
	}
}

func (s *UploadService) loadManifest(ctx context.Context, session *domain.UploadSession) (*domain.Manifest, error) {
	object, err := s.storage.GetObject(ctx, domain.ManifestObjectKey(session.UUID))
	if err != nil {
		// Объект манифеста недоступен, но все квитанции на руках —
		// восстанавливаем манифест из реестра
		log.Printf("[Upload] Session %s: manifest object unavailable, rebuilding from receipts: %v", session.UUID, err)
		return s.buildManifest(session, time.Now().UTC()), nil
	}
	defer object.Close()

	payload, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest object: %w", err)
	}

	var manifest domain.Manifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	return &manifest, nil
}

// GetManifest возвращает манифест завершенной сессии
func (s *UploadService) GetManifest(ctx context.Context, sessionUUID uuid.UUID) (*domain.Manifest, error) {
	session, err := s.registry.GetByID(ctx, sessionUUID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		// Запись сессии могла быть вычищена: манифеста в хранилище
		// достаточно для воспроизведения
		return s.fetchManifestObject(ctx, sessionUUID, err)
	}

	if session.CompletedAt == nil {
		return nil, &domain.IncompleteUploadError{
			SessionID: sessionUUID.String(),
			Missing:   session.MissingIndices(),
		}
	}

	return s.loadManifest(ctx, session)
}

func (s *UploadService) fetchManifestObject(ctx context.Context, sessionUUID uuid.UUID, notFoundErr error) (*domain.Manifest, error) {
	object, err := s.storage.GetObject(ctx, domain.ManifestObjectKey(sessionUUID))
	if err != nil {
		return nil, notFoundErr
	}
	defer object.Close()

	payload, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest object: %w", err)
	}

	var manifest domain.Manifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	return &manifest, nil
}

// Progress возвращает состояние загрузки
func (s *UploadService) Progress(ctx context.Context, sessionUUID uuid.UUID) (*ProgressInfo, error) {
	session, err := s.registry.GetByID(ctx, sessionUUID)
	if err != nil {
		return nil, err
	}

	return &ProgressInfo{
		Progress:       session.Progress(),
		UploadedChunks: len(session.Chunks),
		TotalChunks:    session.TotalChunks,
		IsComplete:     session.IsComplete(),
		ManifestURL:    session.ManifestURL,
	}, nil
}

// Abort удаляет незавершенную сессию вместе с уже загруженными чанками.
// Завершенные сессии не трогаем: их чанки и есть постоянное хранилище видео
func (s *UploadService) Abort(ctx context.Context, sessionUUID uuid.UUID, ownerID string) error {
	lock := s.sessionLock(sessionUUID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.registry.GetByID(ctx, sessionUUID)
	if err != nil {
		return err
	}

	if session.OwnerID != ownerID {
		return fmt.Errorf("session %s belongs to another owner: %w", sessionUUID, domain.ErrAccessDenied)
	}

	if session.CompletedAt != nil {
		return fmt.Errorf("session %s is already completed: %w", sessionUUID, domain.ErrInvalidState)
	}

	keys := make([]string, 0, len(session.Chunks))
	for _, receipt := range session.Chunks {
		keys = append(keys, receipt.StoredPath)
	}

	if failed, err := s.storage.DeleteObjects(ctx, keys); err != nil {
		log.Printf("[Upload] Session %s: failed to delete %d chunk object(s): %v", sessionUUID, len(failed), err)
	}

	if err := s.registry.Delete(ctx, sessionUUID); err != nil {
		return err
	}

	s.locks.Delete(sessionUUID)
	log.Printf("[Upload] Session %s aborted, %d chunk(s) removed", sessionUUID, len(keys))

	return nil
}
