package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"vidstream/internal/domain"
)

type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create сохраняет новую сессию загрузки
func (r *SessionRepository) Create(ctx context.Context, session *domain.UploadSession) error {
	query := `
        INSERT INTO upload_sessions (
            uuid, original_name, mime_type, total_size_bytes, chunk_size_bytes,
            total_chunks, bucket, name_prefix, owner_id
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		session.UUID,
		session.OriginalName,
		session.MIMEType,
		session.TotalSizeBytes,
		session.ChunkSizeBytes,
		session.TotalChunks,
		session.Bucket,
		session.NamePrefix,
		session.OwnerID,
	).Scan(&session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create upload session: %w", err)
	}

	if session.Chunks == nil {
		session.Chunks = make(map[int]domain.ChunkReceipt)
	}

	return nil
}

// GetByID возвращает сессию вместе со всеми квитанциями чанков
func (r *SessionRepository) GetByID(ctx context.Context, sessionUUID uuid.UUID) (*domain.UploadSession, error) {
	var session domain.UploadSession
	query := `SELECT * FROM upload_sessions WHERE uuid = $1`

	err := r.db.GetContext(ctx, &session, query, sessionUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionUUID, domain.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}

	if err := r.loadChunks(ctx, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *SessionRepository) loadChunks(ctx context.Context, session *domain.UploadSession) error {
	var receipts []domain.ChunkReceipt
	query := `
        SELECT chunk_index, stored_path, size_bytes, uploaded_at
        FROM upload_chunks
        WHERE session_uuid = $1
        ORDER BY chunk_index`

	if err := r.db.SelectContext(ctx, &receipts, query, session.UUID); err != nil {
		return fmt.Errorf("failed to load chunk receipts: %w", err)
	}

	session.Chunks = make(map[int]domain.ChunkReceipt, len(receipts))
	for _, receipt := range receipts {
		session.Chunks[receipt.Index] = receipt
	}

	return nil
}

// AppendChunk добавляет квитанцию чанка. Повторная вставка того же индекса
// не ошибка и не дубликат: уникальный индекс (session_uuid, chunk_index)
// плюс ON CONFLICT DO NOTHING делают операцию идемпотентной даже при гонке
// ретрая клиента с медленным, но успешным оригинальным запросом
func (r *SessionRepository) AppendChunk(ctx context.Context, sessionUUID uuid.UUID, receipt domain.ChunkReceipt) (*domain.UploadSession, error) {
	session, err := r.GetByID(ctx, sessionUUID)
	if err != nil {
		return nil, err
	}

	if receipt.Index < 0 || receipt.Index >= session.TotalChunks {
		return nil, fmt.Errorf("chunk index %d out of range [0, %d): %w",
			receipt.Index, session.TotalChunks, domain.ErrInvalidArgument)
	}

	query := `
        INSERT INTO upload_chunks (session_uuid, chunk_index, stored_path, size_bytes)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (session_uuid, chunk_index) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, sessionUUID, receipt.Index, receipt.StoredPath, receipt.SizeBytes); err != nil {
		return nil, fmt.Errorf("failed to append chunk receipt: %w", err)
	}

	return r.GetByID(ctx, sessionUUID)
}

// MarkComplete фиксирует завершение сессии. Манифест проставляется не более
// одного раза и только когда число квитанций совпадает с ожидаемым
func (r *SessionRepository) MarkComplete(ctx context.Context, sessionUUID uuid.UUID, manifestURL string) error {
	query := `
        UPDATE upload_sessions
        SET manifest_url = $2,
            completed_at = CURRENT_TIMESTAMP
        WHERE uuid = $1
          AND completed_at IS NULL
          AND total_chunks = (SELECT COUNT(*) FROM upload_chunks WHERE session_uuid = $1)`

	result, err := r.db.ExecContext(ctx, query, sessionUUID, manifestURL)
	if err != nil {
		return fmt.Errorf("failed to mark session complete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rowsAffected == 0 {
		// Различаем отсутствующую сессию и нарушение инварианта завершения
		var exists bool
		err = r.db.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM upload_sessions WHERE uuid = $1)", sessionUUID)
		if err != nil {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("session %s: %w", sessionUUID, domain.ErrSessionNotFound)
		}
		return fmt.Errorf("session %s cannot be completed: %w", sessionUUID, domain.ErrInvalidState)
	}

	return nil
}

// Delete удаляет сессию, квитанции уходят каскадом
func (r *SessionRepository) Delete(ctx context.Context, sessionUUID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM upload_sessions WHERE uuid = $1", sessionUUID)
	if err != nil {
		return fmt.Errorf("failed to delete upload session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("session %s: %w", sessionUUID, domain.ErrSessionNotFound)
	}

	return nil
}

// ListStale возвращает незавершенные сессии старше указанного момента.
// Квитанции загружаются сразу, чтобы свипер не ходил за каждой отдельно
func (r *SessionRepository) ListStale(ctx context.Context, olderThan time.Time) ([]domain.UploadSession, error) {
	var sessions []domain.UploadSession
	query := `
        SELECT * FROM upload_sessions
        WHERE completed_at IS NULL AND created_at < $1
        ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &sessions, query, olderThan); err != nil {
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}

	for i := range sessions {
		if err := r.loadChunks(ctx, &sessions[i]); err != nil {
			return nil, err
		}
	}

	return sessions, nil
}
