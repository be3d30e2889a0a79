package service

import (
	"context"
	"log"
	"time"

	"vidstream/internal/config"
	"vidstream/internal/service/s3"
)

// SweeperService возвращает место, занятое брошенными загрузками:
// незавершенные сессии старше TTL удаляются вместе со своими чанками.
// Завершенные сессии свипер не трогает никогда
type SweeperService struct {
	registry SessionRegistry
	storage  s3.Storage
	ttl      time.Duration
	interval time.Duration
}

func NewSweeperService(registry SessionRegistry, storage s3.Storage, cfg config.UploadConfig) *SweeperService {
	return &SweeperService{
		registry: registry,
		storage:  storage,
		ttl:      cfg.SessionTTL(),
		interval: cfg.SweepInterval(),
	}
}

// Run запускает периодическую очистку до отмены контекста
func (s *SweeperService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("[Sweeper] Started: ttl=%v, interval=%v", s.ttl, s.interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Sweeper] Stopped")
			return
		case <-ticker.C:
			cleaned, failed, err := s.SweepOnce(ctx)
			if err != nil {
				log.Printf("[Sweeper] Sweep failed: %v", err)
				continue
			}
			log.Printf("[Sweeper] Sweep finished: %d session(s) cleaned, %d item(s) failed", cleaned, failed)
		}
	}
}

// SweepOnce выполняет один проход очистки. Ошибка удаления отдельного
// чанка не прерывает проход: логируем и идем дальше. Возвращает число
// вычищенных сессий и число элементов, удалить которые не удалось
func (s *SweeperService) SweepOnce(ctx context.Context) (int, int, error) {
	stale, err := s.registry.ListStale(ctx, time.Now().Add(-s.ttl))
	if err != nil {
		return 0, 0, err
	}

	var cleaned, failed int
	for _, session := range stale {
		keys := make([]string, 0, len(session.Chunks))
		for _, receipt := range session.Chunks {
			keys = append(keys, receipt.StoredPath)
		}

		failedKeys, err := s.storage.DeleteObjects(ctx, keys)
		failed += len(failedKeys)
		if err != nil {
			// Все чанки остались на месте — запись сессии сохраняем,
			// следующий проход попробует снова
			log.Printf("[Sweeper] Session %s: chunk cleanup failed, keeping record: %v", session.UUID, err)
			continue
		}

		if err := s.registry.Delete(ctx, session.UUID); err != nil {
			log.Printf("[Sweeper] Session %s: failed to delete record: %v", session.UUID, err)
			failed++
			continue
		}

		cleaned++
		log.Printf("[Sweeper] Session %s swept: %d chunk(s) removed, age %v",
			session.UUID, len(keys), time.Since(session.CreatedAt).Round(time.Minute))
	}

	return cleaned, failed, nil
}
