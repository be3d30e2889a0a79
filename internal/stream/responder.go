package stream

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"

	"vidstream/internal/domain"
	"vidstream/internal/service/s3"
)

// Responder исполняет план реконструкции против хранилища чанков
// и пишет байты в выходной писатель по мере получения, не собирая
// объект в памяти целиком
type Responder struct {
	storage s3.Storage
}

func NewResponder(storage s3.Storage) *Responder {
	return &Responder{storage: storage}
}

type fetchResult struct {
	slice  Slice
	object s3.S3Object
	err    error
}

// Stream выполняет план по порядку. Пока пишется чанк i, запрос за чанком
// i+1 уже отправлен — это оптимизация задержки, корректность от нее не
// зависит. limit ограничивает число записанных байт (<= 0 — без предела).
//
// Ошибка получения чанка обрывает ответ: клиент видит оборванную передачу,
// а не молча усеченное "целое" тело.
func (r *Responder) Stream(ctx context.Context, w io.Writer, sessionUUID uuid.UUID, plan []Slice, limit int64) (int64, error) {
	if len(plan) == 0 {
		return 0, nil
	}

	fetchCtx, cancel := context.WithCancel(ctx)

	// Буфер на один результат: предзагрузка следующего чанка
	// перекрывается с отдачей текущего
	results := make(chan fetchResult, 1)
	go func() {
		defer close(results)
		for _, s := range plan {
			key := domain.ChunkObjectKey(sessionUUID, s.ChunkIndex)
			object, err := r.storage.GetObjectRange(fetchCtx, key, s.SliceStart, s.SliceEnd-1)
			if err != nil {
				err = fmt.Errorf("%w: chunk %d: %v", domain.ErrStorageUnavailable, s.ChunkIndex, err)
			}

			select {
			case results <- fetchResult{slice: s, object: object, err: err}:
			case <-fetchCtx.Done():
				if object != nil {
					object.Close()
				}
				return
			}
			if err != nil {
				return
			}
		}
	}()

	// При раннем выходе не бросаем уже предзагруженный объект незакрытым
	defer func() {
		cancel()
		for res := range results {
			if res.object != nil {
				res.object.Close()
			}
		}
	}()

	var written int64
	buf := make([]byte, 32*1024) // 32KB буфер, как в скачивании файлов

	for res := range results {
		if res.err != nil {
			return written, res.err
		}

		remaining := res.slice.Length()
		if limit > 0 && limit-written < remaining {
			remaining = limit - written
		}

		n, err := io.CopyBuffer(w, io.LimitReader(res.object, remaining), buf)
		res.object.Close()
		written += n
		if err != nil {
			log.Printf("[Stream] Write aborted after %d byte(s): %v", written, err)
			return written, err
		}

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		// Защитный предел: некорректный план не должен отдать больше,
		// чем запрошено
		if limit > 0 && written >= limit {
			return written, nil
		}

		if err := ctx.Err(); err != nil {
			return written, err
		}
	}

	return written, nil
}
