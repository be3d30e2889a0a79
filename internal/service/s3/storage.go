// storage.go
package s3

import (
	"context"
	"io"
)

// S3Object определяет интерфейс для объектов S3
type S3Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// s3Object реализует интерфейс S3Object
type s3Object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *s3Object) ContentLength() int64 {
	return o.contentLength
}

func (o *s3Object) ContentType() string {
	return o.contentType
}

// Storage определяет контракт хранилища чанков поверх S3-совместимого API
type Storage interface {
	UploadBytes(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) (S3Object, error)
	GetObjectRange(ctx context.Context, key string, start, end int64) (S3Object, error)
	// DeleteObjects удаляет ключи пачкой и возвращает те, что удалить не удалось
	DeleteObjects(ctx context.Context, keys []string) ([]string, error)
	// PublicURL возвращает стабильный адрес объекта для манифеста
	PublicURL(key string) string
	Bucket() string
}
