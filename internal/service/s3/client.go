package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	defaultTimeout = 30 * time.Second

	// S3 принимает не больше 1000 ключей за один DeleteObjects
	maxDeleteBatch = 1000
)

// Client предоставляет методы для работы с S3-совместимым хранилищем
type Client struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewClient создает новый экземпляр клиента S3
func NewClient(conf *Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	if conf.AccessKeyID == "" || conf.SecretAccessKey == "" || conf.Bucket == "" {
		return nil, fmt.Errorf("missing required configuration: accessKeyID, secretAccessKey, and bucket are required")
	}

	// Создаем конфигурацию AWS
	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	// Ретраи SDK выключены: политика повторов живет уровнем выше,
	// иначе попытки перемножаются
	client := s3.New(s3.Options{
		BaseEndpoint:     aws.String(conf.Endpoint),
		Region:           conf.Region,
		Credentials:      creds,
		RetryMaxAttempts: 1,
	})

	s3Client := &Client{
		client:        client,
		bucket:        conf.Bucket,
		publicBaseURL: strings.TrimRight(conf.PublicBaseURL, "/"),
	}

	// Проверяем подключение к бакету
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	_, err := s3Client.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(conf.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return s3Client, nil
}

// UploadBytes загружает байты в S3
func (h *Client) UploadBytes(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	_, err := h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload data to S3: %w", err)
	}

	return nil
}

// GetObject получает объект из S3
func (h *Client) GetObject(ctx context.Context, key string) (S3Object, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	}

	result, err := h.client.GetObject(ctx, input)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return &s3Object{
		ReadCloser:    result.Body,
		contentLength: aws.ToInt64(result.ContentLength),
		contentType:   aws.ToString(result.ContentType),
	}, nil
}

// GetObjectRange получает часть объекта из S3
func (h *Client) GetObjectRange(ctx context.Context, key string, start, end int64) (S3Object, error) {
	startTime := time.Now()

	rangeHeader := fmt.Sprintf("bytes=%d-%d", start, end)
	input := &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
		Range:  aws.String(rangeHeader),
	}

	result, err := h.client.GetObject(ctx, input)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			log.Printf("[S3] Object not found: %s", key)
			return nil, fmt.Errorf("object not found: %s", key)
		}
		log.Printf("[S3] Error getting object range %s: %v", rangeHeader, err)
		return nil, fmt.Errorf("failed to get object range from S3: %w", err)
	}

	elapsed := time.Since(startTime)
	log.Printf("[S3] Range stream started for %s (%s). Time to first byte: %v", key, rangeHeader, elapsed)

	return &s3Object{
		ReadCloser:    result.Body,
		contentLength: aws.ToInt64(result.ContentLength),
		contentType:   aws.ToString(result.ContentType),
	}, nil
}

// DeleteObjects удаляет объекты пачками. Возвращает ключи,
// которые удалить не удалось: вызывающий решает, что с ними делать
func (h *Client) DeleteObjects(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var failed []string
	for offset := 0; offset < len(keys); offset += maxDeleteBatch {
		batch := keys[offset:]
		if len(batch) > maxDeleteBatch {
			batch = batch[:maxDeleteBatch]
		}

		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		result, err := h.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(h.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			// Вся пачка не прошла, запоминаем все ее ключи
			failed = append(failed, batch...)
			log.Printf("[S3] Failed to delete batch of %d object(s): %v", len(batch), err)
			continue
		}

		for _, e := range result.Errors {
			failed = append(failed, aws.ToString(e.Key))
			log.Printf("[S3] Failed to delete object %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}

	if len(failed) == len(keys) {
		return failed, fmt.Errorf("failed to delete all %d object(s)", len(keys))
	}

	return failed, nil
}

// PublicURL возвращает стабильный адрес объекта
func (h *Client) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s", h.publicBaseURL, key)
}

// Bucket возвращает имя бакета
func (h *Client) Bucket() string {
	return h.bucket
}
