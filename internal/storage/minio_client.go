package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// contentTypeCiphertext - тип содержимого шифротекста резервных копий.
const contentTypeCiphertext = "application/octet-stream"

// BlobStorage определяет интерфейс объектного хранилища шифротекстов резервных копий.
type BlobStorage interface {
	PutBlob(ctx context.Context, objectKey string, reader io.Reader, size int64) error
	GetBlob(ctx context.Context, objectKey string) (io.ReadCloser, error)
	DeleteBlob(ctx context.Context, objectKey string) error
}

// MinioClient реализует BlobStorage для MinIO.
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// MinioConfig содержит параметры для подключения к MinIO.
type MinioConfig struct {
	Endpoint        string // Адрес MinIO (например, "localhost:9000")
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string // Бакет для шифротекстов резервных копий
	Region          string
}

// NewMinioClient создает клиент MinIO и при необходимости создает бакет.
func NewMinioClient(ctx context.Context, cfg MinioConfig) (*MinioClient, error) {
	log.Printf("Инициализация клиента MinIO для эндпоинта %s...", cfg.Endpoint)

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	exists, err := minioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки существования бакета '%s': %w", cfg.BucketName, err)
	}
	if !exists {
		log.Printf("Бакет '%s' не найден, попытка создания...", cfg.BucketName)
		err = minioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region})
		if err != nil {
			return nil, fmt.Errorf("ошибка создания бакета '%s': %w", cfg.BucketName, err)
		}
		log.Printf("Бакет '%s' успешно создан.", cfg.BucketName)
	}

	log.Printf("Клиент MinIO инициализирован для бакета '%s'.", cfg.BucketName)
	return &MinioClient{
		client:     minioClient,
		bucketName: cfg.BucketName,
	}, nil
}

// PutBlob загружает шифротекст в MinIO. Содержимое не логируется.
func (c *MinioClient) PutBlob(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	uploadInfo, err := c.client.PutObject(ctx, c.bucketName, objectKey, reader, size,
		minio.PutObjectOptions{ContentType: contentTypeCiphertext})
	if err != nil {
		log.Printf("[Minio] Ошибка загрузки объекта '%s': %v", objectKey, err)
		return fmt.Errorf("ошибка загрузки объекта в MinIO: %w", err)
	}

	log.Printf("[Minio] Объект '%s' загружен, размер: %d, ETag: %s", objectKey, uploadInfo.Size, uploadInfo.ETag)
	return nil
}

// GetBlob возвращает поток шифротекста. Вызывающий код должен закрыть его.
func (c *MinioClient) GetBlob(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	object, err := c.client.GetObject(ctx, c.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			log.Printf("[Minio] Объект '%s' не найден в бакете '%s'", objectKey, c.bucketName)
			return nil, ErrObjectNotFound
		}
		log.Printf("[Minio] Ошибка получения объекта '%s': %v", objectKey, err)
		return nil, fmt.Errorf("ошибка получения объекта из MinIO: %w", err)
	}

	// GetObject ленивый: отсутствие ключа проявляется только при первом обращении
	if _, err = object.Stat(); err != nil {
		_ = object.Close()
		if isNoSuchKey(err) {
			log.Printf("[Minio] Объект '%s' не найден в бакете '%s'", objectKey, c.bucketName)
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("ошибка получения метаданных объекта из MinIO: %w", err)
	}

	return object, nil
}

// DeleteBlob удаляет объект. Отсутствие объекта ошибкой не считается.
func (c *MinioClient) DeleteBlob(ctx context.Context, objectKey string) error {
	err := c.client.RemoveObject(ctx, c.bucketName, objectKey, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		log.Printf("[Minio] Ошибка удаления объекта '%s': %v", objectKey, err)
		return fmt.Errorf("ошибка удаления объекта из MinIO: %w", err)
	}
	log.Printf("[Minio] Объект '%s' удален", objectKey)
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// Кастомная ошибка хранилища.
var (
	ErrObjectNotFound = errors.New("объект не найден в хранилище")
)
