package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	"github.com/chainlesschain/chainlesschain-sub001/internal/repository"
	"github.com/chainlesschain/chainlesschain-sub001/internal/storage"
)

// Значения метки op для метрик резервных копий.
const (
	backupOpCreate  = "create"
	backupOpRestore = "restore"
	backupOpDelete  = "delete"
)

// BackupService - хранилище зашифрованных резервных копий устройств.
// Содержимое копий не расшифровывается и не интерпретируется.
type BackupService interface {
	Create(ctx context.Context, deviceID string, userID int64, r io.Reader) (*models.BackupRecord, error)
	List(ctx context.Context, filter models.BackupFilter, page models.PageRequest) (models.Page[models.BackupRecord], error)
	Restore(ctx context.Context, deviceID string, userID int64, backupID string) ([]byte, *models.BackupRecord, error)
	DeleteOwned(ctx context.Context, backupID string, userID int64) error
	DeleteAny(ctx context.Context, backupID string) error
}

var _ BackupService = (*backupService)(nil)

type backupService struct {
	base
	deviceRepo repository.DeviceRepository
	backupRepo repository.BackupRepository
	blobs      storage.BlobStorage
	maxBytes   int64
}

// NewBackupService создает сервис резервных копий.
func NewBackupService(
	deviceRepo repository.DeviceRepository,
	backupRepo repository.BackupRepository,
	blobs storage.BlobStorage,
	policy Policy,
	opts ...Option,
) BackupService {
	return &backupService{
		base:       newBase(opts),
		deviceRepo: deviceRepo,
		backupRepo: backupRepo,
		blobs:      blobs,
		maxBytes:   policy.withDefaults().BackupMaxBytes,
	}
}

// Create сохраняет новую неизменяемую копию для устройства, привязанного к пользователю.
func (s *backupService) Create(
	ctx context.Context,
	deviceID string,
	userID int64,
	r io.Reader,
) (*models.BackupRecord, error) {
	device, err := s.deviceRepo.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, internalError("чтение устройства", err)
	}
	if !device.IsOwnedBy(userID) {
		log.Printf("[BackupService] Пользователь %d не владеет устройством '%s'", userID, deviceID)
		return nil, ErrForbidden
	}
	if device.Status == models.StatusDeactivated {
		return nil, ErrDeviceDeactivated
	}

	// Читаем на байт больше лимита, чтобы отличить копию ровно в лимит от превышения
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, validationError("ошибка чтения тела резервной копии: %v", err)
	}
	if len(data) == 0 {
		return nil, validationError("пустая резервная копия")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, validationError("резервная копия больше %d байт", s.maxBytes)
	}

	backupID := uuid.NewString()
	record := &models.BackupRecord{
		BackupID:    backupID,
		DeviceID:    deviceID,
		OwnerUserID: userID,
		ObjectKey:   fmt.Sprintf("backups/%s/%s", deviceID, backupID),
		Checksum:    checksum(data),
		SizeBytes:   int64(len(data)),
	}

	if err = s.blobs.PutBlob(ctx, record.ObjectKey, bytes.NewReader(data), record.SizeBytes); err != nil {
		return nil, internalError("загрузка резервной копии", err)
	}
	if err = s.backupRepo.CreateBackup(ctx, record); err != nil {
		if delErr := s.blobs.DeleteBlob(ctx, record.ObjectKey); delErr != nil {
			log.Printf("[BackupService] Не удалось удалить осиротевший объект '%s': %v", record.ObjectKey, delErr)
		}
		return nil, internalError("сохранение резервной копии", err)
	}

	s.touch(ctx, deviceID)
	s.metrics.Backup(backupOpCreate)
	log.Printf("[BackupService] Резервная копия '%s' устройства '%s' сохранена (%d байт)",
		backupID, deviceID, record.SizeBytes)
	return record, nil
}

// List возвращает страницу копий, сначала новые.
func (s *backupService) List(
	ctx context.Context,
	filter models.BackupFilter,
	page models.PageRequest,
) (models.Page[models.BackupRecord], error) {
	page = page.Normalize()
	backups, total, err := s.backupRepo.ListBackups(ctx, filter, page.Limit(), page.Offset())
	if err != nil {
		return models.Page[models.BackupRecord]{}, internalError("получение списка резервных копий", err)
	}
	return models.NewPage(backups, total, page), nil
}

// Restore возвращает шифротекст указанной копии или самой свежей, если backupID пуст.
// Чужая копия неотличима от отсутствующей.
func (s *backupService) Restore(
	ctx context.Context,
	deviceID string,
	userID int64,
	backupID string,
) ([]byte, *models.BackupRecord, error) {
	var (
		record *models.BackupRecord
		err    error
	)
	if backupID != "" {
		// Строка не в формате UUID заведомо не идентификатор копии
		id, ok := canonicalBackupID(backupID)
		if !ok {
			return nil, nil, ErrBackupNotFound
		}
		record, err = s.backupRepo.GetBackup(ctx, id)
	} else {
		record, err = s.backupRepo.GetLatestBackup(ctx, deviceID, userID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrBackupNotFound) {
			return nil, nil, ErrBackupNotFound
		}
		return nil, nil, internalError("чтение резервной копии", err)
	}
	if record.DeviceID != deviceID || record.OwnerUserID != userID {
		log.Printf("[BackupService] Копия '%s' не принадлежит устройству '%s' пользователя %d",
			record.BackupID, deviceID, userID)
		return nil, nil, ErrBackupNotFound
	}

	data, err := s.readBlob(ctx, record)
	if err != nil {
		return nil, nil, err
	}

	s.touch(ctx, deviceID)
	s.metrics.Backup(backupOpRestore)
	log.Printf("[BackupService] Копия '%s' устройства '%s' выдана для восстановления", record.BackupID, deviceID)
	return data, record, nil
}

// readBlob читает объект и сверяет размер и контрольную сумму с метаданными.
func (s *backupService) readBlob(ctx context.Context, record *models.BackupRecord) ([]byte, error) {
	rc, err := s.blobs.GetBlob(ctx, record.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: объект '%s' отсутствует", ErrBackupCorrupted, record.ObjectKey)
		}
		return nil, internalError("чтение объекта резервной копии", err)
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Printf("[BackupService] Ошибка закрытия объекта '%s': %v", record.ObjectKey, closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(rc, record.SizeBytes+1))
	if err != nil {
		return nil, internalError("чтение объекта резервной копии", err)
	}
	if int64(len(data)) != record.SizeBytes || checksum(data) != record.Checksum {
		log.Printf("[BackupService] Копия '%s' не прошла проверку целостности", record.BackupID)
		return nil, ErrBackupCorrupted
	}
	return data, nil
}

// DeleteOwned удаляет копию владельца. Повторное удаление не считается ошибкой.
func (s *backupService) DeleteOwned(ctx context.Context, backupID string, userID int64) error {
	return s.delete(ctx, backupID, &userID)
}

// DeleteAny удаляет любую копию (администратор).
func (s *backupService) DeleteAny(ctx context.Context, backupID string) error {
	return s.delete(ctx, backupID, nil)
}

func (s *backupService) delete(ctx context.Context, backupID string, userID *int64) error {
	id, ok := canonicalBackupID(backupID)
	if !ok {
		log.Printf("[BackupService] Копии '%s' нет, удаление пропущено", backupID)
		return nil
	}
	backupID = id
	record, err := s.backupRepo.GetBackup(ctx, backupID)
	if err != nil {
		if errors.Is(err, repository.ErrBackupNotFound) {
			log.Printf("[BackupService] Копии '%s' уже нет, удаление пропущено", backupID)
			return nil
		}
		return internalError("чтение резервной копии", err)
	}
	if userID != nil && record.OwnerUserID != *userID {
		log.Printf("[BackupService] Пользователь %d пытался удалить чужую копию '%s'", *userID, backupID)
		return ErrForbidden
	}

	// Сначала метаданные: восстановление не должно увидеть запись без объекта
	if _, err = s.backupRepo.DeleteBackup(ctx, backupID); err != nil {
		return internalError("удаление резервной копии", err)
	}
	if err = s.blobs.DeleteBlob(ctx, record.ObjectKey); err != nil {
		log.Printf("[BackupService] Объект '%s' не удален, остался в хранилище: %v", record.ObjectKey, err)
	}

	s.metrics.Backup(backupOpDelete)
	log.Printf("[BackupService] Резервная копия '%s' удалена", backupID)
	return nil
}

// touch обновляет last_seen_at. Ошибка не прерывает основную операцию.
func (s *backupService) touch(ctx context.Context, deviceID string) {
	if err := s.deviceRepo.TouchDevice(ctx, deviceID, s.clock()); err != nil {
		log.Printf("[BackupService] Не удалось обновить last_seen_at устройства '%s': %v", deviceID, err)
	}
}

// canonicalBackupID приводит идентификатор копии к каноническому виду UUID.
// ok=false, если строка не UUID.
func canonicalBackupID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
