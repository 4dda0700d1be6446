package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
)

const backupColumns = `backup_id, device_id, owner_user_id, object_key, checksum, size_bytes, created_at`

// BackupRepository определяет методы для работы с метаданными резервных копий.
// Записи неизменяемы: есть только вставка, чтение и удаление.
type BackupRepository interface {
	CreateBackup(ctx context.Context, backup *models.BackupRecord) error
	GetBackup(ctx context.Context, backupID string) (*models.BackupRecord, error)
	GetLatestBackup(ctx context.Context, deviceID string, ownerUserID int64) (*models.BackupRecord, error)
	ListBackups(ctx context.Context, filter models.BackupFilter, limit, offset int) ([]models.BackupRecord, int, error)
	DeleteBackup(ctx context.Context, backupID string) (bool, error)
}

// postgresBackupRepository реализует BackupRepository для PostgreSQL.
type postgresBackupRepository struct {
	db *sqlx.DB
}

// NewPostgresBackupRepository создает новый экземпляр репозитория резервных копий.
func NewPostgresBackupRepository(db *sqlx.DB) BackupRepository {
	return &postgresBackupRepository{db: db}
}

// CreateBackup добавляет новую запись о резервной копии.
func (r *postgresBackupRepository) CreateBackup(ctx context.Context, backup *models.BackupRecord) error {
	query := `INSERT INTO backups (backup_id, device_id, owner_user_id, object_key, checksum, size_bytes)` +
		` VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		backup.BackupID, backup.DeviceID, backup.OwnerUserID, backup.ObjectKey, backup.Checksum, backup.SizeBytes,
	).Scan(&backup.CreatedAt)
	if err != nil {
		log.Printf("[BackupRepo] Ошибка создания резервной копии '%s' для устройства '%s': %v",
			backup.BackupID, backup.DeviceID, err)
		return fmt.Errorf("ошибка выполнения запроса на создание резервной копии: %w", err)
	}

	log.Printf("[BackupRepo] Резервная копия '%s' создана для устройства '%s' (%d байт)",
		backup.BackupID, backup.DeviceID, backup.SizeBytes)
	return nil
}

// GetBackup находит резервную копию по идентификатору.
func (r *postgresBackupRepository) GetBackup(ctx context.Context, backupID string) (*models.BackupRecord, error) {
	query := `SELECT ` + backupColumns + ` FROM backups WHERE backup_id=$1`
	var backup models.BackupRecord

	err := r.db.GetContext(ctx, &backup, query, backupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[BackupRepo] Резервная копия '%s' не найдена", backupID)
			return nil, ErrBackupNotFound
		}
		log.Printf("[BackupRepo] Ошибка при поиске резервной копии '%s': %v", backupID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение резервной копии: %w", err)
	}
	return &backup, nil
}

// GetLatestBackup возвращает самую свежую резервную копию устройства для владельца.
func (r *postgresBackupRepository) GetLatestBackup(
	ctx context.Context,
	deviceID string,
	ownerUserID int64,
) (*models.BackupRecord, error) {
	query := `SELECT ` + backupColumns + ` FROM backups WHERE device_id=$1 AND owner_user_id=$2` +
		` ORDER BY created_at DESC, backup_id DESC LIMIT 1`
	var backup models.BackupRecord

	err := r.db.GetContext(ctx, &backup, query, deviceID, ownerUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[BackupRepo] Резервных копий устройства '%s' для пользователя %d нет", deviceID, ownerUserID)
			return nil, ErrBackupNotFound
		}
		log.Printf("[BackupRepo] Ошибка при поиске последней резервной копии '%s': %v", deviceID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение последней резервной копии: %w", err)
	}
	return &backup, nil
}

// ListBackups возвращает страницу резервных копий (сначала новые) и общее количество.
func (r *postgresBackupRepository) ListBackups(
	ctx context.Context,
	filter models.BackupFilter,
	limit,
	offset int,
) ([]models.BackupRecord, int, error) {
	var conds []string
	var args []any
	if filter.DeviceID != "" {
		args = append(args, filter.DeviceID)
		conds = append(conds, fmt.Sprintf("device_id=$%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conds = append(conds, fmt.Sprintf("owner_user_id=$%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM backups`+where, args...); err != nil {
		log.Printf("[BackupRepo] Ошибка подсчета резервных копий: %v", err)
		return nil, 0, fmt.Errorf("ошибка выполнения запроса на подсчет резервных копий: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM backups%s ORDER BY created_at DESC, backup_id DESC LIMIT $%d OFFSET $%d`,
		backupColumns, where, len(args)+1, len(args)+2)
	backups := make([]models.BackupRecord, 0, limit)
	if err := r.db.SelectContext(ctx, &backups, query, append(args, limit, offset)...); err != nil {
		log.Printf("[BackupRepo] Ошибка получения списка резервных копий: %v", err)
		return nil, 0, fmt.Errorf("ошибка выполнения запроса на получение списка резервных копий: %w", err)
	}

	log.Printf("[BackupRepo] Получено %d из %d резервных копий (limit=%d, offset=%d)",
		len(backups), total, limit, offset)
	return backups, total, nil
}

// DeleteBackup удаляет запись. Возвращает false, если записи уже не было.
func (r *postgresBackupRepository) DeleteBackup(ctx context.Context, backupID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM backups WHERE backup_id=$1`, backupID)
	if err != nil {
		log.Printf("[BackupRepo] Ошибка удаления резервной копии '%s': %v", backupID, err)
		return false, fmt.Errorf("ошибка выполнения запроса на удаление резервной копии: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка получения числа удаленных строк: %w", err)
	}

	log.Printf("[BackupRepo] Удаление резервной копии '%s': удалено строк %d", backupID, affected)
	return affected > 0, nil
}

// Кастомные ошибки репозитория резервных копий.
var (
	ErrBackupNotFound = errors.New("резервная копия не найдена")
)
