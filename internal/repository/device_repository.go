package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
)

// Имена ограничений таблицы devices.
const (
	devicesPKeyConstraint   = "devices_pkey"
	devicesSerialConstraint = "devices_manufacturer_serial_key"
)

const deviceColumns = `device_id, device_type, serial_number, manufacturer, model, hardware_version,` +
	` firmware_version, status, activation_code_hash, activation_expires_at, activated_at, owner_user_id,` +
	` master_key_ciphertext, recovery_public_key, lock_reason, last_seen_at, created_at, updated_at`

// DeviceRepository определяет методы для работы с записями устройств.
// Методы с параметром q выполняются в переданной транзакции.
type DeviceRepository interface {
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	GetDeviceForUpdate(ctx context.Context, q sqlx.ExtContext, deviceID string) (*models.Device, error)
	UpdateDevice(ctx context.Context, q sqlx.ExtContext, device *models.Device) error
	ListDevices(ctx context.Context, filter models.DeviceFilter, limit, offset int) ([]models.Device, int, error)
	TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error
}

// postgresDeviceRepository реализует DeviceRepository для PostgreSQL.
type postgresDeviceRepository struct {
	db *sqlx.DB
}

// NewPostgresDeviceRepository создает новый экземпляр репозитория устройств.
func NewPostgresDeviceRepository(db *sqlx.DB) DeviceRepository {
	return &postgresDeviceRepository{db: db}
}

// CreateDevice вставляет новое устройство в состоянии INACTIVE.
// Возвращает ErrSerialTaken или ErrDeviceIDTaken при нарушении уникальности.
func (r *postgresDeviceRepository) CreateDevice(ctx context.Context, device *models.Device) error {
	query := `INSERT INTO devices (device_id, device_type, serial_number, manufacturer, model,` +
		` hardware_version, firmware_version, status)` +
		` VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		device.DeviceID, device.DeviceType, device.SerialNumber, device.Manufacturer, device.Model,
		device.HardwareVersion, device.FirmwareVersion, device.Status,
	).Scan(&device.CreatedAt, &device.UpdatedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			switch pgErr.Constraint {
			case devicesPKeyConstraint:
				log.Printf("[DeviceRepo] Коллизия идентификатора устройства '%s'", device.DeviceID)
				return ErrDeviceIDTaken
			default:
				log.Printf("[DeviceRepo] Серийный номер '%s' (%s) уже зарегистрирован",
					device.SerialNumber, device.Manufacturer)
				return ErrSerialTaken
			}
		}
		log.Printf("[DeviceRepo] Непредвиденная ошибка при создании устройства '%s': %v", device.DeviceID, err)
		return fmt.Errorf("ошибка выполнения запроса на создание устройства: %w", err)
	}

	log.Printf("[DeviceRepo] Устройство '%s' (серийный номер '%s') создано", device.DeviceID, device.SerialNumber)
	return nil
}

// GetDevice находит устройство по идентификатору.
func (r *postgresDeviceRepository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	return r.getDevice(ctx, r.db, `SELECT `+deviceColumns+` FROM devices WHERE device_id=$1`, deviceID)
}

// GetDeviceForUpdate читает устройство с блокировкой строки до конца транзакции.
func (r *postgresDeviceRepository) GetDeviceForUpdate(
	ctx context.Context,
	q sqlx.ExtContext,
	deviceID string,
) (*models.Device, error) {
	return r.getDevice(ctx, q, `SELECT `+deviceColumns+` FROM devices WHERE device_id=$1 FOR UPDATE`, deviceID)
}

func (r *postgresDeviceRepository) getDevice(
	ctx context.Context,
	q sqlx.QueryerContext,
	query string,
	deviceID string,
) (*models.Device, error) {
	var device models.Device
	err := sqlx.GetContext(ctx, q, &device, query, deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[DeviceRepo] Устройство '%s' не найдено", deviceID)
			return nil, ErrDeviceNotFound
		}
		log.Printf("[DeviceRepo] Ошибка при поиске устройства '%s': %v", deviceID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение устройства: %w", err)
	}
	return &device, nil
}

// UpdateDevice сохраняет изменяемые поля состояния устройства.
func (r *postgresDeviceRepository) UpdateDevice(ctx context.Context, q sqlx.ExtContext, device *models.Device) error {
	query := `UPDATE devices SET status=$2, activation_code_hash=$3, activation_expires_at=$4, activated_at=$5,` +
		` owner_user_id=$6, master_key_ciphertext=$7, recovery_public_key=$8, lock_reason=$9, last_seen_at=$10,` +
		` updated_at=NOW() WHERE device_id=$1`

	res, err := q.ExecContext(ctx, query,
		device.DeviceID, device.Status, device.ActivationCodeHash, device.ActivationExpiresAt, device.ActivatedAt,
		device.OwnerUserID, device.MasterKeyCiphertext, device.RecoveryPublicKey, device.LockReason, device.LastSeenAt,
	)
	if err != nil {
		log.Printf("[DeviceRepo] Ошибка обновления устройства '%s': %v", device.DeviceID, err)
		return fmt.Errorf("ошибка выполнения запроса на обновление устройства: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}
	if affected == 0 {
		log.Printf("[DeviceRepo] Устройство '%s' не найдено при обновлении", device.DeviceID)
		return ErrDeviceNotFound
	}

	log.Printf("[DeviceRepo] Устройство '%s' обновлено, состояние %s", device.DeviceID, device.Status)
	return nil
}

// ListDevices возвращает страницу устройств (сначала новые) и общее количество по фильтру.
func (r *postgresDeviceRepository) ListDevices(
	ctx context.Context,
	filter models.DeviceFilter,
	limit,
	offset int,
) ([]models.Device, int, error) {
	where, args := buildDeviceWhere(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM devices` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		log.Printf("[DeviceRepo] Ошибка подсчета устройств: %v", err)
		return nil, 0, fmt.Errorf("ошибка выполнения запроса на подсчет устройств: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM devices%s ORDER BY created_at DESC, device_id DESC LIMIT $%d OFFSET $%d`,
		deviceColumns, where, len(args)+1, len(args)+2)
	devices := make([]models.Device, 0, limit)
	if err := r.db.SelectContext(ctx, &devices, query, append(args, limit, offset)...); err != nil {
		log.Printf("[DeviceRepo] Ошибка получения списка устройств: %v", err)
		return nil, 0, fmt.Errorf("ошибка выполнения запроса на получение списка устройств: %w", err)
	}

	log.Printf("[DeviceRepo] Получено %d из %d устройств (limit=%d, offset=%d)", len(devices), total, limit, offset)
	return devices, total, nil
}

// buildDeviceWhere собирает условие WHERE и аргументы по фильтру.
func buildDeviceWhere(filter models.DeviceFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.DeviceType != "" {
		args = append(args, filter.DeviceType)
		conds = append(conds, fmt.Sprintf("device_type=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		args = append(args, "%"+escapeLike(kw)+"%")
		conds = append(conds, fmt.Sprintf("(device_id ILIKE $%d OR serial_number ILIKE $%d)", len(args), len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// TouchDevice обновляет время последней активности устройства.
func (r *postgresDeviceRepository) TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE devices SET last_seen_at=$2 WHERE device_id=$1`, deviceID, seenAt)
	if err != nil {
		log.Printf("[DeviceRepo] Ошибка обновления last_seen_at для '%s': %v", deviceID, err)
		return fmt.Errorf("ошибка обновления времени активности устройства: %w", err)
	}
	return nil
}

// Кастомные ошибки репозитория устройств.
var (
	ErrDeviceNotFound = errors.New("устройство не найдено")
	ErrSerialTaken    = errors.New("серийный номер уже зарегистрирован")
	ErrDeviceIDTaken  = errors.New("идентификатор устройства уже занят")
)
