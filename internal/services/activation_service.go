package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/chainlesschain/chainlesschain-sub001/internal/codes"
	"github.com/chainlesschain/chainlesschain-sub001/internal/lifecycle"
	"github.com/chainlesschain/chainlesschain-sub001/internal/metrics"
	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	"github.com/chainlesschain/chainlesschain-sub001/internal/repository"
)

// ActivationCode - выданный код активации. Открытый код возвращается только здесь.
type ActivationCode struct {
	DeviceID  string
	Code      string
	ExpiresAt time.Time
}

// RedeemInput - параметры погашения кода активации.
type RedeemInput struct {
	DeviceID            string
	Code                string
	UserID              int64
	MasterKeyCiphertext []byte
	RecoveryPublicKey   []byte // Ed25519, для подписи вызовов восстановления устройства
}

// ActivationResult - итог успешной активации.
type ActivationResult struct {
	DeviceID    string
	Status      models.DeviceStatus
	ActivatedAt time.Time
}

// ActivationService выдает и погашает коды активации и выполняет
// административные переходы жизненного цикла.
type ActivationService interface {
	IssueCode(ctx context.Context, deviceID string) (*ActivationCode, error)
	Redeem(ctx context.Context, in RedeemInput) (*ActivationResult, error)
	Lock(ctx context.Context, deviceID, reason string) (*models.Device, error)
	Unlock(ctx context.Context, deviceID string) (*models.Device, error)
	Deactivate(ctx context.Context, deviceID string) (*models.Device, error)
}

// MasterKeyRotator заменяет шифротекст мастер-ключа в рамках чужой транзакции.
type MasterKeyRotator interface {
	RotateMasterKey(ctx context.Context, q sqlx.ExtContext, deviceID string, ciphertext []byte) error
}

// ActivationEngine объединяет операции активации и замену мастер-ключа.
type ActivationEngine interface {
	ActivationService
	MasterKeyRotator
}

var _ ActivationEngine = (*activationService)(nil)

type activationService struct {
	base
	db         *sqlx.DB
	deviceRepo repository.DeviceRepository
	policy     Policy
}

// NewActivationService создает сервис активации.
func NewActivationService(
	db *sqlx.DB,
	deviceRepo repository.DeviceRepository,
	policy Policy,
	opts ...Option,
) ActivationEngine {
	return &activationService{
		base:       newBase(opts),
		db:         db,
		deviceRepo: deviceRepo,
		policy:     policy.withDefaults(),
	}
}

// IssueCode выдает новый код активации. Предыдущий непогашенный код сразу перестает действовать.
// Код выдается только для устройств в состоянии INACTIVE.
func (s *activationService) IssueCode(ctx context.Context, deviceID string) (*ActivationCode, error) {
	code, err := codes.GenerateActivationCode()
	if err != nil {
		return nil, internalError("генерация кода активации", err)
	}
	expiresAt := s.clock().Add(s.policy.ActivationCodeTTL)

	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		device, err := s.lockDevice(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		// Код имеет смысл только там, где его можно погасить
		if device.Status == models.StatusDeactivated {
			return ErrDeviceDeactivated
		}
		if !lifecycle.CanTransition(device.Status, lifecycle.TriggerRedeem) {
			return ErrAlreadyActive
		}

		hash := codes.HashActivationCode(code)
		device.ActivationCodeHash = &hash
		device.ActivationExpiresAt = &expiresAt
		return s.saveDevice(ctx, tx, device)
	})
	if err != nil {
		log.Printf("[ActivationService] Не удалось выдать код для устройства '%s': %v", deviceID, err)
		return nil, err
	}

	log.Printf("[ActivationService] Выдан код активации для устройства '%s', действует до %s",
		deviceID, expiresAt.Format(time.RFC3339))
	return &ActivationCode{DeviceID: deviceID, Code: code, ExpiresAt: expiresAt}, nil
}

// Redeem погашает код и привязывает устройство к пользователю.
// Проверка кода и смена состояния выполняются под блокировкой строки,
// поэтому из конкурирующих погашений успешно только одно.
func (s *activationService) Redeem(ctx context.Context, in RedeemInput) (*ActivationResult, error) {
	res, err := s.redeem(ctx, in)
	s.metrics.Activation(metrics.ResultOf(err))
	return res, err
}

func (s *activationService) redeem(ctx context.Context, in RedeemInput) (*ActivationResult, error) {
	if strings.TrimSpace(in.DeviceID) == "" || strings.TrimSpace(in.Code) == "" {
		return nil, validationError("не указан идентификатор устройства или код активации")
	}
	if in.UserID <= 0 {
		return nil, validationError("не указан пользователь")
	}
	if len(in.MasterKeyCiphertext) == 0 {
		return nil, validationError("не передан зашифрованный мастер-ключ")
	}
	if !codes.ValidRecoveryKey(in.RecoveryPublicKey) {
		return nil, validationError("ключ восстановления должен быть открытым ключом Ed25519")
	}

	now := s.clock()
	var result *ActivationResult

	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		device, err := s.lockDevice(ctx, tx, in.DeviceID)
		if err != nil {
			return err
		}

		switch device.Status {
		case models.StatusDeactivated:
			return ErrDeviceDeactivated
		case models.StatusActive:
			return ErrAlreadyActive
		}
		to, err := lifecycle.Transition(device.Status, lifecycle.TriggerRedeem)
		if err != nil {
			return err
		}

		if device.ActivationCodeHash == nil || !codes.MatchActivationCode(in.Code, *device.ActivationCodeHash) {
			return ErrCodeMismatch
		}
		if device.ActivationExpiresAt == nil || !now.Before(*device.ActivationExpiresAt) {
			return ErrCodeExpired
		}

		owner := in.UserID
		device.Status = to
		device.OwnerUserID = &owner
		device.MasterKeyCiphertext = in.MasterKeyCiphertext
		device.RecoveryPublicKey = in.RecoveryPublicKey
		device.ActivatedAt = &now
		device.LastSeenAt = &now
		// Код одноразовый
		device.ActivationCodeHash = nil
		device.ActivationExpiresAt = nil
		if err = s.saveDevice(ctx, tx, device); err != nil {
			return err
		}

		result = &ActivationResult{DeviceID: device.DeviceID, Status: device.Status, ActivatedAt: now}
		return nil
	})
	if err != nil {
		log.Printf("[ActivationService] Активация устройства '%s' пользователем %d отклонена: %v",
			in.DeviceID, in.UserID, err)
		return nil, err
	}

	s.metrics.Transition(string(result.Status))
	log.Printf("[ActivationService] Устройство '%s' активировано пользователем %d", in.DeviceID, in.UserID)
	return result, nil
}

// Lock блокирует активное устройство с указанием причины.
func (s *activationService) Lock(ctx context.Context, deviceID, reason string) (*models.Device, error) {
	return s.transition(ctx, deviceID, lifecycle.TriggerLock, func(d *models.Device) {
		if reason = strings.TrimSpace(reason); reason != "" {
			d.LockReason = &reason
		}
	})
}

// Unlock возвращает заблокированное устройство в ACTIVE.
func (s *activationService) Unlock(ctx context.Context, deviceID string) (*models.Device, error) {
	return s.transition(ctx, deviceID, lifecycle.TriggerUnlock, func(d *models.Device) {
		d.LockReason = nil
	})
}

// Deactivate необратимо выводит устройство из эксплуатации.
// Непогашенный код активации аннулируется.
func (s *activationService) Deactivate(ctx context.Context, deviceID string) (*models.Device, error) {
	return s.transition(ctx, deviceID, lifecycle.TriggerDeactivate, func(d *models.Device) {
		d.ActivationCodeHash = nil
		d.ActivationExpiresAt = nil
	})
}

// transition выполняет чтение, проверку и запись состояния устройства атомарно.
func (s *activationService) transition(
	ctx context.Context,
	deviceID string,
	trigger lifecycle.Trigger,
	mutate func(*models.Device),
) (*models.Device, error) {
	var updated *models.Device

	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		device, err := s.lockDevice(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		to, err := lifecycle.Transition(device.Status, trigger)
		if err != nil {
			return err
		}
		device.Status = to
		mutate(device)
		if err = s.saveDevice(ctx, tx, device); err != nil {
			return err
		}
		updated = device
		return nil
	})
	if err != nil {
		log.Printf("[ActivationService] Переход '%s' для устройства '%s' отклонен: %v", trigger, deviceID, err)
		return nil, err
	}

	s.metrics.Transition(string(updated.Status))
	log.Printf("[ActivationService] Устройство '%s' переведено в %s (%s)", deviceID, updated.Status, trigger)
	return updated, nil
}

// RotateMasterKey заменяет шифротекст мастер-ключа устройства в состоянии ACTIVE или LOCKED.
// Вызывается из восстановления внутри его транзакции.
func (s *activationService) RotateMasterKey(
	ctx context.Context,
	q sqlx.ExtContext,
	deviceID string,
	ciphertext []byte,
) error {
	if len(ciphertext) == 0 {
		return validationError("не передан новый зашифрованный мастер-ключ")
	}
	device, err := s.lockDevice(ctx, q, deviceID)
	if err != nil {
		return err
	}
	switch device.Status {
	case models.StatusActive, models.StatusLocked:
	case models.StatusDeactivated:
		return ErrDeviceDeactivated
	default:
		return ErrDeviceNotActivated
	}

	now := s.clock()
	device.MasterKeyCiphertext = ciphertext
	device.LastSeenAt = &now
	if err = s.saveDevice(ctx, q, device); err != nil {
		return err
	}
	log.Printf("[ActivationService] Мастер-ключ устройства '%s' заменен (%d байт)", deviceID, len(ciphertext))
	return nil
}

func (s *activationService) lockDevice(ctx context.Context, q sqlx.ExtContext, deviceID string) (*models.Device, error) {
	device, err := s.deviceRepo.GetDeviceForUpdate(ctx, q, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, internalError("чтение устройства", err)
	}
	return device, nil
}

// saveDevice проверяет инварианты состояния и сохраняет устройство.
func (s *activationService) saveDevice(ctx context.Context, q sqlx.ExtContext, device *models.Device) error {
	if err := lifecycle.CheckInvariants(device); err != nil {
		return internalError("проверка инвариантов", err)
	}
	if err := s.deviceRepo.UpdateDevice(ctx, q, device); err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			return ErrDeviceNotFound
		}
		return internalError("сохранение устройства", err)
	}
	return nil
}
