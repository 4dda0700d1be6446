package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/chainlesschain/chainlesschain-sub001/internal/codes"
	"github.com/chainlesschain/chainlesschain-sub001/internal/metrics"
	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	"github.com/chainlesschain/chainlesschain-sub001/internal/repository"
)

// Шаги восстановления для метрик.
const (
	recoveryStepInitiate = "initiate"
	recoveryStepVerify   = "verify"
	recoveryStepReset    = "reset"
)

const (
	minPasswordLen = 8
	// Допустимое расхождение часов для подтверждения начала восстановления
	recoveryProofSkew = 5 * time.Minute
)

// RecoveryTarget - что восстанавливается. Для пользователя TargetID - имя пользователя.
// Proof необязателен: с ним владелец вытесняет чужие незавершенные сессии цели.
type RecoveryTarget struct {
	Type  models.RecoveryTargetType
	ID    string
	Proof *InitiateProof
}

// InitiateProof - подпись ключом восстановления над целью и временем запроса.
type InitiateProof struct {
	Timestamp time.Time
	Signature string
}

// InitiateResult - созданная сессия и, при встроенной доставке, вызов.
type InitiateResult struct {
	Session   *models.RecoverySession
	Challenge string
}

// VerificationResult - итог проверки ответа на вызов.
type VerificationResult struct {
	SessionID    string
	Status       models.RecoveryStatus
	Verified     bool
	AttemptsLeft int
}

// ResetInput - новый материал учетных данных.
type ResetInput struct {
	NewMasterKeyCiphertext []byte // Для устройства
	NewPassword            string // Для пользователя
}

// ResetResult - итог завершения восстановления.
type ResetResult struct {
	SessionID  string
	Status     models.RecoveryStatus
	TargetType models.RecoveryTargetType
	TargetID   string
}

// RecoveryService проводит восстановление доступа: initiate -> verify -> reset.
type RecoveryService interface {
	Initiate(ctx context.Context, target RecoveryTarget) (*InitiateResult, error)
	Verify(ctx context.Context, sessionID, response string) (*VerificationResult, error)
	Reset(ctx context.Context, sessionID string, in ResetInput) (*ResetResult, error)
}

var _ RecoveryService = (*recoveryService)(nil)

type recoveryService struct {
	base
	db           *sqlx.DB
	recoveryRepo repository.RecoveryRepository
	deviceRepo   repository.DeviceRepository
	userRepo     repository.UserRepository
	rotator      MasterKeyRotator
	sender       ChallengeSender
	policy       Policy
}

// NewRecoveryService создает сервис восстановления доступа.
func NewRecoveryService(
	db *sqlx.DB,
	recoveryRepo repository.RecoveryRepository,
	deviceRepo repository.DeviceRepository,
	userRepo repository.UserRepository,
	rotator MasterKeyRotator,
	sender ChallengeSender,
	policy Policy,
	opts ...Option,
) RecoveryService {
	return &recoveryService{
		base:         newBase(opts),
		db:           db,
		recoveryRepo: recoveryRepo,
		deviceRepo:   deviceRepo,
		userRepo:     userRepo,
		rotator:      rotator,
		sender:       sender,
		policy:       policy.withDefaults(),
	}
}

// Initiate создает сессию со свежим вызовом. Цель должна иметь зарегистрированный ключ восстановления.
// У цели может быть только одна активная сессия; истекшие активные сессии помечаются EXPIRED
// в той же транзакции, а с подтверждением владельца вытесняются и неистекшие.
func (s *recoveryService) Initiate(ctx context.Context, target RecoveryTarget) (*InitiateResult, error) {
	res, err := s.initiate(ctx, target)
	s.metrics.Recovery(recoveryStepInitiate, metrics.ResultOf(err))
	return res, err
}

func (s *recoveryService) initiate(ctx context.Context, target RecoveryTarget) (*InitiateResult, error) {
	target.ID = strings.TrimSpace(target.ID)
	if !target.Type.Valid() || target.ID == "" {
		return nil, validationError("некорректная цель восстановления")
	}
	verifierKey, err := s.checkTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	supersede := false
	if target.Proof != nil {
		if err = checkProof(verifierKey, target, now); err != nil {
			log.Printf("[RecoveryService] Подтверждение восстановления %s '%s' отклонено", target.Type, target.ID)
			return nil, err
		}
		supersede = true
	}

	challenge, err := codes.GenerateChallenge()
	if err != nil {
		return nil, internalError("генерация вызова", err)
	}

	session := &models.RecoverySession{
		SessionID:     uuid.NewString(),
		TargetType:    target.Type,
		TargetID:      target.ID,
		ChallengeHash: codes.HashChallenge(challenge),
		VerifierKey:   verifierKey,
		Status:        models.RecoveryInitiated,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.policy.RecoverySessionTTL),
	}

	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.recoveryRepo.ExpireStaleSessions(ctx, tx, target.Type, target.ID, now); err != nil {
			return internalError("истечение старых сессий", err)
		}
		if supersede {
			if _, err := s.recoveryRepo.SupersedeSessions(ctx, tx, target.Type, target.ID); err != nil {
				return internalError("вытеснение активных сессий", err)
			}
		}
		if err := s.recoveryRepo.CreateSession(ctx, tx, session); err != nil {
			if errors.Is(err, repository.ErrActiveSessionExists) {
				return ErrAlreadyInProgress
			}
			return internalError("создание сессии", err)
		}
		return nil
	})
	if err != nil {
		log.Printf("[RecoveryService] Не удалось начать восстановление для %s '%s': %v", target.Type, target.ID, err)
		return nil, err
	}

	inline, err := s.sender.SendChallenge(ctx, session, challenge)
	if err != nil {
		log.Printf("[RecoveryService] Ошибка доставки вызова сессии '%s': %v", session.SessionID, err)
		s.expireAfterFailedSend(ctx, session.SessionID)
		return nil, internalError("доставка вызова", err)
	}

	log.Printf("[RecoveryService] Сессия '%s' для %s '%s' создана, действует до %s",
		session.SessionID, target.Type, target.ID, session.ExpiresAt.Format(time.RFC3339))
	return &InitiateResult{Session: session, Challenge: inline}, nil
}

// checkTarget проверяет, что цель существует и ее можно восстанавливать.
// Возвращает зарегистрированный ключ восстановления цели.
func (s *recoveryService) checkTarget(ctx context.Context, target RecoveryTarget) ([]byte, error) {
	var key []byte
	if target.Type == models.TargetUser {
		user, err := s.userRepo.GetUserByUsername(ctx, target.ID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, internalError("чтение пользователя", err)
		}
		key = user.RecoveryPublicKey
	} else {
		device, err := s.deviceRepo.GetDevice(ctx, target.ID)
		if err != nil {
			if errors.Is(err, repository.ErrDeviceNotFound) {
				return nil, ErrDeviceNotFound
			}
			return nil, internalError("чтение устройства", err)
		}
		switch device.Status {
		case models.StatusActive, models.StatusLocked:
		case models.StatusDeactivated:
			return nil, ErrDeviceDeactivated
		default:
			return nil, ErrDeviceNotActivated
		}
		key = device.RecoveryPublicKey
	}

	// Без ключа ответ на вызов проверить нечем
	if !codes.ValidRecoveryKey(key) {
		return nil, ErrRecoveryNotEnrolled
	}
	return key, nil
}

// checkProof проверяет подпись владельца над целью и свежесть ее времени.
func checkProof(key []byte, target RecoveryTarget, now time.Time) error {
	ts := target.Proof.Timestamp
	if ts.Before(now.Add(-recoveryProofSkew)) || ts.After(now.Add(recoveryProofSkew)) {
		return ErrInvalidProof
	}
	if !codes.VerifyInitiate(key, target.Type, target.ID, ts, target.Proof.Signature) {
		return ErrInvalidProof
	}
	return nil
}

// expireAfterFailedSend закрывает сессию, вызов которой не удалось доставить,
// чтобы она не блокировала повторную попытку.
func (s *recoveryService) expireAfterFailedSend(ctx context.Context, sessionID string) {
	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		session, err := s.recoveryRepo.GetSessionForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		session.Status = models.RecoveryExpired
		return s.recoveryRepo.UpdateSession(ctx, tx, session)
	})
	if err != nil {
		log.Printf("[RecoveryService] Не удалось закрыть сессию '%s': %v", sessionID, err)
	}
}

// Verify проверяет подпись вызова ключом восстановления цели. При успехе сессия переходит в VERIFIED,
// иначе растет счетчик попыток; исчерпание попыток переводит сессию в EXPIRED.
func (s *recoveryService) Verify(ctx context.Context, sessionID, response string) (*VerificationResult, error) {
	res, err := s.verify(ctx, sessionID, response)
	result := metrics.ResultOf(err)
	if err == nil && !res.Verified {
		result = metrics.ResultFailure
	}
	s.metrics.Recovery(recoveryStepVerify, result)
	return res, err
}

func (s *recoveryService) verify(ctx context.Context, sessionID, response string) (*VerificationResult, error) {
	if strings.TrimSpace(response) == "" {
		return nil, validationError("пустой ответ на вызов")
	}

	now := s.clock()
	var (
		result  *VerificationResult
		outcome error
	)

	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		session, err := s.lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		switch session.EffectiveStatus(now) {
		case models.RecoveryExpired:
			outcome = ErrSessionExpired
			return s.persistExpiry(ctx, tx, session)
		case models.RecoveryInitiated:
		default:
			return ErrSessionState
		}

		if codes.VerifyResponse(session.VerifierKey, session.SessionID, session.ChallengeHash, response) {
			session.Status = models.RecoveryVerified
			session.VerifiedAt = &now
		} else {
			session.Attempts++
			if session.Attempts >= s.policy.RecoveryMaxAttempts {
				session.Status = models.RecoveryExpired
			}
		}
		if err = s.saveSession(ctx, tx, session); err != nil {
			return err
		}

		result = &VerificationResult{
			SessionID:    session.SessionID,
			Status:       session.Status,
			Verified:     session.Status == models.RecoveryVerified,
			AttemptsLeft: max(s.policy.RecoveryMaxAttempts-session.Attempts, 0),
		}
		return nil
	})
	if err == nil {
		err = outcome
	}
	if err != nil {
		log.Printf("[RecoveryService] Проверка сессии '%s' отклонена: %v", sessionID, err)
		return nil, err
	}

	log.Printf("[RecoveryService] Проверка сессии '%s': подтверждено=%t, осталось попыток %d",
		sessionID, result.Verified, result.AttemptsLeft)
	return result, nil
}

// Reset применяет новый материал учетных данных и завершает сессию.
// Завершенная или истекшая сессия повторно не используется.
func (s *recoveryService) Reset(ctx context.Context, sessionID string, in ResetInput) (*ResetResult, error) {
	res, err := s.reset(ctx, sessionID, in)
	s.metrics.Recovery(recoveryStepReset, metrics.ResultOf(err))
	return res, err
}

func (s *recoveryService) reset(ctx context.Context, sessionID string, in ResetInput) (*ResetResult, error) {
	now := s.clock()
	var (
		result  *ResetResult
		outcome error
	)

	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		session, err := s.lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		switch session.EffectiveStatus(now) {
		case models.RecoveryExpired:
			outcome = ErrSessionExpired
			return s.persistExpiry(ctx, tx, session)
		case models.RecoveryVerified:
		default:
			return ErrNotVerified
		}

		if err = s.applyCredential(ctx, tx, session, in); err != nil {
			return err
		}

		session.Status = models.RecoveryCompleted
		session.CompletedAt = &now
		if err = s.saveSession(ctx, tx, session); err != nil {
			return err
		}

		result = &ResetResult{
			SessionID:  session.SessionID,
			Status:     session.Status,
			TargetType: session.TargetType,
			TargetID:   session.TargetID,
		}
		return nil
	})
	if err == nil {
		err = outcome
	}
	if err != nil {
		log.Printf("[RecoveryService] Завершение сессии '%s' отклонено: %v", sessionID, err)
		return nil, err
	}

	log.Printf("[RecoveryService] Сессия '%s' завершена, учетные данные %s '%s' обновлены",
		sessionID, result.TargetType, result.TargetID)
	return result, nil
}

// applyCredential заменяет мастер-ключ устройства или пароль пользователя.
func (s *recoveryService) applyCredential(
	ctx context.Context,
	tx *sqlx.Tx,
	session *models.RecoverySession,
	in ResetInput,
) error {
	if session.TargetType == models.TargetDevice {
		return s.rotator.RotateMasterKey(ctx, tx, session.TargetID, in.NewMasterKeyCiphertext)
	}

	if len(in.NewPassword) < minPasswordLen {
		return validationError("новый пароль короче %d символов", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return internalError("хеширование пароля", err)
	}
	if err = s.userRepo.UpdatePasswordHash(ctx, tx, session.TargetID, string(hash)); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return internalError("обновление пароля", err)
	}
	return nil
}

func (s *recoveryService) lockSession(ctx context.Context, tx *sqlx.Tx, sessionID string) (*models.RecoverySession, error) {
	session, err := s.recoveryRepo.GetSessionForUpdate(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, internalError("чтение сессии", err)
	}
	return session, nil
}

// persistExpiry сохраняет EXPIRED, если сессия истекла лениво.
func (s *recoveryService) persistExpiry(ctx context.Context, tx *sqlx.Tx, session *models.RecoverySession) error {
	if session.Status == models.RecoveryExpired {
		return nil
	}
	session.Status = models.RecoveryExpired
	return s.saveSession(ctx, tx, session)
}

func (s *recoveryService) saveSession(ctx context.Context, tx *sqlx.Tx, session *models.RecoverySession) error {
	if err := s.recoveryRepo.UpdateSession(ctx, tx, session); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return internalError("сохранение сессии", err)
	}
	return nil
}
