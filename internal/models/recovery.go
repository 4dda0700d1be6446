package models

import "time"

// RecoveryTargetType - что восстанавливается: устройство или учетная запись.
type RecoveryTargetType string

// Типы целей восстановления.
const (
	TargetDevice RecoveryTargetType = "device"
	TargetUser   RecoveryTargetType = "user"
)

// Valid сообщает, известен ли тип цели.
func (t RecoveryTargetType) Valid() bool {
	return t == TargetDevice || t == TargetUser
}

// RecoveryStatus - состояние сессии восстановления.
type RecoveryStatus string

// Состояния сессии восстановления.
const (
	RecoveryInitiated RecoveryStatus = "INITIATED"
	RecoveryVerified  RecoveryStatus = "VERIFIED"
	RecoveryCompleted RecoveryStatus = "COMPLETED"
	RecoveryExpired   RecoveryStatus = "EXPIRED"
)

// RecoverySession - кратковременное состояние попытки восстановления доступа.
// Хранится только хеш вызова. VerifierKey - снимок ключа восстановления цели
// на момент начала: смена ключа не влияет на уже начатую сессию.
type RecoverySession struct {
	SessionID     string             `db:"session_id" json:"session_id"`
	TargetType    RecoveryTargetType `db:"target_type" json:"target_type"`
	TargetID      string             `db:"target_id" json:"target_id"`
	ChallengeHash string             `db:"challenge_hash" json:"-"`
	VerifierKey   []byte             `db:"verifier_key" json:"-"`
	Status        RecoveryStatus     `db:"status" json:"status"`
	Attempts      int                `db:"attempts" json:"attempts"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time          `db:"expires_at" json:"expires_at"`
	VerifiedAt    *time.Time         `db:"verified_at" json:"verified_at,omitempty"`
	CompletedAt   *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
}

// IsExpiredAt сообщает, истекла ли сессия к моменту now.
func (s *RecoverySession) IsExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// EffectiveStatus возвращает состояние с учетом ленивого истечения:
// нетерминальная сессия после expires_at считается EXPIRED.
func (s *RecoverySession) EffectiveStatus(now time.Time) RecoveryStatus {
	if s.Status == RecoveryCompleted || s.Status == RecoveryExpired {
		return s.Status
	}
	if s.IsExpiredAt(now) {
		return RecoveryExpired
	}
	return s.Status
}
