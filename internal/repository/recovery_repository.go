package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
)

const recoveryColumns = `session_id, target_type, target_id, challenge_hash, verifier_key, status, attempts,` +
	` created_at, expires_at, verified_at, completed_at`

// RecoveryRepository определяет методы для работы с сессиями восстановления.
// Все методы выполняются в транзакции, переданной через q.
type RecoveryRepository interface {
	ExpireStaleSessions(
		ctx context.Context, q sqlx.ExtContext, targetType models.RecoveryTargetType, targetID string, now time.Time,
	) (int64, error)
	SupersedeSessions(
		ctx context.Context, q sqlx.ExtContext, targetType models.RecoveryTargetType, targetID string,
	) (int64, error)
	CreateSession(ctx context.Context, q sqlx.ExtContext, session *models.RecoverySession) error
	GetSessionForUpdate(ctx context.Context, q sqlx.ExtContext, sessionID string) (*models.RecoverySession, error)
	UpdateSession(ctx context.Context, q sqlx.ExtContext, session *models.RecoverySession) error
}

// postgresRecoveryRepository реализует RecoveryRepository для PostgreSQL.
type postgresRecoveryRepository struct{}

// NewPostgresRecoveryRepository создает новый экземпляр репозитория сессий восстановления.
func NewPostgresRecoveryRepository() RecoveryRepository {
	return &postgresRecoveryRepository{}
}

// ExpireStaleSessions помечает истекшие, но еще активные сессии цели как EXPIRED.
// После этого частичный уникальный индекс больше не учитывает их.
func (r *postgresRecoveryRepository) ExpireStaleSessions(
	ctx context.Context,
	q sqlx.ExtContext,
	targetType models.RecoveryTargetType,
	targetID string,
	now time.Time,
) (int64, error) {
	query := `UPDATE recovery_sessions SET status='EXPIRED'` +
		` WHERE target_type=$1 AND target_id=$2 AND status IN ('INITIATED', 'VERIFIED') AND expires_at <= $3`
	return r.expireSessions(ctx, q, targetType, targetID, query, targetType, targetID, now)
}

// SupersedeSessions завершает все активные сессии цели независимо от срока.
// Используется, когда владелец подтвердил начало восстановления своим ключом.
func (r *postgresRecoveryRepository) SupersedeSessions(
	ctx context.Context,
	q sqlx.ExtContext,
	targetType models.RecoveryTargetType,
	targetID string,
) (int64, error) {
	query := `UPDATE recovery_sessions SET status='EXPIRED'` +
		` WHERE target_type=$1 AND target_id=$2 AND status IN ('INITIATED', 'VERIFIED')`
	return r.expireSessions(ctx, q, targetType, targetID, query, targetType, targetID)
}

func (r *postgresRecoveryRepository) expireSessions(
	ctx context.Context,
	q sqlx.ExtContext,
	targetType models.RecoveryTargetType,
	targetID string,
	query string,
	args ...any,
) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		log.Printf("[RecoveryRepo] Ошибка пометки истекших сессий для %s '%s': %v", targetType, targetID, err)
		return 0, fmt.Errorf("ошибка выполнения запроса на истечение сессий: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}
	if affected > 0 {
		log.Printf("[RecoveryRepo] Помечено истекшими %d сессий для %s '%s'", affected, targetType, targetID)
	}
	return affected, nil
}

// CreateSession вставляет новую сессию. Если у цели уже есть активная сессия,
// уникальный индекс отклоняет вставку и возвращается ErrActiveSessionExists.
func (r *postgresRecoveryRepository) CreateSession(
	ctx context.Context,
	q sqlx.ExtContext,
	session *models.RecoverySession,
) error {
	query := `INSERT INTO recovery_sessions (session_id, target_type, target_id, challenge_hash, verifier_key,` +
		` status, attempts, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := q.ExecContext(ctx, query,
		session.SessionID, session.TargetType, session.TargetID, session.ChallengeHash, session.VerifierKey,
		session.Status, session.Attempts, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Printf("[RecoveryRepo] У %s '%s' уже есть активная сессия", session.TargetType, session.TargetID)
			return ErrActiveSessionExists
		}
		log.Printf("[RecoveryRepo] Ошибка создания сессии для %s '%s': %v", session.TargetType, session.TargetID, err)
		return fmt.Errorf("ошибка выполнения запроса на создание сессии: %w", err)
	}

	log.Printf("[RecoveryRepo] Сессия '%s' создана для %s '%s'", session.SessionID, session.TargetType, session.TargetID)
	return nil
}

// GetSessionForUpdate читает сессию с блокировкой строки.
func (r *postgresRecoveryRepository) GetSessionForUpdate(
	ctx context.Context,
	q sqlx.ExtContext,
	sessionID string,
) (*models.RecoverySession, error) {
	query := `SELECT ` + recoveryColumns + ` FROM recovery_sessions WHERE session_id=$1 FOR UPDATE`
	var session models.RecoverySession

	err := sqlx.GetContext(ctx, q, &session, query, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[RecoveryRepo] Сессия '%s' не найдена", sessionID)
			return nil, ErrSessionNotFound
		}
		log.Printf("[RecoveryRepo] Ошибка при поиске сессии '%s': %v", sessionID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение сессии: %w", err)
	}
	return &session, nil
}

// UpdateSession сохраняет состояние, счетчик попыток и отметки времени сессии.
func (r *postgresRecoveryRepository) UpdateSession(
	ctx context.Context,
	q sqlx.ExtContext,
	session *models.RecoverySession,
) error {
	query := `UPDATE recovery_sessions SET status=$2, attempts=$3, verified_at=$4, completed_at=$5` +
		` WHERE session_id=$1`

	res, err := q.ExecContext(ctx, query,
		session.SessionID, session.Status, session.Attempts, session.VerifiedAt, session.CompletedAt)
	if err != nil {
		log.Printf("[RecoveryRepo] Ошибка обновления сессии '%s': %v", session.SessionID, err)
		return fmt.Errorf("ошибка выполнения запроса на обновление сессии: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	log.Printf("[RecoveryRepo] Сессия '%s' обновлена: %s, попыток %d", session.SessionID, session.Status, session.Attempts)
	return nil
}

// Кастомные ошибки репозитория сессий восстановления.
var (
	ErrSessionNotFound     = errors.New("сессия восстановления не найдена")
	ErrActiveSessionExists = errors.New("у цели уже есть активная сессия восстановления")
)
