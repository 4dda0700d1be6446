package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/chainlesschain/chainlesschain-sub001/models"
)

// Коды ошибок PostgreSQL.
const (
	pgUniqueViolationCode = "23505"
)

// UserRepository определяет методы для работы с данными пользователей в хранилище.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	SetRecoveryKey(ctx context.Context, userID int64, publicKey []byte) error
	UpdatePasswordHash(ctx context.Context, q sqlx.ExtContext, username, passwordHash string) error
}

// postgresUserRepository реализует UserRepository для PostgreSQL.
type postgresUserRepository struct {
	db *sqlx.DB
}

// NewPostgresUserRepository создает новый экземпляр репозитория пользователей для PostgreSQL.
func NewPostgresUserRepository(db *sqlx.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

// CreateUser создает нового пользователя в базе данных.
// Возвращает ID созданного пользователя или ошибку.
func (r *postgresUserRepository) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	query := `INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`
	var userID int64

	err := r.db.QueryRowxContext(ctx, query, user.Username, user.PasswordHash).Scan(&userID)
	if err != nil {
		// Проверяем на ошибку нарушения уникальности (duplicate key)
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Printf("[Repo] Ошибка создания пользователя: имя пользователя '%s' уже занято", user.Username)
			return 0, ErrUsernameTaken
		}
		log.Printf("[Repo] Непредвиденная ошибка при создании пользователя '%s': %v", user.Username, err)
		return 0, fmt.Errorf("ошибка выполнения запроса на создание пользователя: %w", err)
	}

	log.Printf("[Repo] Пользователь '%s' успешно создан с ID %d", user.Username, userID)
	return userID, nil
}

// GetUserByUsername находит пользователя по его имени.
func (r *postgresUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password_hash, recovery_public_key, created_at, updated_at` +
		` FROM users WHERE username=$1`
	return r.getUser(ctx, query, username, fmt.Sprintf("'%s'", username))
}

func (r *postgresUserRepository) getUser(ctx context.Context, query string, arg any, label string) (*models.User, error) {
	var user models.User

	err := r.db.GetContext(ctx, &user, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[Repo] Пользователь %s не найден", label)
			return nil, ErrUserNotFound
		}
		log.Printf("[Repo] Ошибка при поиске пользователя %s: %v", label, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение пользователя: %w", err)
	}

	log.Printf("[Repo] Найден пользователь '%s' (ID: %d)", user.Username, user.ID)
	return &user, nil
}

// UpdatePasswordHash заменяет хеш пароля пользователя в рамках транзакции.
func (r *postgresUserRepository) UpdatePasswordHash(
	ctx context.Context,
	q sqlx.ExtContext,
	username,
	passwordHash string,
) error {
	res, err := q.ExecContext(ctx,
		`UPDATE users SET password_hash=$2, updated_at=NOW() WHERE username=$1`, username, passwordHash)
	if err != nil {
		log.Printf("[Repo] Ошибка обновления пароля пользователя '%s': %v", username, err)
		return fmt.Errorf("ошибка выполнения запроса на обновление пароля: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	log.Printf("[Repo] Пароль пользователя '%s' обновлен", username)
	return nil
}

// SetRecoveryKey регистрирует или заменяет открытый ключ восстановления пользователя.
func (r *postgresUserRepository) SetRecoveryKey(ctx context.Context, userID int64, publicKey []byte) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET recovery_public_key=$2, updated_at=NOW() WHERE id=$1`, userID, publicKey)
	if err != nil {
		log.Printf("[Repo] Ошибка сохранения ключа восстановления пользователя %d: %v", userID, err)
		return fmt.Errorf("ошибка выполнения запроса на сохранение ключа восстановления: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	log.Printf("[Repo] Ключ восстановления пользователя %d сохранен", userID)
	return nil
}

// Кастомные ошибки репозитория.
var (
	ErrUserNotFound  = errors.New("пользователь не найден")
	ErrUsernameTaken = errors.New("имя пользователя уже занято")
)
