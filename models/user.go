package models

import "time"

// User представляет пользователя системы (владельца устройств).
// Тэги `db` используются для маппинга с полями БД с помощью sqlx.
// Тэги `json` используются для (де)сериализации JSON.
type User struct {
	ID           int64  `db:"id" json:"id"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"` // Не отправляем хеш пароля в JSON
	// Открытый ключ Ed25519 для восстановления доступа, nil - не зарегистрирован
	RecoveryPublicKey []byte    `db:"recovery_public_key" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// SetRecoveryKeyRequest - регистрация ключа восстановления учетной записи.
// Ключ передается в base64 (стандартная кодировка []byte в JSON).
type SetRecoveryKeyRequest struct {
	PublicKey []byte `json:"public_key" validate:"required,len=32"`
}

// RegisterRequest представляет тело запроса на регистрацию.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest представляет тело запроса на вход.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse представляет тело ответа при успешном входе.
type LoginResponse struct {
	Token string `json:"token"`
}

// ErrorResponse - тело ответа с ошибкой.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// RegisterResponse возвращает идентификатор созданного пользователя.
type RegisterResponse struct {
	UserID int64 `json:"user_id"`
}
