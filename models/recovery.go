package models

import "time"

// InitiateRecoveryRequest - запрос на начало восстановления доступа.
type InitiateRecoveryRequest struct {
	TargetType string `json:"target_type" validate:"required,oneof=device user"`
	TargetID   string `json:"target_id" validate:"required,max=64"`
	// Proof необязателен. Подписанный запрос вытесняет чужие активные сессии цели.
	Proof *RecoveryProof `json:"proof,omitempty"`
}

// RecoveryProof - подпись ключом восстановления над целью и временем запроса (unix, секунды).
type RecoveryProof struct {
	Timestamp int64  `json:"timestamp" validate:"required,gt=0"`
	Signature string `json:"signature" validate:"required,max=128"`
}

// InitiateRecoveryResponse - созданная сессия восстановления.
// Challenge заполняется только если вызов доставляется в ответе, а не по внешнему каналу.
type InitiateRecoveryResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	Challenge string    `json:"challenge,omitempty"`
}

// VerifyRecoveryRequest - ответ клиента на вызов.
type VerifyRecoveryRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	Response  string `json:"response" validate:"required,max=256"`
}

// VerifyRecoveryResponse - результат проверки ответа.
type VerifyRecoveryResponse struct {
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	Verified     bool   `json:"verified"`
	AttemptsLeft int    `json:"attempts_left"`
}

// ResetRecoveryRequest - новый материал учетных данных.
// Для устройства передается new_master_key_encrypted (base64), для пользователя - new_password.
type ResetRecoveryRequest struct {
	SessionID             string `json:"session_id" validate:"required,uuid"`
	NewMasterKeyEncrypted []byte `json:"new_master_key_encrypted,omitempty" validate:"max=65536"`
	NewPassword           string `json:"new_password,omitempty" validate:"omitempty,min=8,max=128"`
}

// ResetRecoveryResponse - результат завершения восстановления.
type ResetRecoveryResponse struct {
	SessionID  string `json:"session_id"`
	Status     string `json:"status"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}
