package models

import "time"

// DeviceSpec описывает одно устройство в партии на регистрацию.
type DeviceSpec struct {
	DeviceType      string `json:"device_type" validate:"required,oneof=UKEY SIMKEY"`
	SerialNumber    string `json:"serial_number" validate:"required,max=64"`
	Manufacturer    string `json:"manufacturer" validate:"required,max=128"`
	Model           string `json:"model" validate:"max=128"`
	HardwareVersion string `json:"hardware_version" validate:"max=32"`
	FirmwareVersion string `json:"firmware_version" validate:"max=32"`
}

// RegisterDevicesRequest - партия устройств на регистрацию.
type RegisterDevicesRequest struct {
	Devices []DeviceSpec `json:"devices" validate:"required,min=1,max=1000"`
}

// RegistrationFailure описывает неудачную позицию партии.
type RegistrationFailure struct {
	Index        int    `json:"index"`
	SerialNumber string `json:"serial_number"`
	Reason       string `json:"reason"`
}

// RegistrationReport - итог пакетной регистрации.
type RegistrationReport struct {
	Registered int                   `json:"registered"`
	Failed     int                   `json:"failed"`
	Total      int                   `json:"total"`
	DeviceIDs  []string              `json:"device_ids,omitempty"`
	Failures   []RegistrationFailure `json:"failures,omitempty"`
}

// IssueCodeResponse возвращает код активации. Код показывается один раз.
type IssueCodeResponse struct {
	DeviceID       string    `json:"device_id"`
	ActivationCode string    `json:"activation_code"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ActivateRequest - запрос на активацию устройства.
// master_key_encrypted передается в base64 и сервером не расшифровывается.
// recovery_public_key - открытый ключ Ed25519 (32 байта, base64), которым
// владелец будет подписывать вызовы восстановления устройства.
type ActivateRequest struct {
	ActivationCode     string `json:"activation_code" validate:"required,max=32"`
	DeviceID           string `json:"device_id" validate:"required,max=64"`
	UserID             int64  `json:"user_id,omitempty" validate:"omitempty,gt=0"` // Если указан, должен совпадать с пользователем из токена
	MasterKeyEncrypted []byte `json:"master_key_encrypted" validate:"required,min=1,max=65536"`
	RecoveryPublicKey  []byte `json:"recovery_public_key" validate:"required,len=32"`
}

// ActivateResponse - результат успешной активации.
type ActivateResponse struct {
	DeviceID    string    `json:"device_id"`
	Status      string    `json:"status"`
	ActivatedAt time.Time `json:"activated_at"`
}

// LockRequest - запрос на блокировку устройства.
type LockRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// TransitionResponse подтверждает смену состояния устройства.
type TransitionResponse struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}
