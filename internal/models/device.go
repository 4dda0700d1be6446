package models

import "time"

// DeviceType - тип аппаратного ключа.
type DeviceType string

// Поддерживаемые типы устройств.
const (
	DeviceTypeUKey   DeviceType = "UKEY"
	DeviceTypeSIMKey DeviceType = "SIMKEY"
)

// Valid сообщает, известен ли тип устройства.
func (t DeviceType) Valid() bool {
	return t == DeviceTypeUKey || t == DeviceTypeSIMKey
}

// IDPrefix возвращает префикс идентификатора устройства для типа.
func (t DeviceType) IDPrefix() string {
	if t == DeviceTypeSIMKey {
		return "sk_"
	}
	return "uk_"
}

// DeviceStatus - состояние жизненного цикла устройства.
type DeviceStatus string

// Состояния устройства.
const (
	StatusInactive    DeviceStatus = "INACTIVE"
	StatusActive      DeviceStatus = "ACTIVE"
	StatusLocked      DeviceStatus = "LOCKED"
	StatusDeactivated DeviceStatus = "DEACTIVATED"
)

// Valid сообщает, известно ли состояние.
func (s DeviceStatus) Valid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusLocked, StatusDeactivated:
		return true
	}
	return false
}

// Device представляет запись об одном физическом ключе.
// Хеш кода активации, шифротекст мастер-ключа и ключ восстановления не отдаются в JSON.
type Device struct {
	DeviceID            string       `db:"device_id" json:"device_id"`
	DeviceType          DeviceType   `db:"device_type" json:"device_type"`
	SerialNumber        string       `db:"serial_number" json:"serial_number"`
	Manufacturer        string       `db:"manufacturer" json:"manufacturer"`
	Model               string       `db:"model" json:"model"`
	HardwareVersion     string       `db:"hardware_version" json:"hardware_version"`
	FirmwareVersion     string       `db:"firmware_version" json:"firmware_version"`
	Status              DeviceStatus `db:"status" json:"status"`
	ActivationCodeHash  *string      `db:"activation_code_hash" json:"-"`
	ActivationExpiresAt *time.Time   `db:"activation_expires_at" json:"activation_expires_at,omitempty"`
	ActivatedAt         *time.Time   `db:"activated_at" json:"activated_at,omitempty"`
	OwnerUserID         *int64       `db:"owner_user_id" json:"owner_user_id,omitempty"`
	MasterKeyCiphertext []byte       `db:"master_key_ciphertext" json:"-"`
	RecoveryPublicKey   []byte       `db:"recovery_public_key" json:"-"`
	LockReason          *string      `db:"lock_reason" json:"lock_reason,omitempty"`
	LastSeenAt          *time.Time   `db:"last_seen_at" json:"last_seen_at,omitempty"`
	CreatedAt           time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`
}

// HasMasterKey сообщает, задан ли шифротекст мастер-ключа.
func (d *Device) HasMasterKey() bool {
	return len(d.MasterKeyCiphertext) > 0
}

// HasRecoveryKey сообщает, зарегистрирован ли ключ восстановления.
func (d *Device) HasRecoveryKey() bool {
	return len(d.RecoveryPublicKey) > 0
}

// IsOwnedBy проверяет, привязано ли устройство к пользователю.
func (d *Device) IsOwnedBy(userID int64) bool {
	return d.OwnerUserID != nil && *d.OwnerUserID == userID
}

// DeviceFilter - параметры выборки устройств. Пустые поля не фильтруют.
type DeviceFilter struct {
	DeviceType DeviceType
	Status     DeviceStatus
	Keyword    string // Подстрока device_id или serial_number
}
