package models

import "time"

// BackupRecord - неизменяемый снимок зашифрованных данных устройства.
// Сам шифротекст хранится в объектном хранилище по ключу ObjectKey.
type BackupRecord struct {
	BackupID    string    `db:"backup_id" json:"backup_id"`
	DeviceID    string    `db:"device_id" json:"device_id"`
	OwnerUserID int64     `db:"owner_user_id" json:"owner_user_id"`
	ObjectKey   string    `db:"object_key" json:"-"`
	Checksum    string    `db:"checksum" json:"checksum"`     // SHA256 шифротекста в hex
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"` // Размер шифротекста
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// BackupFilter - параметры выборки резервных копий.
type BackupFilter struct {
	DeviceID string
	UserID   *int64
}
