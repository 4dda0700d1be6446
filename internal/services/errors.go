package services

import (
	"fmt"

	"github.com/chainlesschain/chainlesschain-sub001/internal/apperr"
	"github.com/chainlesschain/chainlesschain-sub001/internal/lifecycle"
)

// Кастомные ошибки сервисов. Вид ошибки определяет HTTP-статус ответа.
var (
	ErrDeviceNotFound     = apperr.New(apperr.KindNotFound, "DEVICE_NOT_FOUND", "устройство не найдено")
	ErrCodeMismatch       = apperr.New(apperr.KindNotFound, "ACTIVATION_NOT_FOUND", "устройство с таким кодом активации не найдено")
	ErrBackupNotFound     = apperr.New(apperr.KindNotFound, "BACKUP_NOT_FOUND", "резервная копия не найдена")
	ErrSessionNotFound    = apperr.New(apperr.KindNotFound, "SESSION_NOT_FOUND", "сессия восстановления не найдена")
	ErrUserNotFound       = apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "пользователь не найден")
	ErrAlreadyActive      = apperr.New(apperr.KindConflict, "ALREADY_ACTIVE", "устройство уже активировано")
	ErrSerialTaken        = apperr.New(apperr.KindConflict, "SERIAL_TAKEN", "серийный номер уже зарегистрирован")
	ErrAlreadyInProgress  = apperr.New(apperr.KindConflict, "ALREADY_IN_PROGRESS", "восстановление уже выполняется")
	ErrNotVerified        = apperr.New(apperr.KindConflict, "NOT_VERIFIED", "сессия восстановления не подтверждена")
	ErrSessionState       = apperr.New(apperr.KindConflict, "INVALID_SESSION_STATE", "недопустимое состояние сессии восстановления")
	ErrDeviceNotActivated = apperr.New(apperr.KindConflict, "DEVICE_NOT_ACTIVATED", "устройство не активировано")
	ErrUsernameTaken      = apperr.New(apperr.KindConflict, "USERNAME_TAKEN", "имя пользователя уже занято")
	ErrRecoveryNotEnrolled = apperr.New(apperr.KindConflict, "RECOVERY_NOT_ENROLLED",
		"ключ восстановления не зарегистрирован")
	ErrCodeExpired        = apperr.New(apperr.KindExpired, "CODE_EXPIRED", "срок действия кода активации истек")
	ErrSessionExpired     = apperr.New(apperr.KindExpired, "SESSION_EXPIRED", "срок действия сессии восстановления истек")
	ErrForbidden          = apperr.New(apperr.KindForbidden, "FORBIDDEN", "нет доступа к ресурсу")
	ErrInvalidCredentials = apperr.New(apperr.KindForbidden, "INVALID_CREDENTIALS", "неверное имя пользователя или пароль")
	ErrInvalidProof       = apperr.New(apperr.KindForbidden, "INVALID_RECOVERY_PROOF",
		"подпись подтверждения восстановления неверна или устарела")
	ErrValidation         = apperr.New(apperr.KindValidation, "VALIDATION_ERROR", "некорректные входные данные")
	ErrBackupCorrupted    = apperr.New(apperr.KindUnexpected, "BACKUP_CORRUPTED", "резервная копия повреждена")
	ErrInternal           = apperr.New(apperr.KindUnexpected, "INTERNAL_ERROR", "внутренняя ошибка сервера")

	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrDeviceDeactivated = lifecycle.ErrDeviceDeactivated
)

// validationError уточняет ErrValidation, сохраняя сравнение через errors.Is.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// internalError оборачивает сбой хранилища. Подробности остаются в логах и цепочке ошибок.
func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
