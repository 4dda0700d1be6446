// Package lifecycle содержит таблицу допустимых переходов состояний устройства.
// Все изменения состояния проходят через Transition.
package lifecycle

import (
	"fmt"

	"github.com/chainlesschain/chainlesschain-sub001/internal/apperr"
	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
)

// Trigger - действие, вызывающее переход.
type Trigger string

// Триггеры переходов.
const (
	TriggerRedeem     Trigger = "redeem"
	TriggerLock       Trigger = "lock"
	TriggerUnlock     Trigger = "unlock"
	TriggerDeactivate Trigger = "deactivate"
)

type edge struct {
	from models.DeviceStatus
	to   models.DeviceStatus
}

// transitions - единственный источник истины о допустимых переходах.
var transitions = map[Trigger][]edge{
	TriggerRedeem:     {{models.StatusInactive, models.StatusActive}},
	TriggerLock:       {{models.StatusActive, models.StatusLocked}},
	TriggerUnlock:     {{models.StatusLocked, models.StatusActive}},
	TriggerDeactivate: {
		{models.StatusInactive, models.StatusDeactivated},
		{models.StatusActive, models.StatusDeactivated},
		{models.StatusLocked, models.StatusDeactivated},
	},
}

// Ошибки переходов.
var (
	ErrInvalidTransition = apperr.New(apperr.KindConflict, "INVALID_TRANSITION",
		"недопустимый переход состояния устройства")
	ErrDeviceDeactivated = apperr.New(apperr.KindConflict, "DEVICE_DEACTIVATED",
		"устройство деактивировано")
)

// TransitionError называет отвергнутое ребро графа состояний.
type TransitionError struct {
	Trigger Trigger
	From    models.DeviceStatus
	To      models.DeviceStatus
}

func (e *TransitionError) Error() string {
	if e.From == models.StatusDeactivated {
		return fmt.Sprintf("устройство деактивировано: переход %s -> %s (%s) запрещен", e.From, e.To, e.Trigger)
	}
	return fmt.Sprintf("недопустимый переход %s -> %s (%s)", e.From, e.To, e.Trigger)
}

// Unwrap позволяет сравнивать ошибку с ErrInvalidTransition и ErrDeviceDeactivated.
func (e *TransitionError) Unwrap() error {
	if e.From == models.StatusDeactivated {
		return ErrDeviceDeactivated
	}
	return ErrInvalidTransition
}

// Target возвращает целевое состояние для триггера.
func Target(trigger Trigger) (models.DeviceStatus, bool) {
	edges, ok := transitions[trigger]
	if !ok || len(edges) == 0 {
		return "", false
	}
	return edges[0].to, true
}

// Transition проверяет переход из from по trigger и возвращает новое состояние.
// DEACTIVATED терминально: любой переход из него возвращает ошибку ErrDeviceDeactivated.
func Transition(from models.DeviceStatus, trigger Trigger) (models.DeviceStatus, error) {
	to, ok := Target(trigger)
	if !ok {
		return "", &TransitionError{Trigger: trigger, From: from}
	}
	for _, e := range transitions[trigger] {
		if e.from == from {
			return e.to, nil
		}
	}
	return "", &TransitionError{Trigger: trigger, From: from, To: to}
}

// CanTransition сообщает, разрешен ли переход.
func CanTransition(from models.DeviceStatus, trigger Trigger) bool {
	_, err := Transition(from, trigger)
	return err == nil
}

// CheckInvariants проверяет согласованность полей устройства с его состоянием:
// ACTIVE требует владельца, мастер-ключ и время активации; INACTIVE - отсутствие владельца.
func CheckInvariants(d *models.Device) error {
	switch d.Status {
	case models.StatusActive:
		if d.OwnerUserID == nil || !d.HasMasterKey() || d.ActivatedAt == nil {
			return fmt.Errorf("устройство %s в состоянии ACTIVE без владельца или мастер-ключа", d.DeviceID)
		}
	case models.StatusInactive:
		if d.OwnerUserID != nil || d.HasMasterKey() || d.HasRecoveryKey() {
			return fmt.Errorf("устройство %s в состоянии INACTIVE имеет владельца", d.DeviceID)
		}
	case models.StatusLocked, models.StatusDeactivated:
	default:
		return fmt.Errorf("неизвестное состояние устройства %s: %q", d.DeviceID, d.Status)
	}
	return nil
}
