package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	"github.com/chainlesschain/chainlesschain-sub001/internal/services"
	dto "github.com/chainlesschain/chainlesschain-sub001/models"
)

// DeviceHandler обрабатывает регистрацию, активацию и административные переходы устройств.
type DeviceHandler struct {
	devices    services.DeviceService
	activation services.ActivationService
}

// NewDeviceHandler создает новый экземпляр DeviceHandler.
func NewDeviceHandler(devices services.DeviceService, activation services.ActivationService) *DeviceHandler {
	return &DeviceHandler{devices: devices, activation: activation}
}

// Register регистрирует партию устройств (администратор).
// Ответ 200 даже при частичных отказах: итог по позициям в отчете.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterDevicesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	report, err := h.devices.Register(r.Context(), req.Devices)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// List возвращает страницу устройств с фильтрами device_type, status и keyword (администратор).
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	filter := models.DeviceFilter{
		DeviceType: models.DeviceType(strings.ToUpper(q.Get("device_type"))),
		Status:     models.DeviceStatus(strings.ToUpper(q.Get("status"))),
		Keyword:    q.Get("keyword"),
	}

	result, err := h.devices.List(r.Context(), filter, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get возвращает любое устройство (администратор).
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	device, err := h.devices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// GetOwned возвращает устройство текущего пользователя.
func (h *DeviceHandler) GetOwned(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	device, err := h.devices.GetOwned(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// IssueCode выдает новый код активации (администратор). Код возвращается один раз.
func (h *DeviceHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.activation.IssueCode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.IssueCodeResponse{
		DeviceID:       code.DeviceID,
		ActivationCode: code.Code,
		ExpiresAt:      code.ExpiresAt,
	})
}

// Activate погашает код активации и привязывает устройство к текущему пользователю.
func (h *DeviceHandler) Activate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	var req dto.ActivateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID != 0 && req.UserID != userID {
		log.Printf("[DeviceHandler] Пользователь %d пытался активировать устройство '%s' для %d",
			userID, req.DeviceID, req.UserID)
		writeError(w, services.ErrForbidden)
		return
	}

	res, err := h.activation.Redeem(r.Context(), services.RedeemInput{
		DeviceID:            req.DeviceID,
		Code:                req.ActivationCode,
		UserID:              userID,
		MasterKeyCiphertext: req.MasterKeyEncrypted,
		RecoveryPublicKey:   req.RecoveryPublicKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ActivateResponse{
		DeviceID:    res.DeviceID,
		Status:      string(res.Status),
		ActivatedAt: res.ActivatedAt,
	})
}

// Lock блокирует устройство (администратор). Тело с причиной необязательно.
func (h *DeviceHandler) Lock(w http.ResponseWriter, r *http.Request) {
	var req dto.LockRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	device, err := h.activation.Lock(r.Context(), chi.URLParam(r, "id"), req.Reason)
	h.writeTransition(w, device, err)
}

// Unlock разблокирует устройство (администратор).
func (h *DeviceHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	device, err := h.activation.Unlock(r.Context(), chi.URLParam(r, "id"))
	h.writeTransition(w, device, err)
}

// Deactivate необратимо выводит устройство из эксплуатации (администратор).
func (h *DeviceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	device, err := h.activation.Deactivate(r.Context(), chi.URLParam(r, "id"))
	h.writeTransition(w, device, err)
}

func (h *DeviceHandler) writeTransition(w http.ResponseWriter, device *models.Device, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.TransitionResponse{DeviceID: device.DeviceID, Status: string(device.Status)})
}
