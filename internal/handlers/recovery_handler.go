package handlers

import (
	"net/http"
	"time"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	"github.com/chainlesschain/chainlesschain-sub001/internal/services"
	dto "github.com/chainlesschain/chainlesschain-sub001/models"
)

// RecoveryHandler обрабатывает шаги восстановления доступа.
type RecoveryHandler struct {
	recovery services.RecoveryService
}

// NewRecoveryHandler создает новый экземпляр RecoveryHandler.
func NewRecoveryHandler(recovery services.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery}
}

// Initiate начинает восстановление для устройства или учетной записи.
func (h *RecoveryHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req dto.InitiateRecoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	target := services.RecoveryTarget{
		Type: models.RecoveryTargetType(req.TargetType),
		ID:   req.TargetID,
	}
	if req.Proof != nil {
		target.Proof = &services.InitiateProof{
			Timestamp: time.Unix(req.Proof.Timestamp, 0),
			Signature: req.Proof.Signature,
		}
	}

	res, err := h.recovery.Initiate(r.Context(), target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.InitiateRecoveryResponse{
		SessionID: res.Session.SessionID,
		Status:    string(res.Session.Status),
		ExpiresAt: res.Session.ExpiresAt,
		Challenge: res.Challenge,
	})
}

// Verify проверяет ответ на вызов. Неверный ответ не ошибка: verified=false и остаток попыток.
func (h *RecoveryHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRecoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.recovery.Verify(r.Context(), req.SessionID, req.Response)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.VerifyRecoveryResponse{
		SessionID:    res.SessionID,
		Status:       string(res.Status),
		Verified:     res.Verified,
		AttemptsLeft: res.AttemptsLeft,
	})
}

// Reset применяет новый материал учетных данных и завершает сессию.
func (h *RecoveryHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetRecoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.recovery.Reset(r.Context(), req.SessionID, services.ResetInput{
		NewMasterKeyCiphertext: req.NewMasterKeyEncrypted,
		NewPassword:            req.NewPassword,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ResetRecoveryResponse{
		SessionID:  res.SessionID,
		Status:     string(res.Status),
		TargetType: string(res.TargetType),
		TargetID:   res.TargetID,
	})
}
