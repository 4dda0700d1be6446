package handlers

import (
	"log"
	"net/http"

	"github.com/chainlesschain/chainlesschain-sub001/internal/services"
	"github.com/chainlesschain/chainlesschain-sub001/models"
)

// AuthHandler обрабатывает HTTP-запросы, связанные с учетными записями владельцев.
type AuthHandler struct {
	service services.AuthService
}

// NewAuthHandler создает новый экземпляр AuthHandler.
func NewAuthHandler(s services.AuthService) *AuthHandler {
	return &AuthHandler{service: s}
}

// Register обрабатывает запрос на регистрацию нового пользователя.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Printf("[AuthHandler] Ошибка разбора запроса регистрации: %v", err)
		writeError(w, err)
		return
	}

	userID, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("[AuthHandler] Зарегистрирован пользователь %d", userID)
	writeJSON(w, http.StatusCreated, models.RegisterResponse{UserID: userID})
}

// Login обрабатывает запрос на вход пользователя.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Printf("[AuthHandler] Ошибка разбора запроса входа: %v", err)
		writeError(w, err)
		return
	}

	token, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token})
}

// SetRecoveryKey регистрирует ключ восстановления учетной записи текущего пользователя.
func (h *AuthHandler) SetRecoveryKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	var req models.SetRecoveryKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.SetRecoveryKey(r.Context(), userID, req.PublicKey); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
