package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/chainlesschain/chainlesschain-sub001/internal/apperr"
	"github.com/chainlesschain/chainlesschain-sub001/internal/middleware"
	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	"github.com/chainlesschain/chainlesschain-sub001/internal/services"
	dto "github.com/chainlesschain/chainlesschain-sub001/models"
)

// Максимальный размер JSON-тела запроса.
const maxJSONBody = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// errBadRequest - ошибка разбора или валидации запроса.
var errBadRequest = apperr.New(apperr.KindValidation, "VALIDATION_ERROR", "Неверный формат запроса")

// decodeJSON читает JSON из тела запроса и валидирует его по тегам validate.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// writeJSON кодирует v в ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Handlers] Ошибка кодирования ответа: %v", err)
	}
}

// writeError отображает ошибку сервиса на HTTP-статус и JSON-тело.
// Подробности непредвиденных ошибок остаются в логах.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if errors.Is(err, services.ErrInvalidCredentials) {
		status = http.StatusUnauthorized
	}

	resp := dto.ErrorResponse{ErrorCode: apperr.CodeOf(err), Message: err.Error()}
	if status >= http.StatusInternalServerError {
		log.Printf("[Handlers] Внутренняя ошибка: %v", err)
		if !errors.Is(err, services.ErrBackupCorrupted) {
			resp.ErrorCode = services.ErrInternal.Code
		}
		resp.Message = services.ErrInternal.Message
	}
	writeJSON(w, status, resp)
}

// userIDFrom извлекает пользователя из контекста, записанного Authenticator.
func userIDFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		log.Printf("[Handlers] Не удалось получить userID из контекста: %s %s", r.Method, r.URL.Path)
		writeError(w, services.ErrInternal)
	}
	return userID, ok
}

// pageFrom читает page и size из строки запроса. Нормализация выполняется сервисом.
func pageFrom(r *http.Request) (models.PageRequest, error) {
	var (
		req models.PageRequest
		err error
	)
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if req.Page, err = strconv.Atoi(v); err != nil {
			return req, fmt.Errorf("%w: параметр page должен быть числом", errBadRequest)
		}
	}
	if v := q.Get("size"); v != "" {
		if req.Size, err = strconv.Atoi(v); err != nil {
			return req, fmt.Errorf("%w: параметр size должен быть числом", errBadRequest)
		}
	}
	return req, nil
}
