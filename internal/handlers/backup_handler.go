package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	"github.com/chainlesschain/chainlesschain-sub001/internal/services"
)

// Заголовки ответа восстановления с метаданными копии.
const (
	headerBackupID = "X-Backup-Id"
	headerChecksum = "X-Backup-Checksum"
)

// BackupHandler обрабатывает HTTP-запросы к хранилищу резервных копий.
type BackupHandler struct {
	backups services.BackupService
}

// NewBackupHandler создает новый экземпляр BackupHandler.
func NewBackupHandler(backups services.BackupService) *BackupHandler {
	return &BackupHandler{backups: backups}
}

// Create сохраняет тело запроса как шифротекст новой копии устройства.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	deviceID := chi.URLParam(r, "id")

	record, err := h.backups.Create(r.Context(), deviceID, userID, r.Body)
	if err != nil {
		log.Printf("[BackupHandler] Копия устройства '%s' пользователя %d не сохранена: %v", deviceID, userID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// ListOwn возвращает копии текущего пользователя, опционально по device_id.
func (h *BackupHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	h.list(w, r, models.BackupFilter{DeviceID: r.URL.Query().Get("device_id"), UserID: &userID})
}

// ListAll возвращает копии любых пользователей (администратор).
func (h *BackupHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	filter := models.BackupFilter{DeviceID: r.URL.Query().Get("device_id")}
	if v := r.URL.Query().Get("user_id"); v != "" {
		userID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, errBadRequest)
			return
		}
		filter.UserID = &userID
	}
	h.list(w, r, filter)
}

func (h *BackupHandler) list(w http.ResponseWriter, r *http.Request, filter models.BackupFilter) {
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.backups.List(r.Context(), filter, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Restore отдает шифротекст копии как есть. Без backup_id отдается самая свежая копия.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	deviceID := chi.URLParam(r, "id")

	data, record, err := h.backups.Restore(r.Context(), deviceID, userID, r.URL.Query().Get("backup_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set(headerBackupID, record.BackupID)
	w.Header().Set(headerChecksum, record.Checksum)
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(data); err != nil {
		log.Printf("[BackupHandler] Ошибка отправки копии '%s': %v", record.BackupID, err)
	}
}

// DeleteOwn удаляет копию текущего пользователя.
func (h *BackupHandler) DeleteOwn(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	if err := h.backups.DeleteOwned(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAny удаляет любую копию (администратор).
func (h *BackupHandler) DeleteAny(w http.ResponseWriter, r *http.Request) {
	if err := h.backups.DeleteAny(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
