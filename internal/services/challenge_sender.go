package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
)

// ChallengeSender доставляет вызов восстановления владельцу.
// Возвращает вызов, если его нужно отдать в ответе на initiate, иначе пустую строку.
type ChallengeSender interface {
	SendChallenge(ctx context.Context, session *models.RecoverySession, challenge string) (string, error)
}

// InlineChallengeSender отдает вызов прямо в ответе; его получает приложение-компаньон ключа.
type InlineChallengeSender struct{}

// SendChallenge возвращает вызов без внешней доставки.
func (InlineChallengeSender) SendChallenge(_ context.Context, _ *models.RecoverySession, challenge string) (string, error) {
	return challenge, nil
}

const webhookTimeout = 10 * time.Second

// WebhookChallengeSender отправляет вызов POST-запросом во внешний канал доставки.
type WebhookChallengeSender struct {
	URL    string
	Client *http.Client
}

// NewWebhookChallengeSender создает отправитель с таймаутом по умолчанию.
func NewWebhookChallengeSender(url string) *WebhookChallengeSender {
	return &WebhookChallengeSender{URL: url, Client: &http.Client{Timeout: webhookTimeout}}
}

type challengePayload struct {
	SessionID  string    `json:"session_id"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	Challenge  string    `json:"challenge"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SendChallenge отправляет вызов; в ответе initiate вызова не будет.
func (w *WebhookChallengeSender) SendChallenge(
	ctx context.Context,
	session *models.RecoverySession,
	challenge string,
) (string, error) {
	body, err := json.Marshal(challengePayload{
		SessionID:  session.SessionID,
		TargetType: string(session.TargetType),
		TargetID:   session.TargetID,
		Challenge:  challenge,
		ExpiresAt:  session.ExpiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("ошибка кодирования вызова: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ошибка создания запроса доставки вызова: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ошибка доставки вызова: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("канал доставки вызова ответил статусом %d", resp.StatusCode)
	}
	log.Printf("[ChallengeSender] Вызов сессии '%s' передан во внешний канал", session.SessionID)
	return "", nil
}
