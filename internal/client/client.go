// Package client содержит HTTP-клиент административного API для производственной линии.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/chainlesschain/chainlesschain-sub001/models"
)

// Заголовок с токеном администратора.
const adminTokenHeader = "X-Admin-Token"

const defaultTimeout = 30 * time.Second

// ErrAuthorization сигнализирует об ошибке авторизации (401).
var ErrAuthorization = errors.New("ошибка авторизации")

// APIError - ошибка, которую вернул сервер в теле ответа.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("сервер вернул статус %d", e.Status)
	}
	return fmt.Sprintf("сервер вернул статус %d: %s (%s)", e.Status, e.Message, e.Code)
}

// Client определяет административные операции с реестром устройств.
type Client interface {
	// RegisterDevices регистрирует партию устройств и возвращает отчет.
	RegisterDevices(ctx context.Context, devices []models.DeviceSpec) (*models.RegistrationReport, error)
	// IssueCode выдает код активации для устройства.
	IssueCode(ctx context.Context, deviceID string) (*models.IssueCodeResponse, error)
}

type httpClient struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// NewHTTPClient создает клиент. Если hc равен nil, используется клиент с таймаутом по умолчанию.
func NewHTTPClient(baseURL, adminToken string, hc *http.Client) Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &httpClient{
		baseURL:    baseURL,
		adminToken: adminToken,
		httpClient: hc,
	}
}

// RegisterDevices отправляет партию на POST /api/admin/devices.
func (c *httpClient) RegisterDevices(
	ctx context.Context,
	devices []models.DeviceSpec,
) (*models.RegistrationReport, error) {
	var report models.RegistrationReport
	body := models.RegisterDevicesRequest{Devices: devices}
	if err := c.doJSON(ctx, http.MethodPost, &report, body, "api", "admin", "devices"); err != nil {
		return nil, fmt.Errorf("ошибка регистрации партии: %w", err)
	}
	return &report, nil
}

// IssueCode вызывает POST /api/admin/devices/{id}/activation-code.
func (c *httpClient) IssueCode(ctx context.Context, deviceID string) (*models.IssueCodeResponse, error) {
	var code models.IssueCodeResponse
	if err := c.doJSON(ctx, http.MethodPost, &code, nil, "api", "admin", "devices", deviceID, "activation-code"); err != nil {
		return nil, fmt.Errorf("ошибка выдачи кода для устройства '%s': %w", deviceID, err)
	}
	return &code, nil
}

// doJSON выполняет запрос с JSON-телом и декодирует успешный ответ в out.
func (c *httpClient) doJSON(ctx context.Context, method string, out, in any, path ...string) error {
	endpoint, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return fmt.Errorf("ошибка формирования URL: %w", err)
	}

	var reader io.Reader
	if in != nil {
		data, marshalErr := json.Marshal(in)
		if marshalErr != nil {
			return fmt.Errorf("ошибка кодирования запроса: %w", marshalErr)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(adminTokenHeader, c.adminToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrAuthorization
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ошибка декодирования ответа: %w", err)
	}
	return nil
}

// readAPIError читает тело ошибки. Тело может быть не JSON (например, от прокси).
func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.ErrorCode
		apiErr.Message = body.Message
	}
	return apiErr
}
