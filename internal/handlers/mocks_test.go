package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chainlesschain/chainlesschain-sub001/internal/middleware"
	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	"github.com/chainlesschain/chainlesschain-sub001/internal/services"
	dto "github.com/chainlesschain/chainlesschain-sub001/models"
)

// --- Mock AuthService --- //

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, username, password string) (int64, error) {
	args := m.Called(ctx, username, password)
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (string, error) {
	args := m.Called(ctx, username, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthService) SetRecoveryKey(ctx context.Context, userID int64, publicKey []byte) error {
	return m.Called(ctx, userID, publicKey).Error(0)
}

// --- Mock DeviceService --- //

type MockDeviceService struct {
	mock.Mock
}

func (m *MockDeviceService) Register(ctx context.Context, specs []dto.DeviceSpec) (*dto.RegistrationReport, error) {
	args := m.Called(ctx, specs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*dto.RegistrationReport), args.Error(1)
}

func (m *MockDeviceService) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockDeviceService) GetOwned(ctx context.Context, deviceID string, userID int64) (*models.Device, error) {
	args := m.Called(ctx, deviceID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockDeviceService) List(
	ctx context.Context,
	filter models.DeviceFilter,
	page models.PageRequest,
) (models.Page[models.Device], error) {
	args := m.Called(ctx, filter, page)
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(models.Page[models.Device]), args.Error(1)
}

// --- Mock ActivationService --- //

type MockActivationService struct {
	mock.Mock
}

func (m *MockActivationService) IssueCode(ctx context.Context, deviceID string) (*services.ActivationCode, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*services.ActivationCode), args.Error(1)
}

func (m *MockActivationService) Redeem(ctx context.Context, in services.RedeemInput) (*services.ActivationResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*services.ActivationResult), args.Error(1)
}

func (m *MockActivationService) Lock(ctx context.Context, deviceID, reason string) (*models.Device, error) {
	return m.device(m.Called(ctx, deviceID, reason))
}

func (m *MockActivationService) Unlock(ctx context.Context, deviceID string) (*models.Device, error) {
	return m.device(m.Called(ctx, deviceID))
}

func (m *MockActivationService) Deactivate(ctx context.Context, deviceID string) (*models.Device, error) {
	return m.device(m.Called(ctx, deviceID))
}

func (m *MockActivationService) device(args mock.Arguments) (*models.Device, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.Device), args.Error(1)
}

// --- Mock BackupService --- //

type MockBackupService struct {
	mock.Mock
}

func (m *MockBackupService) Create(
	ctx context.Context,
	deviceID string,
	userID int64,
	r io.Reader,
) (*models.BackupRecord, error) {
	body, _ := io.ReadAll(r)
	args := m.Called(ctx, deviceID, userID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.BackupRecord), args.Error(1)
}

func (m *MockBackupService) List(
	ctx context.Context,
	filter models.BackupFilter,
	page models.PageRequest,
) (models.Page[models.BackupRecord], error) {
	args := m.Called(ctx, filter, page)
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(models.Page[models.BackupRecord]), args.Error(1)
}

func (m *MockBackupService) Restore(
	ctx context.Context,
	deviceID string,
	userID int64,
	backupID string,
) ([]byte, *models.BackupRecord, error) {
	args := m.Called(ctx, deviceID, userID, backupID)
	if args.Get(1) == nil {
		return nil, nil, args.Error(2)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).([]byte), args.Get(1).(*models.BackupRecord), args.Error(2)
}

func (m *MockBackupService) DeleteOwned(ctx context.Context, backupID string, userID int64) error {
	return m.Called(ctx, backupID, userID).Error(0)
}

func (m *MockBackupService) DeleteAny(ctx context.Context, backupID string) error {
	return m.Called(ctx, backupID).Error(0)
}

// --- Mock RecoveryService --- //

type MockRecoveryService struct {
	mock.Mock
}

func (m *MockRecoveryService) Initiate(
	ctx context.Context,
	target services.RecoveryTarget,
) (*services.InitiateResult, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*services.InitiateResult), args.Error(1)
}

func (m *MockRecoveryService) Verify(
	ctx context.Context,
	sessionID,
	response string,
) (*services.VerificationResult, error) {
	args := m.Called(ctx, sessionID, response)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*services.VerificationResult), args.Error(1)
}

func (m *MockRecoveryService) Reset(
	ctx context.Context,
	sessionID string,
	in services.ResetInput,
) (*services.ResetResult, error) {
	args := m.Called(ctx, sessionID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*services.ResetResult), args.Error(1)
}

// --- Helpers --- //

// withUser имитирует middleware.Authenticator: кладет userID в контекст.
func withUser(userID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// do выполняет запрос к обработчику и возвращает ответ.
func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// decodeError разбирает JSON-тело ошибки.
func decodeError(t *testing.T, rr *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}
