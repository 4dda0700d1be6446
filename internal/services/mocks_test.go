package services_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	dto "github.com/chainlesschain/chainlesschain-sub001/models"
)

// --- Mocks ---

// MockDeviceRepository - мок DeviceRepository.
type MockDeviceRepository struct {
	mock.Mock
}

func (m *MockDeviceRepository) CreateDevice(ctx context.Context, device *models.Device) error {
	return m.Called(ctx, device).Error(0)
}

func (m *MockDeviceRepository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockDeviceRepository) GetDeviceForUpdate(
	ctx context.Context,
	q sqlx.ExtContext,
	deviceID string,
) (*models.Device, error) {
	args := m.Called(ctx, q, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockDeviceRepository) UpdateDevice(ctx context.Context, q sqlx.ExtContext, device *models.Device) error {
	return m.Called(ctx, q, device).Error(0)
}

func (m *MockDeviceRepository) ListDevices(
	ctx context.Context,
	filter models.DeviceFilter,
	limit,
	offset int,
) ([]models.Device, int, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).([]models.Device), args.Int(1), args.Error(2)
}

func (m *MockDeviceRepository) TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error {
	return m.Called(ctx, deviceID, seenAt).Error(0)
}

// MockBackupRepository - мок BackupRepository.
type MockBackupRepository struct {
	mock.Mock
}

func (m *MockBackupRepository) CreateBackup(ctx context.Context, backup *models.BackupRecord) error {
	return m.Called(ctx, backup).Error(0)
}

func (m *MockBackupRepository) GetBackup(ctx context.Context, backupID string) (*models.BackupRecord, error) {
	args := m.Called(ctx, backupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.BackupRecord), args.Error(1)
}

func (m *MockBackupRepository) GetLatestBackup(
	ctx context.Context,
	deviceID string,
	ownerUserID int64,
) (*models.BackupRecord, error) {
	args := m.Called(ctx, deviceID, ownerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.BackupRecord), args.Error(1)
}

func (m *MockBackupRepository) ListBackups(
	ctx context.Context,
	filter models.BackupFilter,
	limit,
	offset int,
) ([]models.BackupRecord, int, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).([]models.BackupRecord), args.Int(1), args.Error(2)
}

func (m *MockBackupRepository) DeleteBackup(ctx context.Context, backupID string) (bool, error) {
	args := m.Called(ctx, backupID)
	return args.Bool(0), args.Error(1)
}

// MockRecoveryRepository - мок RecoveryRepository.
type MockRecoveryRepository struct {
	mock.Mock
}

func (m *MockRecoveryRepository) ExpireStaleSessions(
	ctx context.Context,
	q sqlx.ExtContext,
	targetType models.RecoveryTargetType,
	targetID string,
	now time.Time,
) (int64, error) {
	args := m.Called(ctx, q, targetType, targetID, now)
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRecoveryRepository) SupersedeSessions(
	ctx context.Context,
	q sqlx.ExtContext,
	targetType models.RecoveryTargetType,
	targetID string,
) (int64, error) {
	args := m.Called(ctx, q, targetType, targetID)
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRecoveryRepository) CreateSession(
	ctx context.Context,
	q sqlx.ExtContext,
	session *models.RecoverySession,
) error {
	return m.Called(ctx, q, session).Error(0)
}

func (m *MockRecoveryRepository) GetSessionForUpdate(
	ctx context.Context,
	q sqlx.ExtContext,
	sessionID string,
) (*models.RecoverySession, error) {
	args := m.Called(ctx, q, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.RecoverySession), args.Error(1)
}

func (m *MockRecoveryRepository) UpdateSession(
	ctx context.Context,
	q sqlx.ExtContext,
	session *models.RecoverySession,
) error {
	return m.Called(ctx, q, session).Error(0)
}

// MockUserRepository - мок UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *dto.User) (int64, error) {
	args := m.Called(ctx, user)
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) GetUserByUsername(ctx context.Context, username string) (*dto.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*dto.User), args.Error(1)
}

func (m *MockUserRepository) SetRecoveryKey(ctx context.Context, userID int64, publicKey []byte) error {
	return m.Called(ctx, userID, publicKey).Error(0)
}

func (m *MockUserRepository) UpdatePasswordHash(
	ctx context.Context,
	q sqlx.ExtContext,
	username,
	passwordHash string,
) error {
	return m.Called(ctx, q, username, passwordHash).Error(0)
}

// MockBlobStorage - мок BlobStorage. PutBlob сохраняет данные в памяти,
// чтобы GetBlob мог вернуть их побайтно.
type MockBlobStorage struct {
	mock.Mock
	stored map[string][]byte
}

func (m *MockBlobStorage) PutBlob(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	data, _ := io.ReadAll(reader)
	args := m.Called(ctx, objectKey, size)
	if args.Error(0) == nil {
		if m.stored == nil {
			m.stored = map[string][]byte{}
		}
		m.stored[objectKey] = data
	}
	return args.Error(0)
}

func (m *MockBlobStorage) GetBlob(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	args := m.Called(ctx, objectKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockBlobStorage) DeleteBlob(ctx context.Context, objectKey string) error {
	return m.Called(ctx, objectKey).Error(0)
}

// MockRotator - мок MasterKeyRotator.
type MockRotator struct {
	mock.Mock
}

func (m *MockRotator) RotateMasterKey(ctx context.Context, q sqlx.ExtContext, deviceID string, ciphertext []byte) error {
	return m.Called(ctx, q, deviceID, ciphertext).Error(0)
}

// MockChallengeSender - мок ChallengeSender.
type MockChallengeSender struct {
	mock.Mock
}

func (m *MockChallengeSender) SendChallenge(
	ctx context.Context,
	session *models.RecoverySession,
	challenge string,
) (string, error) {
	args := m.Called(ctx, session, challenge)
	if fn, ok := args.Get(0).(func(context.Context, *models.RecoverySession, string) (string, error)); ok {
		return fn(ctx, session, challenge)
	}
	return args.String(0), args.Error(1)
}

// --- Helpers ---

// newMockDB создает sqlx.DB поверх sqlmock для проверки границ транзакций.
func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mockSQL, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mockSQL
}

// fixedClock возвращает часы, всегда показывающие now.
func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}
