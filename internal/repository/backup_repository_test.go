package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	"github.com/chainlesschain/chainlesschain-sub001/internal/repository"
)

var backupRowColumns = []string{
	"backup_id", "device_id", "owner_user_id", "object_key", "checksum", "size_bytes", "created_at",
}

const selectBackupQuery = `SELECT backup_id, device_id, owner_user_id, object_key, checksum, size_bytes,` +
	` created_at FROM backups`

func setupBackupRepoMock(t *testing.T) (repository.BackupRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return repository.NewPostgresBackupRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestCreateBackup(t *testing.T) {
	query := regexp.QuoteMeta(`INSERT INTO backups (backup_id, device_id, owner_user_id, object_key, checksum,` +
		` size_bytes) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`)
	now := time.Now()
	backup := &models.BackupRecord{
		BackupID: "b-1", DeviceID: "uk_1", OwnerUserID: 42, ObjectKey: "backups/uk_1/b-1",
		Checksum: "abc", SizeBytes: 3,
	}

	t.Run("Успешное создание", func(t *testing.T) {
		repo, mock := setupBackupRepoMock(t)
		mock.ExpectQuery(query).
			WithArgs("b-1", "uk_1", int64(42), "backups/uk_1/b-1", "abc", int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

		require.NoError(t, repo.CreateBackup(context.Background(), backup))
		assert.Equal(t, now, backup.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ошибка базы данных", func(t *testing.T) {
		repo, mock := setupBackupRepoMock(t)
		mock.ExpectQuery(query).WillReturnError(errors.New("database error"))

		err := repo.CreateBackup(context.Background(), backup)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка выполнения запроса")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetBackup(t *testing.T) {
	now := time.Now()
	query := regexp.QuoteMeta(selectBackupQuery + ` WHERE backup_id=$1`)

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectedErr error
	}{
		{
			name: "Успешный поиск",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(backupRowColumns).AddRow("b-1", "uk_1", int64(42), "k", "abc", int64(3), now)
				mock.ExpectQuery(query).WithArgs("b-1").WillReturnRows(rows)
			},
		},
		{
			name: "Резервная копия не найдена",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("b-1").WillReturnError(sql.ErrNoRows)
			},
			expectedErr: repository.ErrBackupNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupBackupRepoMock(t)
			tt.mockSetup(mock)

			backup, err := repo.GetBackup(context.Background(), "b-1")
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, backup)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(42), backup.OwnerUserID)
				assert.Equal(t, "k", backup.ObjectKey)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetLatestBackup(t *testing.T) {
	now := time.Now()
	query := regexp.QuoteMeta(selectBackupQuery + ` WHERE device_id=$1 AND owner_user_id=$2` +
		` ORDER BY created_at DESC, backup_id DESC LIMIT 1`)

	t.Run("Последняя копия", func(t *testing.T) {
		repo, mock := setupBackupRepoMock(t)
		rows := sqlmock.NewRows(backupRowColumns).AddRow("b-2", "uk_1", int64(42), "k2", "def", int64(5), now)
		mock.ExpectQuery(query).WithArgs("uk_1", int64(42)).WillReturnRows(rows)

		backup, err := repo.GetLatestBackup(context.Background(), "uk_1", 42)
		require.NoError(t, err)
		assert.Equal(t, "b-2", backup.BackupID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Копий нет", func(t *testing.T) {
		repo, mock := setupBackupRepoMock(t)
		mock.ExpectQuery(query).WithArgs("uk_1", int64(42)).WillReturnError(sql.ErrNoRows)

		_, err := repo.GetLatestBackup(context.Background(), "uk_1", 42)
		require.ErrorIs(t, err, repository.ErrBackupNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListBackups(t *testing.T) {
	now := time.Now()
	userID := int64(42)
	repo, mock := setupBackupRepoMock(t)
	where := ` WHERE device_id=$1 AND owner_user_id=$2`

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM backups` + where)).
		WithArgs("uk_1", userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(selectBackupQuery+where+` ORDER BY created_at DESC, backup_id DESC LIMIT $3 OFFSET $4`)).
		WithArgs("uk_1", userID, 20, 0).
		WillReturnRows(sqlmock.NewRows(backupRowColumns).AddRow("b-1", "uk_1", userID, "k", "abc", int64(3), now))

	backups, total, err := repo.ListBackups(context.Background(),
		models.BackupFilter{DeviceID: "uk_1", UserID: &userID}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, backups, 1)
	assert.Equal(t, "b-1", backups[0].BackupID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBackup(t *testing.T) {
	query := regexp.QuoteMeta(`DELETE FROM backups WHERE backup_id=$1`)

	tests := []struct {
		name            string
		rows            int64
		expectedDeleted bool
	}{
		{name: "Запись удалена", rows: 1, expectedDeleted: true},
		{name: "Записи уже нет", rows: 0, expectedDeleted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupBackupRepoMock(t)
			mock.ExpectExec(query).WithArgs("b-1").WillReturnResult(sqlmock.NewResult(0, tt.rows))

			deleted, err := repo.DeleteBackup(context.Background(), "b-1")
			require.NoError(t, err)
			assert.Equal(t, tt.expectedDeleted, deleted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
