package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlesschain/chainlesschain-sub001/internal/repository"
	"github.com/chainlesschain/chainlesschain-sub001/internal/services"
)

// setRequiredEnv задает обязательные секреты, которые не передаются флагами.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("ADMIN_TOKEN", "admin-token")
	t.Setenv("RECOVERY_WEBHOOK_URL", "https://notify.example/recovery")
}

func TestParseFlags(t *testing.T) {
	required := []string{"-cert-file=cert.pem", "-key-file=key.pem", "-database-dsn=postgres://..."}

	t.Run("Все параметры из флагов", func(t *testing.T) {
		setRequiredEnv(t)
		args := append([]string{"-port=8080", "-minio-bucket=devices", "-backup-max-bytes=2048"}, required...)

		cfg, err := parseFlags(args)
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "cert.pem", cfg.CertFile)
		assert.Equal(t, "key.pem", cfg.KeyFile)
		assert.Equal(t, "postgres://...", cfg.DatabaseDSN)
		assert.Equal(t, "devices", cfg.MinioBucket)
		assert.Equal(t, int64(2048), cfg.BackupMaxBytes)
	})

	t.Run("Все параметры из переменных окружения", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SERVER_PORT", "9090")
		t.Setenv("TLS_CERT_FILE", "env_cert.pem")
		t.Setenv("TLS_KEY_FILE", "env_key.pem")
		t.Setenv("DATABASE_DSN", "env_postgres://...")
		t.Setenv("RECOVERY_SESSION_TTL", "5m")
		t.Setenv("RECOVERY_MAX_ATTEMPTS", "3")

		cfg, err := parseFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, "9090", cfg.Port)
		assert.Equal(t, "env_cert.pem", cfg.CertFile)
		assert.Equal(t, "env_key.pem", cfg.KeyFile)
		assert.Equal(t, "env_postgres://...", cfg.DatabaseDSN)
		assert.Equal(t, 5*time.Minute, cfg.RecoverySessionTTL)
		assert.Equal(t, 3, cfg.RecoveryMaxAttempts)
	})

	t.Run("Значения по умолчанию", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := parseFlags(required)
		require.NoError(t, err)
		assert.Equal(t, "8443", cfg.Port)
		assert.Equal(t, "ukey-backups", cfg.MinioBucket)
		assert.False(t, cfg.RecoveryInlineChallenge, "вызов по умолчанию доставляется вебхуком")
		assert.IsType(t, &services.WebhookChallengeSender{}, cfg.challengeSender())
		assert.False(t, cfg.TrustProxyHeaders)

		db := cfg.database()
		assert.Equal(t, "postgres://...", db.DSN)
		assert.Equal(t, repository.DefaultMaxOpenConns, db.MaxOpenConns)
		assert.Equal(t, repository.DefaultMaxIdleConns, db.MaxIdleConns)
		assert.Equal(t, repository.DefaultConnMaxLifetime, db.ConnMaxLifetime)
		assert.Equal(t, repository.DefaultPingTimeout, db.PingTimeout)

		policy := cfg.policy()
		assert.Equal(t, services.DefaultPolicy(), policy)
	})

	t.Run("Флаги переопределяют переменные окружения", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SERVER_PORT", "9090")
		t.Setenv("TLS_CERT_FILE", "env_cert.pem")
		t.Setenv("ACTIVATION_CODE_TTL", "1h")

		cfg, err := parseFlags(append([]string{"-port=8080", "-activation-code-ttl=2h"}, required...))
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "cert.pem", cfg.CertFile)
		assert.Equal(t, 2*time.Hour, cfg.ActivationCodeTTL)
	})

	t.Run("Встроенная доставка включается явно", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("RECOVERY_WEBHOOK_URL", "")
		t.Setenv("RECOVERY_INLINE_CHALLENGE", "true")

		cfg, err := parseFlags(required)
		require.NoError(t, err)
		assert.IsType(t, services.InlineChallengeSender{}, cfg.challengeSender())
	})

	t.Run("Параметры пула БД", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DB_MAX_IDLE_CONNS", "3")
		t.Setenv("DB_PING_TIMEOUT", "2s")

		cfg, err := parseFlags(append([]string{"-db-max-open-conns=8"}, required...))
		require.NoError(t, err)
		db := cfg.database()
		assert.Equal(t, 8, db.MaxOpenConns)
		assert.Equal(t, 3, db.MaxIdleConns)
		assert.Equal(t, 2*time.Second, db.PingTimeout)
	})

	t.Run("Невалидное значение в окружении", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("RECOVERY_MAX_ATTEMPTS", "много")

		_, err := parseFlags(required)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка чтения переменных окружения")
	})

	t.Run("Неизвестный флаг", func(t *testing.T) {
		setRequiredEnv(t)

		_, err := parseFlags(append([]string{"-unknown"}, required...))
		require.Error(t, err)
	})

	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "Отсутствует cert-file",
			args:    []string{"-key-file=key.pem", "-database-dsn=postgres://..."},
			wantErr: "не указан путь к файлу сертификата",
		},
		{
			name:    "Отсутствует key-file",
			args:    []string{"-cert-file=cert.pem", "-database-dsn=postgres://..."},
			wantErr: "не указан путь к файлу ключа",
		},
		{
			name:    "Отсутствует database-dsn",
			args:    []string{"-cert-file=cert.pem", "-key-file=key.pem"},
			wantErr: "не указана строка подключения к БД",
		},
		{
			name:    "Отсутствует секрет JWT",
			args:    required,
			env:     map[string]string{"JWT_SECRET": ""},
			wantErr: "JWT_SECRET",
		},
		{
			name:    "Отсутствует токен администратора",
			args:    required,
			env:     map[string]string{"ADMIN_TOKEN": ""},
			wantErr: "ADMIN_TOKEN",
		},
		{
			name:    "Доставка по умолчанию без адреса вебхука",
			args:    required,
			env:     map[string]string{"RECOVERY_WEBHOOK_URL": ""},
			wantErr: "RECOVERY_WEBHOOK_URL",
		},
		{
			name:    "Нулевой лимит частоты",
			args:    required,
			env:     map[string]string{"RECOVERY_RATE_LIMIT": "0"},
			wantErr: "RECOVERY_RATE_LIMIT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := parseFlags(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ChallengeSender(t *testing.T) {
	cfg := &config{RecoveryInlineChallenge: true}
	assert.IsType(t, services.InlineChallengeSender{}, cfg.challengeSender())

	cfg = &config{RecoveryWebhookURL: "https://notify.example/recovery"}
	assert.IsType(t, &services.WebhookChallengeSender{}, cfg.challengeSender())
}

func TestConfig_Minio(t *testing.T) {
	cfg := &config{
		MinioEndpoint: "minio:9000",
		MinioUser:     "user",
		MinioPassword: "secret",
		MinioBucket:   "bucket",
		MinioUseSSL:   true,
	}

	got := cfg.minio()
	assert.Equal(t, "minio:9000", got.Endpoint)
	assert.Equal(t, "user", got.AccessKeyID)
	assert.Equal(t, "secret", got.SecretAccessKey)
	assert.Equal(t, "bucket", got.BucketName)
	assert.True(t, got.UseSSL)
}
