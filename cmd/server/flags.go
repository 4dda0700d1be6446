package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/chainlesschain/chainlesschain-sub001/internal/repository"
	"github.com/chainlesschain/chainlesschain-sub001/internal/services"
	"github.com/chainlesschain/chainlesschain-sub001/internal/storage"
)

// config хранит конфигурацию сервера. Значения читаются из окружения,
// флаги командной строки имеют приоритет.
type config struct {
	Port        string `envconfig:"SERVER_PORT" default:"8443"`
	CertFile    string `envconfig:"TLS_CERT_FILE"`
	KeyFile     string `envconfig:"TLS_KEY_FILE"`
	DatabaseDSN string `envconfig:"DATABASE_DSN"`
	// Заголовки X-Forwarded-For/X-Real-IP учитываются только за доверенным прокси
	TrustProxyHeaders bool `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
	JWTSecret   string `envconfig:"JWT_SECRET"`
	AdminToken  string `envconfig:"ADMIN_TOKEN"`

	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	DBPingTimeout     time.Duration `envconfig:"DB_PING_TIMEOUT" default:"5s"`

	MinioEndpoint string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	MinioUser     string `envconfig:"MINIO_USER" default:"minioadmin"`
	MinioPassword string `envconfig:"MINIO_PASSWORD" default:"minioadmin"`
	MinioBucket   string `envconfig:"MINIO_BUCKET" default:"ukey-backups"`
	MinioUseSSL   bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	ActivationCodeTTL       time.Duration `envconfig:"ACTIVATION_CODE_TTL" default:"8760h"`
	RecoverySessionTTL      time.Duration `envconfig:"RECOVERY_SESSION_TTL" default:"15m"`
	RecoveryMaxAttempts     int           `envconfig:"RECOVERY_MAX_ATTEMPTS" default:"5"`
	RecoveryInlineChallenge bool          `envconfig:"RECOVERY_INLINE_CHALLENGE" default:"false"`
	RecoveryWebhookURL      string        `envconfig:"RECOVERY_WEBHOOK_URL"`
	RecoveryRateLimit       float64       `envconfig:"RECOVERY_RATE_LIMIT" default:"1"`
	RecoveryRateBurst       int           `envconfig:"RECOVERY_RATE_BURST" default:"5"`
	BackupMaxBytes          int64         `envconfig:"BACKUP_MAX_BYTES" default:"1048576"`
}

// parseFlags читает окружение, затем разбирает флаги args. Возвращает config или ошибку.
func parseFlags(args []string) (*config, error) {
	cfg := &config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("ошибка чтения переменных окружения: %w", err)
	}

	// Значения из окружения становятся значениями флагов по умолчанию
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "Порт для запуска HTTPS-сервера (env: SERVER_PORT)")
	fs.StringVar(&cfg.CertFile, "cert-file", cfg.CertFile, "Путь к файлу TLS-сертификата (env: TLS_CERT_FILE)")
	fs.StringVar(&cfg.KeyFile, "key-file", cfg.KeyFile, "Путь к файлу TLS-ключа (env: TLS_KEY_FILE)")
	fs.StringVar(&cfg.DatabaseDSN, "database-dsn", cfg.DatabaseDSN,
		"Строка подключения к базе данных (env: DATABASE_DSN)")
	fs.IntVar(&cfg.DBMaxOpenConns, "db-max-open-conns", cfg.DBMaxOpenConns,
		"Максимальный размер пула соединений с БД (env: DB_MAX_OPEN_CONNS)")
	fs.BoolVar(&cfg.TrustProxyHeaders, "trust-proxy-headers", cfg.TrustProxyHeaders,
		"Брать адрес клиента из заголовков прокси (env: TRUST_PROXY_HEADERS)")
	fs.StringVar(&cfg.MinioEndpoint, "minio-endpoint", cfg.MinioEndpoint, "Адрес MinIO (env: MINIO_ENDPOINT)")
	fs.StringVar(&cfg.MinioBucket, "minio-bucket", cfg.MinioBucket, "Бакет для резервных копий (env: MINIO_BUCKET)")
	fs.DurationVar(&cfg.ActivationCodeTTL, "activation-code-ttl", cfg.ActivationCodeTTL,
		"Срок действия кода активации (env: ACTIVATION_CODE_TTL)")
	fs.DurationVar(&cfg.RecoverySessionTTL, "recovery-session-ttl", cfg.RecoverySessionTTL,
		"Срок действия сессии восстановления (env: RECOVERY_SESSION_TTL)")
	fs.Int64Var(&cfg.BackupMaxBytes, "backup-max-bytes", cfg.BackupMaxBytes,
		"Максимальный размер резервной копии (env: BACKUP_MAX_BYTES)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate проверяет обязательные параметры.
func (c *config) validate() error {
	if c.CertFile == "" {
		return errors.New("не указан путь к файлу сертификата (--cert-file или TLS_CERT_FILE)")
	}
	if c.KeyFile == "" {
		return errors.New("не указан путь к файлу ключа (--key-file или TLS_KEY_FILE)")
	}
	if c.DatabaseDSN == "" {
		return errors.New("не указана строка подключения к БД (--database-dsn или DATABASE_DSN)")
	}
	if c.JWTSecret == "" {
		return errors.New("не задан секрет подписи токенов (JWT_SECRET)")
	}
	if c.AdminToken == "" {
		return errors.New("не задан токен администратора (ADMIN_TOKEN)")
	}
	if !c.RecoveryInlineChallenge && c.RecoveryWebhookURL == "" {
		return errors.New("не задан RECOVERY_WEBHOOK_URL для доставки вызова восстановления " +
			"(или явно включите RECOVERY_INLINE_CHALLENGE)")
	}
	if c.RecoveryRateLimit <= 0 {
		return errors.New("RECOVERY_RATE_LIMIT должен быть больше нуля")
	}
	return nil
}

// policy собирает политику сервисов из конфигурации.
func (c *config) policy() services.Policy {
	return services.Policy{
		ActivationCodeTTL:   c.ActivationCodeTTL,
		RecoverySessionTTL:  c.RecoverySessionTTL,
		RecoveryMaxAttempts: c.RecoveryMaxAttempts,
		BackupMaxBytes:      c.BackupMaxBytes,
	}
}

// database возвращает параметры подключения к PostgreSQL.
func (c *config) database() repository.DBConfig {
	return repository.DBConfig{
		DSN:             c.DatabaseDSN,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
		PingTimeout:     c.DBPingTimeout,
	}
}

// minio возвращает параметры подключения к объектному хранилищу.
func (c *config) minio() storage.MinioConfig {
	return storage.MinioConfig{
		Endpoint:        c.MinioEndpoint,
		AccessKeyID:     c.MinioUser,
		SecretAccessKey: c.MinioPassword,
		UseSSL:          c.MinioUseSSL,
		BucketName:      c.MinioBucket,
	}
}

// challengeSender выбирает канал доставки вызова восстановления.
func (c *config) challengeSender() services.ChallengeSender {
	if c.RecoveryInlineChallenge {
		return services.InlineChallengeSender{}
	}
	return services.NewWebhookChallengeSender(c.RecoveryWebhookURL)
}
