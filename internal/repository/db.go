package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Драйвер PostgreSQL, импортируем для регистрации
)

// Значения пула по умолчанию
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 10
	DefaultConnMaxLifetime = 30 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

// DBConfig - параметры подключения и пула соединений PostgreSQL.
// Нулевые поля заменяются значениями по умолчанию.
type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

func (c DBConfig) withDefaults() DBConfig {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	// Простаивающих соединений не больше, чем открытых
	if c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	return c
}

// NewPostgresDB открывает пул соединений с PostgreSQL и проверяет его пингом с таймаутом.
// Блокировки строк при активации и восстановлении держат соединение до конца транзакции,
// поэтому размер пула задается конфигурацией.
func NewPostgresDB(ctx context.Context, cfg DBConfig) (*sqlx.DB, error) {
	cfg = cfg.withDefaults()
	log.Printf("[DB] Подключение к PostgreSQL (пул: %d, простой: %d)...", cfg.MaxOpenConns, cfg.MaxIdleConns)

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	ConfigurePool(db, cfg)

	if err = Ping(ctx, db, cfg.PingTimeout); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("[DB] Ошибка закрытия соединения после неудачного пинга: %v", closeErr)
		}
		return nil, err
	}

	log.Println("[DB] Подключение к PostgreSQL установлено.")
	return db, nil
}

// ConfigurePool применяет к пулу лимиты из cfg.
func ConfigurePool(db *sqlx.DB, cfg DBConfig) {
	cfg = cfg.withDefaults()
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime)
}

// Ping проверяет соединение, ожидая не дольше timeout.
func Ping(ctx context.Context, db *sqlx.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ошибка проверки соединения с БД (ping): %w", err)
	}
	return nil
}
