package services

import (
	"time"

	"github.com/chainlesschain/chainlesschain-sub001/internal/metrics"
)

// Политика по умолчанию.
const (
	DefaultActivationCodeTTL   = 365 * 24 * time.Hour
	DefaultRecoverySessionTTL  = 15 * time.Minute
	DefaultRecoveryMaxAttempts = 5
	DefaultBackupMaxBytes      = 1 << 20
	maxDeviceIDAttempts        = 3
)

// Policy - настраиваемые сроки и лимиты движка.
type Policy struct {
	ActivationCodeTTL   time.Duration
	RecoverySessionTTL  time.Duration
	RecoveryMaxAttempts int
	BackupMaxBytes      int64
}

// DefaultPolicy возвращает политику по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		ActivationCodeTTL:   DefaultActivationCodeTTL,
		RecoverySessionTTL:  DefaultRecoverySessionTTL,
		RecoveryMaxAttempts: DefaultRecoveryMaxAttempts,
		BackupMaxBytes:      DefaultBackupMaxBytes,
	}
}

// withDefaults заполняет нулевые значения значениями по умолчанию.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.ActivationCodeTTL <= 0 {
		p.ActivationCodeTTL = d.ActivationCodeTTL
	}
	if p.RecoverySessionTTL <= 0 {
		p.RecoverySessionTTL = d.RecoverySessionTTL
	}
	if p.RecoveryMaxAttempts <= 0 {
		p.RecoveryMaxAttempts = d.RecoveryMaxAttempts
	}
	if p.BackupMaxBytes <= 0 {
		p.BackupMaxBytes = d.BackupMaxBytes
	}
	return p
}

// base - общие для сервисов часы и метрики.
type base struct {
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option настраивает сервис.
type Option func(*base)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithMetrics подключает счетчики Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

func newBase(opts []Option) base {
	b := base{now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// clock возвращает текущее время в UTC.
func (b *base) clock() time.Time {
	return b.now().UTC()
}
