// Package metrics содержит Prometheus-коллекторы доменных событий движка.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Значения метки result.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics хранит счетчики движка. Нулевой указатель допустим: методы ничего не делают.
type Metrics struct {
	activations *prometheus.CounterVec
	transitions *prometheus.CounterVec
	backups     *prometheus.CounterVec
	recovery    *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New создает коллекторы и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ukey_activations_total",
			Help: "Попытки погашения кода активации по результату.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ukey_lifecycle_transitions_total",
			Help: "Выполненные переходы состояний устройств по целевому состоянию.",
		}, []string{"to"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ukey_backups_total",
			Help: "Операции с резервными копиями.",
		}, []string{"op"}),
		recovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ukey_recovery_total",
			Help: "Шаги восстановления доступа по результату.",
		}, []string{"step", "result"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ukey_http_request_duration_seconds",
			Help:    "Длительность обработки HTTP-запросов.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.activations, m.transitions, m.backups, m.recovery, m.httpLatency)
	return m
}

// Activation учитывает попытку погашения кода.
func (m *Metrics) Activation(result string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(result).Inc()
}

// Transition учитывает переход в состояние to.
func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

// Backup учитывает операцию op (create, restore, delete).
func (m *Metrics) Backup(op string) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(op).Inc()
}

// Recovery учитывает шаг восстановления (initiate, verify, reset).
func (m *Metrics) Recovery(step, result string) {
	if m == nil {
		return
	}
	m.recovery.WithLabelValues(step, result).Inc()
}

// ObserveHTTP записывает длительность запроса в секундах.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, status).Observe(seconds)
}

// ResultOf возвращает значение метки result по ошибке.
func ResultOf(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
