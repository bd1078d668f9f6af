package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/ctserver/pkg/hardware"
)

// Результаты команд для метрик
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultAborted   = "aborted"
	ResultTransport = "transport"
	ResultUnknown   = "unknown_verb"
)

const metricsNamespace = "ctserver"

// Metrics метрики сервера линий
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	sessionsTotal   prometheus.Counter
	sessionsActive  prometheus.Gauge
	workersActive   prometheus.Gauge
	eventsTotal     *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в собственном реестре
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Total number of protocol commands by verb and result",
		}, []string{"verb", "result"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of protocol commands",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"verb"}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_total",
			Help:      "Total number of accepted control connections",
		}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected control sessions",
		}),
		workersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "workers_active",
			Help:      "Number of running line workers",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "line_events_total",
			Help:      "Hardware events observed by kind",
		}, []string{"kind"}),
	}
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCommand учитывает выполненную команду
func (m *Metrics) ObserveCommand(verb, result string, d time.Duration) {
	m.commandsTotal.WithLabelValues(verb, result).Inc()
	m.commandDuration.WithLabelValues(verb).Observe(d.Seconds())
}

// ObserveEvent учитывает событие линии
func (m *Metrics) ObserveEvent(ev hardware.Event) {
	m.eventsTotal.WithLabelValues(ev.Kind.String()).Inc()
}

func (m *Metrics) sessionStarted() {
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) sessionEnded() {
	m.sessionsActive.Dec()
}

func (m *Metrics) workerStarted() {
	m.workersActive.Inc()
}

func (m *Metrics) workerStopped() {
	m.workersActive.Dec()
}

// Handler возвращает HTTP обработчик /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ServeMetrics публикует /metrics на addr до отмены ctx
func ServeMetrics(ctx context.Context, addr string, m *Metrics, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Метрики доступны", slog.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
