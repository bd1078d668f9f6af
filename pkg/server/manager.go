package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arzzra/ctserver/pkg/audio"
	"github.com/arzzra/ctserver/pkg/config"
	"github.com/arzzra/ctserver/pkg/hardware"
)

// Manager запускает по одному Worker на линию. Линии независимы: ошибка
// одной линии не останавливает остальные.
type Manager struct {
	cfg     *config.Config
	coord   *Coordinator
	metrics *Metrics
	ports   *portManager
	workers []*Worker
	logger  *slog.Logger

	mu       sync.Mutex
	failures map[int]error
}

// OpenLines открывает n линий драйвером driver. При ошибке уже открытые
// линии закрываются.
func OpenLines(driver string, n int) ([]hardware.Line, error) {
	lines := make([]hardware.Line, 0, n)
	for i := 0; i < n; i++ {
		line, err := hardware.Open(driver, i)
		if err != nil {
			for _, l := range lines {
				_ = l.Close()
			}
			return nil, newError(ErrorCodeHardwareFailed, i, "не удалось открыть линию", err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// NewManager создает обработчики для lines. Линии передаются
// координатору и закрываются при завершении.
func NewManager(cfg *config.Config, lines []hardware.Line, coord *Coordinator, metrics *Metrics, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(lines) != cfg.Lines {
		return nil, fmt.Errorf("ожидалось %d линий, получено %d", cfg.Lines, len(lines))
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	ports, err := newPortManager(cfg.BasePort, cfg.Lines)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg.Copy(),
		coord:    coord,
		metrics:  metrics,
		ports:    ports,
		logger:   logger.With(slog.String("component", "manager")),
		failures: make(map[int]error),
	}

	store := audio.NewFileStore()
	for i, line := range lines {
		coord.AddLine(line)

		port, err := ports.AllocatePort(i)
		if err != nil {
			return nil, err
		}
		m.workers = append(m.workers, NewWorker(i, line, WorkerConfig{
			ListenHost:    cfg.ListenHost,
			Port:          port,
			PollInterval:  cfg.PollInterval,
			MaxLineLength: cfg.MaxLineLength,
			Commands:      cfg.Commands(),
			Store:         store,
		}, coord, metrics, logger))
	}
	return m, nil
}

// Workers возвращает обработчики линий
func (m *Manager) Workers() []*Worker {
	return m.workers
}

// Failure возвращает ошибку, с которой завершилась линия index
func (m *Manager) Failure(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[index]
}

// Run запускает все линии и ждет их завершения. Возвращает объединенные
// ошибки линий, завершившихся аварийно.
func (m *Manager) Run(ctx context.Context) error {
	ports := m.ports.Range()
	m.logger.Info("Запуск линий", slog.Int("lines", len(m.workers)),
		slog.Int("port_min", ports.Min), slog.Int("port_max", ports.Max))

	var g errgroup.Group
	for _, w := range m.workers {
		g.Go(func() error {
			defer m.ports.ReleasePort(w.cfg.Port)
			if err := w.Run(ctx); err != nil {
				m.logger.Error("Линия остановлена с ошибкой",
					slog.Int("line", w.Index()), slog.String("error", err.Error()))
				m.mu.Lock()
				m.failures[w.Index()] = err
				m.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	errs := make([]error, 0, len(m.failures))
	for i := range m.workers {
		if err, ok := m.failures[i]; ok {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
