package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/arzzra/ctserver/pkg/audio"
	"github.com/arzzra/ctserver/pkg/commands"
	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/protocol"
)

// Пауза перед повтором после ошибки accept
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// WorkerConfig параметры обработчика линии
type WorkerConfig struct {
	ListenHost    string
	Port          int
	PollInterval  time.Duration
	MaxLineLength int
	Commands      commands.Config
	Store         audio.Store
	Handlers      map[protocol.Verb]commands.Handler
}

// Worker владеет одной линией все время работы процесса: слушает порт
// линии и обслуживает клиентов по одному.
type Worker struct {
	index   int
	line    hardware.Line
	cfg     WorkerConfig
	coord   *Coordinator
	metrics *Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// NewWorker создает обработчик линии line с номером index
func NewWorker(index int, line hardware.Line, cfg WorkerConfig, coord *Coordinator, metrics *Metrics, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = engine.DefaultPollInterval
	}
	if cfg.Handlers == nil {
		cfg.Handlers = commands.Handlers()
	}
	if cfg.Store == nil {
		cfg.Store = audio.NewFileStore()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Worker{
		index:   index,
		line:    line,
		cfg:     cfg,
		coord:   coord,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "worker"), slog.Int("line", index)),
		ready:   make(chan struct{}),
	}
}

// Index номер линии
func (w *Worker) Index() int {
	return w.index
}

// Ready закрывается, когда порт линии открыт
func (w *Worker) Ready() <-chan struct{} {
	return w.ready
}

// Addr адрес слушающего сокета, nil до Ready
func (w *Worker) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addr
}

// Run кладет трубку, открывает порт линии и принимает соединения до
// завершения процесса. Ошибка открытия порта завершает только эту линию.
func (w *Worker) Run(ctx context.Context) error {
	if !w.coord.WorkerStarted() {
		return ErrShutdown
	}
	defer w.coord.WorkerDone()

	w.metrics.workerStarted()
	defer w.metrics.workerStopped()

	if err := w.line.SetHook(hardware.OnHook); err != nil {
		w.logger.Warn("Не удалось положить трубку", slog.String("error", err.Error()))
	}

	ln, err := w.listen(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	untrack := w.coord.TrackListener(ln)
	defer untrack()
	defer ln.Close()

	w.accept(ctx, ln)
	return nil
}

// accept принимает соединения, пока ln не закрыт или не отменен ctx.
// Ошибка приема не останавливает линию: после паузы прием повторяется.
func (w *Worker) accept(ctx context.Context, ln net.Listener) {
	waiter := engine.NewWaiter(w.line,
		engine.WithPollInterval(w.cfg.PollInterval),
		engine.WithLogger(w.logger),
		engine.WithObserver(w.metrics.ObserveEvent),
	)

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				w.logger.Info("Прием соединений остановлен")
				return
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			w.logger.Warn("Ошибка приема соединения, повтор",
				slog.String("error", newError(ErrorCodeAcceptFailed, w.index, "accept", err).Error()),
				slog.Duration("retry_in", delay))

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}
		delay = 0

		if err := w.serve(ctx, conn, waiter); err != nil {
			if errors.Is(err, engine.ErrAborted) {
				return
			}
			w.logger.Warn("Сессия завершена с ошибкой", slog.String("error", err.Error()))
		}
	}
}

func (w *Worker) listen(ctx context.Context) (net.Listener, error) {
	addr := net.JoinHostPort(w.cfg.ListenHost, strconv.Itoa(w.cfg.Port))
	lc := net.ListenConfig{Control: listenControl}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, newError(ErrorCodeListenFailed, w.index, "не удалось открыть порт "+addr, err)
	}

	w.mu.Lock()
	w.addr = ln.Addr()
	w.mu.Unlock()
	close(w.ready)

	w.logger.Info("Линия готова", slog.String("addr", ln.Addr().String()))
	return ln, nil
}

// serve обслуживает одно соединение
func (w *Worker) serve(ctx context.Context, conn net.Conn, waiter *engine.Waiter) error {
	untrack := w.coord.TrackConn(conn)
	defer untrack()
	defer conn.Close()

	// при завершении чтение следующей команды прерывается, запись ответа
	// на прерванную команду остается возможной
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	w.metrics.sessionStarted()
	defer w.metrics.sessionEnded()

	session := NewSession(conn, waiter, SessionConfig{
		MaxLineLength: w.cfg.MaxLineLength,
		Commands:      w.cfg.Commands,
		Store:         w.cfg.Store,
		Handlers:      w.cfg.Handlers,
		Metrics:       w.metrics,
		Logger:        w.logger.With(slog.String("remote", conn.RemoteAddr().String())),
	})
	return session.Run(ctx)
}
