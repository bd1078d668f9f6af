package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arzzra/ctserver/pkg/hardware"
)

// DefaultPollInterval пауза между опросами пустой очереди событий
const DefaultPollInterval = 100 * time.Millisecond

// timerSlack допустимое опережение срабатывания таймера линии
const timerSlack = 10 * time.Millisecond

// Result итог ожидания события
type Result int

const (
	// Matched - получено ожидаемое событие
	Matched Result = iota
	// TimedOut - сработал таймер линии
	TimedOut
	// Aborted - процесс завершается
	Aborted
)

func (r Result) String() string {
	switch r {
	case Matched:
		return "matched"
	case TimedOut:
		return "timed_out"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// ErrAborted возвращают обработчики команд, прерванные завершением процесса
var ErrAborted = errors.New("engine: wait aborted by shutdown")

// Matcher отбирает ожидаемое событие
type Matcher func(ev hardware.Event) bool

// Any принимает любое событие (режим "следующее событие")
func Any() Matcher {
	return func(hardware.Event) bool { return true }
}

// Kind принимает события вида kind с любыми данными
func Kind(kind hardware.EventKind) Matcher {
	return func(ev hardware.Event) bool { return ev.Kind == kind }
}

// KindData принимает события вида kind с данными data
func KindData(kind hardware.EventKind, data int) Matcher {
	return func(ev hardware.Event) bool { return ev.Kind == kind && ev.Data == data }
}

// Observer вызывается для каждого полученного события
type Observer func(ev hardware.Event)

// Waiter блокирующее ожидание событий одной линии. Используется только
// горутиной-владельцем линии.
type Waiter struct {
	line     hardware.Line
	poll     time.Duration
	logger   *slog.Logger
	observer Observer
}

// Option опция Waiter
type Option func(*Waiter)

// WithPollInterval задает паузу между опросами
func WithPollInterval(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.poll = d
		}
	}
}

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(w *Waiter) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithObserver задает наблюдатель событий (метрики)
func WithObserver(o Observer) Option {
	return func(w *Waiter) { w.observer = o }
}

// NewWaiter создает Waiter для линии
func NewWaiter(line hardware.Line, opts ...Option) *Waiter {
	w := &Waiter{
		line:   line,
		poll:   DefaultPollInterval,
		logger: slog.Default().With(slog.String("component", "engine"), slog.Int("line", line.ID())),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Line возвращает линию Waiter'а
func (w *Waiter) Line() hardware.Line {
	return w.line
}

// WaitFor опрашивает события линии, пока не придет событие, принятое match
// (Matched), не сработает таймер линии (TimedOut) или не будет отменен ctx
// (Aborted). timeout == 0 означает ожидание без ограничения, таймер при
// этом не запускается. Перед возвратом таймер всегда останавливается.
//
// Ошибка возвращается только если не удалось запустить таймер.
func (w *Waiter) WaitFor(ctx context.Context, match Matcher, timeout time.Duration) (hardware.Event, Result, error) {
	started := time.Now()
	timer := w.line.Timer()
	if err := timer.SetPeriod(timeout); err != nil {
		return hardware.Event{}, Aborted, fmt.Errorf("не удалось установить период таймера: %w", err)
	}
	if timeout > 0 {
		if err := timer.Start(); err != nil {
			return hardware.Event{}, Aborted, fmt.Errorf("не удалось запустить таймер: %w", err)
		}
	}
	defer func() {
		if err := timer.Stop(); err != nil {
			w.logger.Warn("Ошибка остановки таймера", slog.String("error", err.Error()))
		}
	}()

	sleep := time.NewTimer(w.poll)
	defer sleep.Stop()

	for {
		if ctx.Err() != nil {
			return hardware.Event{}, Aborted, nil
		}

		ev, ok := w.line.PollEvent()
		if ok {
			w.logger.Debug("Событие линии", slog.String("event", ev.String()))
			if w.observer != nil {
				w.observer(ev)
			}

			if ev.Kind == hardware.EventTimerExpired {
				if timeout > 0 && time.Since(started)+timerSlack >= timeout {
					return ev, TimedOut, nil
				}
				// срабатывание до истечения timeout осталось от прошлой команды
				w.logger.Debug("Пропущено устаревшее срабатывание таймера")
				continue
			}
			if match(ev) {
				return ev, Matched, nil
			}
			continue
		}

		sleep.Reset(w.poll)
		select {
		case <-ctx.Done():
			return hardware.Event{}, Aborted, nil
		case <-sleep.C:
		}
	}
}
