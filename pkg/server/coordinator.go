package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/arzzra/ctserver/pkg/hardware"
)

// DefaultShutdownTimeout ожидание завершения обработчиков линий
const DefaultShutdownTimeout = 5 * time.Second

// CoordinatorConfig параметры завершения процесса
type CoordinatorConfig struct {
	// ShutdownTimeout сколько ждать обработчики линий перед закрытием линий
	ShutdownTimeout time.Duration
	// PIDFile удаляется при завершении, пустой - не используется
	PIDFile string
	Logger  *slog.Logger
}

// Coordinator общее состояние процесса: флаг завершения и счетчик
// работающих обработчиков линий. Единственный путь очистки выполняется
// ровно один раз.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	shuttingDown  bool
	activeWorkers int
	workers       sync.WaitGroup
	listeners     map[int]io.Closer
	conns         map[int]io.Closer
	nextID        int
	lines         []hardware.Line

	once    sync.Once
	done    chan struct{}
	timeout time.Duration
	pidFile string
	logger  *slog.Logger
}

// NewCoordinator создает координатор с корневым контекстом, производным от parent
func NewCoordinator(parent context.Context, cfg CoordinatorConfig) *Coordinator {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]io.Closer),
		conns:     make(map[int]io.Closer),
		done:      make(chan struct{}),
		timeout:   cfg.ShutdownTimeout,
		pidFile:   cfg.PIDFile,
		logger:    logger.With(slog.String("component", "coordinator")),
	}
}

// Context корневой контекст, отменяется при завершении
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Done закрывается после выполнения очистки
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// ShuttingDown сообщает, начато ли завершение
func (c *Coordinator) ShuttingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shuttingDown
}

// ActiveWorkers возвращает количество работающих обработчиков линий
func (c *Coordinator) ActiveWorkers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeWorkers
}

// WorkerStarted регистрирует обработчик линии. false - процесс уже
// завершается, обработчик запускать нельзя.
func (c *Coordinator) WorkerStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shuttingDown {
		return false
	}
	c.activeWorkers++
	c.workers.Add(1)
	return true
}

// WorkerDone снимает регистрацию обработчика линии
func (c *Coordinator) WorkerDone() {
	c.mu.Lock()
	c.activeWorkers--
	c.mu.Unlock()
	c.workers.Done()
}

// AddLine передает линию координатору для закрытия при завершении
func (c *Coordinator) AddLine(line hardware.Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

// TrackListener регистрирует слушающий сокет, который закрывается в
// начале завершения. Возвращает функцию снятия регистрации. Если
// завершение уже идет, сокет закрывается сразу.
func (c *Coordinator) TrackListener(ln io.Closer) (untrack func()) {
	return c.track(c.listeners, ln)
}

// TrackConn регистрирует соединение клиента. Соединения закрываются
// только после ожидания обработчиков: прерванная команда еще может
// отправить ответ (finito).
func (c *Coordinator) TrackConn(conn io.Closer) (untrack func()) {
	return c.track(c.conns, conn)
}

func (c *Coordinator) track(set map[int]io.Closer, closer io.Closer) func() {
	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		_ = closer.Close()
		return func() {}
	}
	id := c.nextID
	c.nextID++
	set[id] = closer
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(set, id)
		c.mu.Unlock()
	}
}

// drain забирает все зарегистрированные объекты из set
func (c *Coordinator) drain(set map[int]io.Closer) []io.Closer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]io.Closer, 0, len(set))
	for id, cl := range set {
		out = append(out, cl)
		delete(set, id)
	}
	return out
}

// Shutdown выполняет очистку один раз: флаг, отмена контекста, закрытие
// слушающих сокетов, ожидание обработчиков не дольше ShutdownTimeout,
// закрытие соединений и линий, удаление pid файла. Повторные вызовы
// ждут окончания первого.
func (c *Coordinator) Shutdown(reason string) {
	c.once.Do(func() {
		defer close(c.done)
		c.logger.Info("Завершение работы", slog.String("reason", reason))

		c.mu.Lock()
		c.shuttingDown = true
		c.mu.Unlock()

		c.cancel()
		for _, ln := range c.drain(c.listeners) {
			_ = ln.Close()
		}

		if !c.waitWorkers() {
			c.logger.Warn("Обработчики линий не завершились вовремя",
				slog.Int("active", c.ActiveWorkers()), slog.Duration("timeout", c.timeout))
		}
		for _, conn := range c.drain(c.conns) {
			_ = conn.Close()
		}

		c.mu.Lock()
		lines := c.lines
		c.lines = nil
		c.mu.Unlock()
		for _, line := range lines {
			if err := line.Close(); err != nil {
				c.logger.Warn("Ошибка закрытия линии", slog.Int("line", line.ID()), slog.String("error", err.Error()))
			}
		}

		if c.pidFile != "" {
			if err := RemovePIDFile(c.pidFile); err != nil {
				c.logger.Warn("Не удалось удалить pid файл", slog.String("file", c.pidFile), slog.String("error", err.Error()))
			}
		}
		c.logger.Info("Завершение выполнено")
	})
	<-c.done
}

func (c *Coordinator) waitWorkers() bool {
	finished := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(finished)
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-finished:
		return true
	case <-timer.C:
		return false
	}
}

// WatchSignals ждет SIGTERM или SIGINT и запускает завершение. После
// первого сигнала обработка сигналов возвращается по умолчанию, повторный
// сигнал завершает процесс сразу.
func (c *Coordinator) WatchSignals(sigs ...os.Signal) {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGTERM, syscall.SIGINT}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		select {
		case sig := <-ch:
			signal.Reset(sigs...)
			c.Shutdown("signal " + sig.String())
		case <-c.ctx.Done():
			signal.Stop(ch)
		}
	}()
}

// WritePIDFile записывает pid процесса в path
func WritePIDFile(path string) error {
	data := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("не удалось записать pid файл: %w", err)
	}
	return nil
}

// RemovePIDFile удаляет pid файл, если в нем pid текущего процесса
func RemovePIDFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		return fmt.Errorf("pid файл %s принадлежит другому процессу", path)
	}
	return os.Remove(path)
}
