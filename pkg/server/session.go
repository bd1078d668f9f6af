package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arzzra/ctserver/pkg/audio"
	"github.com/arzzra/ctserver/pkg/commands"
	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/protocol"
)

// replyRecorder запоминает последний ответ команды для метрик
type replyRecorder struct {
	conn *protocol.Conn

	mu   sync.Mutex
	last string
	sent bool
}

func (r *replyRecorder) ReadParam() (string, error) {
	return r.conn.ReadParam()
}

func (r *replyRecorder) Reply(reply string) error {
	err := r.conn.Reply(reply)
	r.mu.Lock()
	r.last, r.sent = reply, err == nil
	r.mu.Unlock()
	return err
}

func (r *replyRecorder) reset() {
	r.mu.Lock()
	r.last, r.sent = "", false
	r.mu.Unlock()
}

func (r *replyRecorder) result() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent && r.last == protocol.ReplyError {
		return ResultError
	}
	return ResultOK
}

// Session одно соединение клиента с линией. Команды выполняются строго
// по очереди, на каждую отправляется ровно один ответ.
type Session struct {
	id       string
	line     hardware.Line
	conn     *protocol.Conn
	channel  *replyRecorder
	env      *commands.Env
	handlers map[protocol.Verb]commands.Handler
	metrics  *Metrics
	logger   *slog.Logger
}

// SessionConfig параметры сессии
type SessionConfig struct {
	MaxLineLength int
	Commands      commands.Config
	Store         audio.Store
	Handlers      map[protocol.Verb]commands.Handler
	Metrics       *Metrics
	Logger        *slog.Logger
}

// NewSession создает сессию поверх rw для линии, события которой
// ожидаются через waiter
func NewSession(rw io.ReadWriter, waiter *engine.Waiter, cfg SessionConfig) *Session {
	id := uuid.NewString()
	line := waiter.Line()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("session_id", id))

	if cfg.Handlers == nil {
		cfg.Handlers = commands.Handlers()
	}
	if cfg.Store == nil {
		cfg.Store = audio.NewFileStore()
	}

	conn := protocol.NewConn(rw, rw, cfg.MaxLineLength)
	ch := &replyRecorder{conn: conn}

	return &Session{
		id:      id,
		line:    line,
		conn:    conn,
		channel: ch,
		env: &commands.Env{
			Line:   line,
			Waiter: waiter,
			Chan:   ch,
			Store:  cfg.Store,
			Config: cfg.Commands,
			Logger: logger,
		},
		handlers: cfg.Handlers,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// ID идентификатор сессии
func (s *Session) ID() string {
	return s.id
}

// Run читает и выполняет команды до отключения клиента или завершения
// процесса. Отключение клиента не считается ошибкой. При завершении
// процесса возвращается engine.ErrAborted.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("Сессия начата")
	defer func() {
		s.logger.Info("Сессия завершена", slog.Int("replies", s.conn.Replies()))
	}()

	for {
		if ctx.Err() != nil {
			return engine.ErrAborted
		}

		line, err := s.conn.ReadLine()
		if err != nil {
			return s.transportError(ctx, err)
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		verb := protocol.ParseVerb(line)
		if verb == protocol.VerbUnknown {
			s.logger.Warn("Неизвестная команда", slog.String("command", strings.TrimSpace(line)))
			s.observe(verb.String(), ResultUnknown, 0)
			if err := s.channel.Reply(protocol.ReplyError); err != nil {
				return s.transportError(ctx, err)
			}
			continue
		}

		if err := s.dispatch(ctx, verb); err != nil {
			if errors.Is(err, engine.ErrAborted) {
				return engine.ErrAborted
			}
			return s.transportError(ctx, err)
		}
	}
}

func (s *Session) dispatch(ctx context.Context, verb protocol.Verb) error {
	handler, ok := s.handlers[verb]
	if !ok {
		s.observe(verb.String(), ResultUnknown, 0)
		return s.channel.Reply(protocol.ReplyError)
	}

	logger := s.logger.With(slog.String("verb", verb.String()))
	s.env.Logger = logger
	defer func() { s.env.Logger = s.logger }()

	logger.Debug("Команда")
	s.channel.reset()
	started := time.Now()

	err := handler.Handle(ctx, s.env)

	result := s.channel.result()
	switch {
	case errors.Is(err, engine.ErrAborted):
		result = ResultAborted
	case err != nil:
		result = ResultTransport
	}
	s.observe(verb.String(), result, time.Since(started))
	return err
}

func (s *Session) observe(verb, result string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveCommand(verb, result, d)
	}
}

// transportError отделяет отключение клиента от ошибок чтения и записи
func (s *Session) transportError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return engine.ErrAborted
	case errors.Is(err, protocol.ErrEndOfStream):
		s.logger.Info("Клиент отключился")
		return nil
	case errors.Is(err, protocol.ErrWriteFailed):
		return &Error{Code: ErrorCodeSessionWriteFailed, Line: s.line.ID(), SessionID: s.id,
			Message: "ошибка отправки ответа", Wrapped: err}
	default:
		return &Error{Code: ErrorCodeSessionReadFailed, Line: s.line.ID(), SessionID: s.id,
			Message: "ошибка чтения команды", Wrapped: err}
	}
}
