package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/arzzra/ctserver/pkg/audio"
	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/protocol"
)

// Channel текстовый канал сессии, из которого обработчик читает
// параметры и в который пишет ответ
type Channel interface {
	ReadParam() (string, error)
	Reply(reply string) error
}

// Config параметры обработчиков команд
type Config struct {
	// RingGracePeriod сколько ждать второго звонка после первого
	RingGracePeriod time.Duration
	// CIDSamples размер буфера записи caller-ID в отсчетах
	CIDSamples int
	// TrimSamples сколько отсчетов отрезать с конца записи
	TrimSamples int64
}

// DefaultConfig возвращает параметры по умолчанию: 6 секунд между
// звонками и 4 секунды записи caller-ID на 8 kHz.
func DefaultConfig() Config {
	return Config{
		RingGracePeriod: 6 * time.Second,
		CIDSamples:      4 * audio.DefaultSampleRate,
		TrimSamples:     audio.DefaultTrimSamples,
	}
}

// Env окружение выполнения одной команды
type Env struct {
	Line   hardware.Line
	Waiter *engine.Waiter
	Chan   Channel
	Store  audio.Store
	Config Config
	Logger *slog.Logger
}

// Handler обработчик команды протокола. Ошибка возвращается только когда
// сессию нужно завершить: ошибка сокета или engine.ErrAborted. Ошибки
// оборудования и параметров отправляются клиенту ответом ERROR.
type Handler interface {
	Handle(ctx context.Context, env *Env) error
}

// HandlerFunc адаптер функции к Handler
type HandlerFunc func(ctx context.Context, env *Env) error

func (f HandlerFunc) Handle(ctx context.Context, env *Env) error {
	return f(ctx, env)
}

// Handlers возвращает обработчики всех команд протокола
func Handlers() map[protocol.Verb]Handler {
	return map[protocol.Verb]Handler{
		protocol.VerbWaitForRing: HandlerFunc(WaitForRing),
		protocol.VerbWaitForDial: HandlerFunc(WaitForDial),
		protocol.VerbHangup:      HandlerFunc(Hangup),
		protocol.VerbAnswer:      HandlerFunc(Answer),
		protocol.VerbPlay:        HandlerFunc(Play),
		protocol.VerbRecord:      HandlerFunc(Record),
		protocol.VerbSleep:       HandlerFunc(Sleep),
		protocol.VerbClear:       HandlerFunc(Clear),
		protocol.VerbCollect:     HandlerFunc(Collect),
		protocol.VerbDial:        HandlerFunc(Dial),
	}
}

// readParams читает n строк параметров подряд
func readParams(env *Env, n int) ([]string, error) {
	params := make([]string, n)
	for i := range params {
		p, err := env.Chan.ReadParam()
		if err != nil {
			return nil, err
		}
		params[i] = p
	}
	return params, nil
}

// parseSeconds разбирает неотрицательное число секунд
func parseSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("некорректное число секунд %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("отрицательное число секунд: %d", n)
	}
	return time.Duration(n) * time.Second, nil
}

// replyError отправляет ERROR и логирует причину
func replyError(env *Env, msg string, err error) error {
	env.Logger.Error(msg, slog.String("error", err.Error()))
	return env.Chan.Reply(protocol.ReplyError)
}

func digitReply(ev hardware.Event) string {
	return string([]byte{ev.Digit()})
}
