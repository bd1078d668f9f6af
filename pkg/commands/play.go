package commands

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"

	"github.com/arzzra/ctserver/pkg/audio"
	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/protocol"
)

// Состояния воспроизведения
const (
	statePlaying        = "playing"
	stateWaitForPlayEnd = "wait_for_play_end"
	stateFinished       = "finished"
)

// События автомата воспроизведения
const (
	eventPlayEnd = "play_end"
	eventDigit   = "digit"
)

// playMachine автомат команды play:
//
//	playing --play_end--> finished                        ответ OK
//	playing --digit--> wait_for_play_end --play_end--> finished   ответ цифра
type playMachine struct {
	fsm    *fsm.FSM
	line   hardware.Line
	logger *slog.Logger
	digit  string
	reply  string
}

func newPlayMachine(line hardware.Line, logger *slog.Logger) *playMachine {
	m := &playMachine{line: line, logger: logger}
	m.fsm = fsm.NewFSM(
		statePlaying,
		fsm.Events{
			{Name: eventDigit, Src: []string{statePlaying}, Dst: stateWaitForPlayEnd},
			{Name: eventPlayEnd, Src: []string{statePlaying, stateWaitForPlayEnd}, Dst: stateFinished},
		},
		fsm.Callbacks{
			"before_" + eventDigit:   m.stopPlayback,
			"enter_" + stateFinished: m.enterFinished,
		},
	)
	return m
}

// stopPlayback прерывает воспроизведение при нажатии цифры, цифра
// запоминается для ответа после прихода play_end
func (m *playMachine) stopPlayback(_ context.Context, e *fsm.Event) {
	m.digit = e.Args[0].(string)
	m.stop()
}

func (m *playMachine) stop() {
	if err := m.line.StopPlay(); err != nil {
		m.logger.Warn("Ошибка остановки воспроизведения", slog.String("error", err.Error()))
	}
}

func (m *playMachine) enterFinished(_ context.Context, e *fsm.Event) {
	if e.Src == stateWaitForPlayEnd {
		m.reply = m.digit
		return
	}
	m.reply = protocol.ReplyOK
}

// handle передает событие линии автомату. События, не допустимые в
// текущем состоянии, игнорируются.
func (m *playMachine) handle(ctx context.Context, ev hardware.Event) error {
	switch ev.Kind {
	case hardware.EventPlayEnd:
		if m.fsm.Can(eventPlayEnd) {
			return m.fsm.Event(ctx, eventPlayEnd)
		}
	case hardware.EventDTMF:
		if m.fsm.Can(eventDigit) {
			return m.fsm.Event(ctx, eventDigit, digitReply(ev))
		}
	}
	return nil
}

func (m *playMachine) finished() bool {
	return m.fsm.Is(stateFinished)
}

// Play проигрывает файл. Нажатая цифра прерывает воспроизведение и
// возвращается ответом, иначе ответ OK после окончания файла.
func Play(ctx context.Context, env *Env) error {
	path, err := env.Chan.ReadParam()
	if err != nil {
		return err
	}

	if enc, ok := audio.IsRawVoice(path); ok {
		err = env.Line.StartPlayVox(path, enc)
	} else {
		err = env.Line.StartPlayFile(path)
	}
	if err != nil {
		return replyError(env, "Ошибка воспроизведения: "+path, err)
	}

	m := newPlayMachine(env.Line, env.Logger)
	for !m.finished() {
		ev, res, err := env.Waiter.WaitFor(ctx, engine.Any(), 0)
		if err != nil {
			m.stop()
			return err
		}
		if res == engine.Aborted {
			m.stop()
			return engine.ErrAborted
		}
		if err := m.handle(ctx, ev); err != nil {
			env.Logger.Warn("Ошибка перехода автомата play", slog.String("error", err.Error()))
		}
	}

	return env.Chan.Reply(m.reply)
}
