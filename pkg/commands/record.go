package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/looplab/fsm"

	"github.com/arzzra/ctserver/pkg/audio"
	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/protocol"
)

// Состояния записи
const (
	stateRecording        = "recording"
	stateWaitForRecordEnd = "wait_for_record_end"
)

// События автомата записи
const (
	eventRecordEnd = "record_end"
	eventTermDigit = "term_digit"
)

// recordMachine автомат команды record:
//
//	recording --record_end--> finished
//	recording --term_digit--> wait_for_record_end --record_end--> finished
//
// Ответ в обоих случаях OK, отправляется после обрезки файла.
type recordMachine struct {
	fsm        *fsm.FSM
	line       hardware.Line
	logger     *slog.Logger
	termDigits string
	reply      string
}

func newRecordMachine(line hardware.Line, termDigits string, logger *slog.Logger) *recordMachine {
	m := &recordMachine{line: line, termDigits: termDigits, logger: logger}
	m.fsm = fsm.NewFSM(
		stateRecording,
		fsm.Events{
			{Name: eventTermDigit, Src: []string{stateRecording}, Dst: stateWaitForRecordEnd},
			{Name: eventRecordEnd, Src: []string{stateRecording, stateWaitForRecordEnd}, Dst: stateFinished},
		},
		fsm.Callbacks{
			"leave_" + stateRecording: func(_ context.Context, _ *fsm.Event) {
				m.reply = protocol.ReplyOK
			},
			"before_" + eventTermDigit: m.stopRecording,
		},
	)
	return m
}

func (m *recordMachine) stopRecording(_ context.Context, e *fsm.Event) {
	m.logger.Info("Запись прервана цифрой", slog.String("digit", e.Args[0].(string)))
	m.stop()
}

func (m *recordMachine) stop() {
	if err := m.line.StopRecord(); err != nil {
		m.logger.Warn("Ошибка остановки записи", slog.String("error", err.Error()))
	}
}

func (m *recordMachine) isTermDigit(ev hardware.Event) bool {
	return strings.IndexByte(m.termDigits, ev.Digit()) >= 0
}

func (m *recordMachine) handle(ctx context.Context, ev hardware.Event) error {
	switch ev.Kind {
	case hardware.EventRecordEnd:
		if m.fsm.Can(eventRecordEnd) {
			return m.fsm.Event(ctx, eventRecordEnd)
		}
	case hardware.EventDTMF:
		if m.isTermDigit(ev) && m.fsm.Can(eventTermDigit) {
			return m.fsm.Event(ctx, eventTermDigit, digitReply(ev))
		}
	}
	return nil
}

func (m *recordMachine) finished() bool {
	return m.fsm.Is(stateFinished)
}

// recordEncoding кодирование записи по расширению, µ-law по умолчанию
func recordEncoding(path string) audio.Encoding {
	if f, err := audio.FormatForPath(path); err == nil && f.Container == audio.ContainerRaw {
		return f.Encoding
	}
	return audio.EncodingMuLaw
}

// Record записывает файл до таймаута или до нажатия одной из завершающих
// цифр. После окончания записи с конца файла отрезается TrimSamples
// отсчетов, затем отправляется ответ.
func Record(ctx context.Context, env *Env) error {
	params, err := readParams(env, 3)
	if err != nil {
		return err
	}
	path, termDigits := params[0], params[2]

	limit, err := parseSeconds(params[1])
	if err != nil {
		return replyError(env, "Некорректный таймаут record", err)
	}

	req := hardware.RecordRequest{Path: path, Encoding: recordEncoding(path), MaxDuration: limit}
	if err := env.Line.StartRecord(req); err != nil {
		return replyError(env, "Ошибка записи: "+path, err)
	}

	m := newRecordMachine(env.Line, termDigits, env.Logger)
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
			env.Logger.Warn("Ошибка перехода автомата record", slog.String("error", err.Error()))
		}
	}

	kept, err := audio.Trim(env.Store, path, env.Config.TrimSamples)
	if err != nil {
		env.Logger.Error("Ошибка обрезки записи", slog.String("file", path), slog.String("error", err.Error()))
	} else {
		env.Logger.Debug("Запись обрезана", slog.String("file", path), slog.Int64("samples", kept))
	}

	return env.Chan.Reply(m.reply)
}
