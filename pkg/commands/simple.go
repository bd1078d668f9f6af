package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/protocol"
)

// Sleep ждет заданное число секунд. Нажатая цифра прерывает ожидание
// и возвращается ответом. 0 секунд - ждать цифру без ограничения.
func Sleep(ctx context.Context, env *Env) error {
	param, err := env.Chan.ReadParam()
	if err != nil {
		return err
	}
	period, err := parseSeconds(param)
	if err != nil {
		return replyError(env, "Некорректный параметр sleep", err)
	}

	ev, res, err := env.Waiter.WaitFor(ctx, engine.Kind(hardware.EventDTMF), period)
	if err != nil {
		return replyError(env, "Ошибка таймера линии", err)
	}

	switch res {
	case engine.TimedOut:
		return env.Chan.Reply(protocol.ReplyOK)
	case engine.Matched:
		return env.Chan.Reply(digitReply(ev))
	default:
		return engine.ErrAborted
	}
}

// Dial набирает номер и ждет окончания набора
func Dial(ctx context.Context, env *Env) error {
	digits, err := env.Chan.ReadParam()
	if err != nil {
		return err
	}

	env.Logger.Info("Набор номера", slog.String("digits", digits))
	if err := env.Line.StartDial(digits); err != nil {
		return replyError(env, "Не удалось начать набор", err)
	}

	_, res, err := env.Waiter.WaitFor(ctx, engine.Kind(hardware.EventDialEnd), 0)
	if err != nil {
		return err
	}
	if res != engine.Matched {
		return engine.ErrAborted
	}
	return env.Chan.Reply(protocol.ReplyOK)
}

// Collect собирает заданное количество цифр с общим и межцифровым таймаутами
func Collect(ctx context.Context, env *Env) error {
	params, err := readParams(env, 3)
	if err != nil {
		return err
	}

	req, err := parseDigitRequest(params)
	if err != nil {
		return replyError(env, "Некорректные параметры collect", err)
	}

	if err := env.Line.StartCollectDigits(req); err != nil {
		return replyError(env, "Не удалось начать сбор цифр", err)
	}

	ev, res, err := env.Waiter.WaitFor(ctx, engine.Kind(hardware.EventDigitsComplete), 0)
	if err != nil {
		return err
	}
	if res != engine.Matched {
		return engine.ErrAborted
	}

	digits := env.Line.CollectedDigits()
	env.Logger.Info("Цифры собраны", slog.String("digits", digits), slog.Int("reason", ev.Data))
	return env.Chan.Reply(digits)
}

func parseDigitRequest(params []string) (hardware.DigitRequest, error) {
	count, err := strconv.Atoi(strings.TrimSpace(params[0]))
	if err != nil || count <= 0 {
		return hardware.DigitRequest{}, fmt.Errorf("некорректное количество цифр %q", params[0])
	}
	timeout, err := parseSeconds(params[1])
	if err != nil {
		return hardware.DigitRequest{}, err
	}
	inter, err := parseSeconds(params[2])
	if err != nil {
		return hardware.DigitRequest{}, err
	}
	return hardware.DigitRequest{Count: count, Timeout: timeout, InterDigitTimeout: inter}, nil
}

// WaitForDial ждет тон готовности линии и отвечает пустой строкой
func WaitForDial(ctx context.Context, env *Env) error {
	_, res, err := env.Waiter.WaitFor(ctx, engine.KindData(hardware.EventToneDetect, hardware.ToneDial), 0)
	if err != nil {
		return err
	}
	if res != engine.Matched {
		return engine.ErrAborted
	}
	return env.Chan.Reply("")
}
