package commands

import (
	"context"

	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/protocol"
)

// Answer снимает трубку
func Answer(_ context.Context, env *Env) error {
	if err := env.Line.SetHook(hardware.OffHook); err != nil {
		return replyError(env, "Не удалось снять трубку", err)
	}
	return env.Chan.Reply(protocol.ReplyOK)
}

// Hangup кладет трубку
func Hangup(_ context.Context, env *Env) error {
	if err := env.Line.SetHook(hardware.OnHook); err != nil {
		return replyError(env, "Не удалось положить трубку", err)
	}
	return env.Chan.Reply(protocol.ReplyOK)
}

// Clear очищает буфер принятых цифр. Повторные вызовы безопасны.
func Clear(_ context.Context, env *Env) error {
	if err := env.Line.FlushDigits(); err != nil {
		return replyError(env, "Не удалось очистить буфер цифр", err)
	}
	return env.Chan.Reply(protocol.ReplyOK)
}
