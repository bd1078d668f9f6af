package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/protocol"
)

// captureStopRetry период повтора StopCapture, пока горутина записи не
// завершится. Остановка может прийти раньше, чем запись фактически началась.
const captureStopRetry = 10 * time.Millisecond

type captureResult struct {
	n   int
	err error
}

// cidCapture запись отсчетов между звонками в собственный буфер
type cidCapture struct {
	line hardware.Line
	buf  []int16
	done chan captureResult
}

func startCIDCapture(line hardware.Line, samples int) *cidCapture {
	c := &cidCapture{
		line: line,
		buf:  make([]int16, samples),
		done: make(chan captureResult, 1),
	}
	go func() {
		n, err := c.line.CaptureSamples(c.buf)
		c.done <- captureResult{n: n, err: err}
	}()
	return c
}

// stop останавливает запись и ждет завершения горутины
func (c *cidCapture) stop() ([]int16, error) {
	retry := time.NewTicker(captureStopRetry)
	defer retry.Stop()

	for {
		_ = c.line.StopCapture()
		select {
		case r := <-c.done:
			return c.buf[:r.n], r.err
		case <-retry.C:
		}
	}
}

// WaitForRing ждет двойной звонок и отвечает номером caller-ID.
// После первого звонка запускается запись сигнала caller-ID; если второй
// звонок не пришел за RingGracePeriod, ожидание начинается заново.
// При завершении сервера отвечает protocol.ReplyShutdown.
func WaitForRing(ctx context.Context, env *Env) error {
	for {
		_, res, err := env.Waiter.WaitFor(ctx, engine.Kind(hardware.EventRing), 0)
		if err != nil {
			return err
		}
		if res == engine.Aborted {
			return shutdownReply(env)
		}

		capture := startCIDCapture(env.Line, env.Config.CIDSamples)
		env.Logger.Info("Первый звонок, запись caller-ID, ожидание второго звонка")

		_, res, err = env.Waiter.WaitFor(ctx, engine.Kind(hardware.EventRing), env.Config.RingGracePeriod)
		samples, capErr := capture.stop()
		if err != nil {
			return err
		}
		if capErr != nil {
			env.Logger.Warn("Ошибка записи caller-ID", slog.String("error", capErr.Error()))
		}

		switch res {
		case engine.Matched:
			cid, err := env.Line.DecodeCallerID(samples)
			if err != nil {
				// номер может быть не передан, это не ошибка протокола
				env.Logger.Info("Caller-ID не декодирован",
					slog.Int("samples", len(samples)), slog.String("error", err.Error()))
			} else {
				env.Logger.Info("Второй звонок, caller-ID декодирован", slog.String("number", cid))
			}
			return env.Chan.Reply(cid)
		case engine.TimedOut:
			env.Logger.Info("Второй звонок не пришел, ожидание заново")
		default:
			return shutdownReply(env)
		}
	}
}

func shutdownReply(env *Env) error {
	return errors.Join(engine.ErrAborted, env.Chan.Reply(protocol.ReplyShutdown))
}
