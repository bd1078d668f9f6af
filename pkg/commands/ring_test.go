package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/ctserver/pkg/audio"
	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/protocol"
)

var ringEvent = hardware.Event{Kind: hardware.EventRing}

func TestWaitForRing_CallerID(t *testing.T) {
	env := newTestEnv(t)
	env.line.SetCallerID("5551234")
	env.line.Ring()
	env.line.InjectAfter(50*time.Millisecond, ringEvent)

	require.NoError(t, WaitForRing(context.Background(), env.Env))

	assert.Equal(t, []string{"5551234"}, env.ch.Replies())
	calls := env.line.Calls()
	assert.Contains(t, calls, "capture_start")
	assert.Contains(t, calls, "capture_done")
	assert.False(t, env.line.LineTimer().Running())
}

func TestWaitForRing_NoCallerID(t *testing.T) {
	env := newTestEnv(t)
	env.line.Ring()
	env.line.Ring()

	require.NoError(t, WaitForRing(context.Background(), env.Env))
	assert.Equal(t, []string{""}, env.ch.Replies())
}

func TestWaitForRing_SecondRingLate(t *testing.T) {
	env := newTestEnv(t)
	env.line.SetCallerID("100")
	env.line.Ring()
	// второй звонок после RingGracePeriod начинает ожидание заново
	env.line.InjectAfter(400*time.Millisecond, ringEvent)
	env.line.InjectAfter(450*time.Millisecond, ringEvent)

	require.NoError(t, WaitForRing(context.Background(), env.Env))

	assert.Equal(t, []string{"100"}, env.ch.Replies())
	assert.Equal(t, 2, env.line.LineTimer().Starts())

	starts := 0
	for _, c := range env.line.Calls() {
		if c == "capture_start" {
			starts++
		}
	}
	assert.Equal(t, 2, starts)
}

func TestWaitForRing_IgnoresOtherEvents(t *testing.T) {
	env := newTestEnv(t)
	env.line.SetCallerID("42")
	env.line.Press("1")
	env.line.DialTone()
	env.line.Ring()
	env.line.Press("2")
	env.line.Ring()

	require.NoError(t, WaitForRing(context.Background(), env.Env))
	assert.Equal(t, []string{"42"}, env.ch.Replies())
}

func TestWaitForRing_Shutdown(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := WaitForRing(ctx, env.Env)
	assert.ErrorIs(t, err, engine.ErrAborted)
	assert.Equal(t, []string{protocol.ReplyShutdown}, env.ch.Replies())
}

func TestWaitForRing_ShutdownBetweenRings(t *testing.T) {
	env := newTestEnv(t)
	env.Config.RingGracePeriod = 10 * time.Second
	env.line.Ring()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := WaitForRing(ctx, env.Env)
	assert.ErrorIs(t, err, engine.ErrAborted)
	assert.Equal(t, []string{protocol.ReplyShutdown}, env.ch.Replies())
	assert.Contains(t, env.line.Calls(), "capture_done")
}

func TestCIDCapture_StopBeforeStart(t *testing.T) {
	env := newTestEnv(t)

	// остановка сразу после запуска горутины, запись могла еще не начаться
	c := startCIDCapture(env.line, audio.DefaultSampleRate)
	samples, err := c.stop()

	require.NoError(t, err)
	assert.LessOrEqual(t, len(samples), audio.DefaultSampleRate)
	assert.Contains(t, env.line.Calls(), "capture_done")
}
