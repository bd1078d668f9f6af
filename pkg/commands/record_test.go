package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/ctserver/pkg/audio"
	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/hardware/sim"
	"github.com/arzzra/ctserver/pkg/protocol"
)

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi.Size()
}

func TestRecord_TimeLimitAndTrim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.ul")
	env := newTestEnv(t, path, "1", "#")

	require.NoError(t, Record(context.Background(), env.Env))

	assert.Equal(t, []string{protocol.ReplyOK}, env.ch.Replies())
	require.Equal(t, []int64{audio.DefaultSampleRate}, env.line.RecordedSamples())
	assert.Equal(t, int64(audio.DefaultSampleRate-audio.DefaultTrimSamples), fileSize(t, path))
}

func TestRecord_TerminatedByDigit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.ul")
	env := newTestEnv(t, path, "30", "*#")
	env.Config.TrimSamples = 100
	env.line.InjectAfter(100*time.Millisecond, hardware.Event{Kind: hardware.EventDTMF, Data: '#'})

	start := time.Now()
	require.NoError(t, Record(context.Background(), env.Env))

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, []string{protocol.ReplyOK}, env.ch.Replies())
	assert.Contains(t, env.line.Calls(), "record_stop")

	recorded := env.line.RecordedSamples()
	require.Len(t, recorded, 1)
	assert.Equal(t, max(recorded[0]-100, 0), fileSize(t, path))
}

func TestRecord_NonTerminatingDigitIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.ul")
	env := newTestEnv(t, path, "1", "#")
	env.line.Press("5")

	require.NoError(t, Record(context.Background(), env.Env))

	assert.Equal(t, []string{protocol.ReplyOK}, env.ch.Replies())
	assert.NotContains(t, env.line.Calls(), "record_stop")
}

func TestRecord_ShortRecordingTrimmedToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.ul")
	env := newTestEnv(t, path, "30", "#")
	env.line.Press("#")

	require.NoError(t, Record(context.Background(), env.Env))

	assert.Equal(t, []string{protocol.ReplyOK}, env.ch.Replies())
	assert.Equal(t, int64(0), fileSize(t, path))
}

func TestRecord_WAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.wav")
	env := newTestEnv(t, path, "1", "#")

	require.NoError(t, Record(context.Background(), env.Env))
	assert.Equal(t, []string{protocol.ReplyOK}, env.ch.Replies())

	info, err := audio.NewFileStore().Stat(path)
	require.NoError(t, err)
	assert.Equal(t, audio.ContainerWAV, info.Format.Container)
	assert.Equal(t, int64(audio.DefaultSampleRate-audio.DefaultTrimSamples), info.Samples)
}

func TestRecord_InvalidTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.ul")
	env := newTestEnv(t, path, "long", "#")

	require.NoError(t, Record(context.Background(), env.Env))

	assert.Equal(t, []string{protocol.ReplyError}, env.ch.Replies())
	assert.Empty(t, env.line.RecordedSamples())
	assert.NoFileExists(t, path)
}

func TestRecord_HardwareError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.ul")
	env := newTestEnv(t, path, "5", "#")
	env.line.Fail(sim.OpRecord, errors.New("no channel"))

	require.NoError(t, Record(context.Background(), env.Env))
	assert.Equal(t, []string{protocol.ReplyError}, env.ch.Replies())
}

func TestRecord_Aborted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.ul")
	env := newTestEnv(t, path, "0", "#")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := Record(ctx, env.Env)
	assert.ErrorIs(t, err, engine.ErrAborted)
	assert.Empty(t, env.ch.Replies())
	assert.Contains(t, env.line.Calls(), "record_stop")
}

func TestRecord_AbortedStopFailureLogged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.ul")
	env := newTestEnv(t, path, "0", "#")
	logs := env.captureLog()
	env.line.Fail(sim.OpStop, errors.New("dsp busy"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, Record(ctx, env.Env), engine.ErrAborted)
	assert.Contains(t, logs.String(), "Ошибка остановки записи")
	assert.Contains(t, logs.String(), "dsp busy")
}

func TestRecordEncoding(t *testing.T) {
	assert.Equal(t, audio.EncodingMuLaw, recordEncoding("a.ul"))
	assert.Equal(t, audio.EncodingALaw, recordEncoding("a.al"))
	assert.Equal(t, audio.EncodingLinear16, recordEncoding("a.sw"))
	assert.Equal(t, audio.EncodingMuLaw, recordEncoding("a.wav"))
	assert.Equal(t, audio.EncodingMuLaw, recordEncoding("noext"))
}
