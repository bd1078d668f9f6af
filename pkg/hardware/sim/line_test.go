package sim

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/ctserver/pkg/audio"
	"github.com/arzzra/ctserver/pkg/hardware"
)

func newTestLine() *Line {
	cfg := DefaultConfig()
	cfg.PlayDuration = 20 * time.Millisecond
	cfg.DialDigitDuration = 5 * time.Millisecond
	return New(3, cfg)
}

func nextEvent(t *testing.T, l *Line) hardware.Event {
	t.Helper()
	var ev hardware.Event
	require.Eventually(t, func() bool {
		var ok bool
		ev, ok = l.PollEvent()
		return ok
	}, 3*time.Second, time.Millisecond)
	return ev
}

func TestLine_Registered(t *testing.T) {
	assert.Contains(t, hardware.Drivers(), "sim")

	line, err := hardware.Open("sim", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, line.ID())
	require.NoError(t, line.Close())
}

func TestLine_Hook(t *testing.T) {
	l := newTestLine()
	require.NoError(t, l.SetHook(hardware.OffHook))
	assert.Equal(t, hardware.OffHook, l.Hook())

	l.Fail(OpHook, errors.New("relay stuck"))
	assert.Error(t, l.SetHook(hardware.OnHook))
	assert.Equal(t, hardware.OffHook, l.Hook())

	l.Fail(OpHook, nil)
	require.NoError(t, l.SetHook(hardware.OnHook))
	assert.Equal(t, []string{"hook off-hook", "hook on-hook", "hook on-hook"}, l.Calls())
}

func TestLine_DigitsBuffered(t *testing.T) {
	l := newTestLine()
	l.Press("12#")

	assert.Equal(t, "12#", l.BufferedDigits())
	assert.Equal(t, 3, l.Pending())

	ev := nextEvent(t, l)
	assert.Equal(t, hardware.EventDTMF, ev.Kind)
	assert.Equal(t, byte('1'), ev.Digit())
	assert.Equal(t, 3, ev.Line)

	require.NoError(t, l.FlushDigits())
	assert.Empty(t, l.BufferedDigits())
}

func TestLine_Play(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.ul")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	l := newTestLine()
	require.NoError(t, l.StartPlayVox(path, audio.EncodingMuLaw))
	assert.Error(t, l.StartPlayFile(path), "воспроизведение уже идет")

	assert.Equal(t, hardware.EventPlayEnd, nextEvent(t, l).Kind)

	assert.Error(t, l.StartPlayFile(filepath.Join(t.TempDir(), "missing.wav")))
}

func TestLine_StopPlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.ul")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cfg := DefaultConfig()
	cfg.PlayDuration = time.Hour
	l := New(0, cfg)
	require.NoError(t, l.StartPlayFile(path))
	require.NoError(t, l.StopPlay())

	ev, ok := l.PollEvent()
	require.True(t, ok)
	assert.Equal(t, hardware.EventPlayEnd, ev.Kind)

	// повторная остановка не дает второго события
	require.NoError(t, l.StopPlay())
	_, ok = l.PollEvent()
	assert.False(t, ok)
}

func TestLine_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.ul")
	l := newTestLine()

	require.NoError(t, l.StartRecord(hardware.RecordRequest{
		Path:        path,
		Encoding:    audio.EncodingMuLaw,
		MaxDuration: 100 * time.Millisecond,
	}))
	assert.Equal(t, hardware.EventRecordEnd, nextEvent(t, l).Kind)

	require.Equal(t, []int64{800}, l.RecordedSamples())
	info, err := audio.NewFileStore().Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(800), info.Samples)
}

func TestLine_Dial(t *testing.T) {
	l := newTestLine()
	require.NoError(t, l.StartDial("555*1#"))
	assert.Equal(t, hardware.EventDialEnd, nextEvent(t, l).Kind)

	assert.Error(t, l.StartDial(""))
	assert.Error(t, l.StartDial("12x"))
}

func TestLine_CollectCount(t *testing.T) {
	l := newTestLine()
	l.Press("12")
	require.NoError(t, l.StartCollectDigits(hardware.DigitRequest{Count: 4}))
	assert.Empty(t, l.BufferedDigits(), "цифры из буфера переходят в сбор")

	l.Press("34")
	var complete hardware.Event
	for {
		ev := nextEvent(t, l)
		if ev.Kind == hardware.EventDigitsComplete {
			complete = ev
			break
		}
	}
	assert.Equal(t, hardware.DigitsCountReached, complete.Data)
	assert.Equal(t, "1234", l.CollectedDigits())
}

func TestLine_CollectTermDigit(t *testing.T) {
	l := newTestLine()
	require.NoError(t, l.StartCollectDigits(hardware.DigitRequest{Count: 10, TermDigits: "#"}))
	l.Press("7#")

	for {
		ev := nextEvent(t, l)
		if ev.Kind == hardware.EventDigitsComplete {
			assert.Equal(t, hardware.DigitsTerminated, ev.Data)
			break
		}
	}
	assert.Equal(t, "7#", l.CollectedDigits())
}

func TestLine_CollectTimeout(t *testing.T) {
	l := newTestLine()
	require.NoError(t, l.StartCollectDigits(hardware.DigitRequest{Count: 3, Timeout: 30 * time.Millisecond}))

	ev := nextEvent(t, l)
	assert.Equal(t, hardware.EventDigitsComplete, ev.Kind)
	assert.Equal(t, hardware.DigitsTimeout, ev.Data)
	assert.Empty(t, l.CollectedDigits())
}

func TestLine_Capture(t *testing.T) {
	l := newTestLine()
	buf := make([]int16, audio.DefaultSampleRate)

	done := make(chan int, 1)
	go func() {
		n, err := l.CaptureSamples(buf)
		assert.NoError(t, err)
		done <- n
	}()

	require.Eventually(t, func() bool {
		for _, c := range l.Calls() {
			if c == "capture_start" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, l.StopCapture())

	select {
	case n := <-done:
		assert.Greater(t, n, 0)
		assert.Less(t, n, len(buf))
	case <-time.After(2 * time.Second):
		t.Fatal("CaptureSamples не завершился после StopCapture")
	}
}

func TestLine_DecodeCallerID(t *testing.T) {
	l := newTestLine()
	_, err := l.DecodeCallerID(nil)
	assert.Error(t, err)

	l.SetCallerID("5551234")
	cid, err := l.DecodeCallerID(nil)
	require.NoError(t, err)
	assert.Equal(t, "5551234", cid)
}

func TestLine_Close(t *testing.T) {
	l := newTestLine()
	l.Ring()
	require.NoError(t, l.LineTimer().SetPeriod(time.Hour))
	require.NoError(t, l.LineTimer().Start())

	require.NoError(t, l.Close())
	assert.True(t, l.Closed())
	assert.False(t, l.LineTimer().Running())
	assert.Equal(t, 0, l.Pending())

	assert.ErrorIs(t, l.SetHook(hardware.OffHook), hardware.ErrLineClosed)
	_, err := l.CaptureSamples(make([]int16, 10))
	assert.ErrorIs(t, err, hardware.ErrLineClosed)
	require.NoError(t, l.Close(), "повторное закрытие")
}

func TestTimer(t *testing.T) {
	l := newTestLine()
	timer := l.LineTimer()

	assert.Error(t, timer.Start(), "нулевой период")

	require.NoError(t, timer.SetPeriod(20*time.Millisecond))
	assert.Equal(t, 20*time.Millisecond, timer.Period())
	require.NoError(t, timer.Start())
	assert.True(t, timer.Running())
	assert.Equal(t, 1, timer.Starts())

	assert.Equal(t, hardware.EventTimerExpired, nextEvent(t, l).Kind)
	assert.False(t, timer.Running())

	// Stop убирает непрочитанное срабатывание
	require.NoError(t, timer.Start())
	require.Eventually(t, func() bool { return l.Pending() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, timer.Stop())
	assert.Equal(t, 0, l.Pending())

	// остановленный таймер событие не дает
	require.NoError(t, timer.Start())
	require.NoError(t, timer.Stop())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, l.Pending())
}
