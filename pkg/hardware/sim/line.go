package sim

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/arzzra/ctserver/pkg/audio"
	"github.com/arzzra/ctserver/pkg/hardware"
)

// Op операция линии, для которой можно задать принудительную ошибку
type Op string

const (
	OpPlay    Op = "play"
	OpRecord  Op = "record"
	OpDial    Op = "dial"
	OpCollect Op = "collect"
	OpHook    Op = "hook"
	OpFlush   Op = "flush"
	OpStop    Op = "stop"
)

// dialChars допустимые символы строки набора
const dialChars = "0123456789*#ABCDabcd,&"

// Config параметры моделирования линии
type Config struct {
	// SampleRate частота дискретизации для записи
	SampleRate int
	// PlayDuration длительность воспроизведения любого файла
	PlayDuration time.Duration
	// DialDigitDuration длительность набора одной цифры
	DialDigitDuration time.Duration
	// CallerID номер, который возвращает DecodeCallerID. Пустой - ошибка декодирования.
	CallerID string
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		SampleRate:        audio.DefaultSampleRate,
		PlayDuration:      2 * time.Second,
		DialDigitDuration: 100 * time.Millisecond,
	}
}

type recordState struct {
	req     hardware.RecordRequest
	writer  *audio.Writer
	started time.Time
	limit   *time.Timer
}

type collectState struct {
	req      hardware.DigitRequest
	digits   []byte
	overall  *time.Timer
	interDig *time.Timer
}

// Line программная модель аппаратной линии
type Line struct {
	mu  sync.Mutex
	id  int
	cfg Config

	closed bool
	hook   hardware.HookState
	events []hardware.Event

	digitBuf  []byte
	collect   *collectState
	collected string

	playing   bool
	playTimer *time.Timer

	rec         *recordState
	lastRecords []int64

	dialTimer *time.Timer

	timer *Timer

	captureStop chan struct{}

	failures map[Op]error
	calls    []string
}

// New создает линию с номером id
func New(id int, cfg Config) *Line {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	l := &Line{
		id:       id,
		cfg:      cfg,
		failures: make(map[Op]error),
	}
	l.timer = &Timer{line: l}
	return l
}

func (l *Line) ID() int { return l.id }

// Fail задает ошибку для операции op. nil снимает ошибку.
func (l *Line) Fail(op Op, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, op)
		return
	}
	l.failures[op] = err
}

// Calls возвращает журнал вызовов линии
func (l *Line) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Hook возвращает текущее состояние трубки
func (l *Line) Hook() hardware.HookState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hook
}

// BufferedDigits возвращает цифры в буфере линии
func (l *Line) BufferedDigits() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return string(l.digitBuf)
}

// RecordedSamples возвращает количество отсчетов, записанных каждой записью
func (l *Line) RecordedSamples() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.lastRecords...)
}

// Pending возвращает количество событий в очереди
func (l *Line) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Inject добавляет событие в очередь линии. DTMF цифры дополнительно
// попадают в буфер цифр или в текущий сбор цифр.
func (l *Line) Inject(ev hardware.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.injectLocked(ev)
}

// InjectAfter добавляет событие через d
func (l *Line) InjectAfter(d time.Duration, ev hardware.Event) {
	time.AfterFunc(d, func() { l.Inject(ev) })
}

// Ring моделирует импульс вызывного сигнала
func (l *Line) Ring() { l.Inject(hardware.Event{Kind: hardware.EventRing}) }

// DialTone моделирует появление тона готовности
func (l *Line) DialTone() {
	l.Inject(hardware.Event{Kind: hardware.EventToneDetect, Data: hardware.ToneDial})
}

// Press моделирует нажатие цифр абонентом
func (l *Line) Press(digits string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < len(digits); i++ {
		l.injectLocked(hardware.Event{Kind: hardware.EventDTMF, Data: int(digits[i])})
	}
}

func (l *Line) injectLocked(ev hardware.Event) {
	if l.closed {
		return
	}
	ev.Line = l.id
	l.events = append(l.events, ev)

	if ev.Kind != hardware.EventDTMF {
		return
	}
	if l.collect == nil {
		l.digitBuf = append(l.digitBuf, ev.Digit())
		return
	}
	l.collect.digits = append(l.collect.digits, ev.Digit())
	l.checkCollectLocked(true)
}

func (l *Line) queueLocked(kind hardware.EventKind, data int) {
	if l.closed {
		return
	}
	l.events = append(l.events, hardware.Event{Kind: kind, Line: l.id, Data: data})
}

// dropLocked удаляет из очереди события вида kind
func (l *Line) dropLocked(kind hardware.EventKind) {
	kept := l.events[:0]
	for _, ev := range l.events {
		if ev.Kind != kind {
			kept = append(kept, ev)
		}
	}
	l.events = kept
}

func (l *Line) failureLocked(op Op) error {
	if err, ok := l.failures[op]; ok {
		return err
	}
	return nil
}

func (l *Line) callLocked(format string, args ...any) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *Line) SetHook(state hardware.HookState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return hardware.ErrLineClosed
	}
	l.callLocked("hook %s", state)
	if err := l.failureLocked(OpHook); err != nil {
		return err
	}
	l.hook = state
	return nil
}

func (l *Line) FlushDigits() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return hardware.ErrLineClosed
	}
	l.callLocked("flush")
	if err := l.failureLocked(OpFlush); err != nil {
		return err
	}
	l.digitBuf = l.digitBuf[:0]
	return nil
}

func (l *Line) StartPlayFile(path string) error {
	return l.startPlay(path, "play_file %s")
}

func (l *Line) StartPlayVox(path string, enc audio.Encoding) error {
	return l.startPlay(path, "play_vox %s "+enc.String())
}

func (l *Line) startPlay(path, call string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return hardware.ErrLineClosed
	}
	l.callLocked(call, path)
	if err := l.failureLocked(OpPlay); err != nil {
		return err
	}
	if l.playing {
		return errors.New("sim: play already in progress")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}

	l.playing = true
	l.playTimer = time.AfterFunc(l.cfg.PlayDuration, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.endPlayLocked()
	})
	return nil
}

func (l *Line) endPlayLocked() {
	if !l.playing {
		return
	}
	l.playing = false
	if l.playTimer != nil {
		l.playTimer.Stop()
	}
	l.queueLocked(hardware.EventPlayEnd, 0)
}

func (l *Line) StopPlay() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callLocked("play_stop")
	if err := l.failureLocked(OpStop); err != nil {
		return err
	}
	l.endPlayLocked()
	return nil
}

func (l *Line) StartRecord(req hardware.RecordRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return hardware.ErrLineClosed
	}
	l.callLocked("record %s", req.Path)
	if err := l.failureLocked(OpRecord); err != nil {
		return err
	}
	if l.rec != nil {
		return errors.New("sim: record already in progress")
	}

	format, err := audio.FormatForPath(req.Path)
	if err != nil {
		format = audio.Format{Container: audio.ContainerRaw, SampleRate: l.cfg.SampleRate}
	}
	format.Encoding = req.Encoding
	format.SampleRate = l.cfg.SampleRate

	w, err := audio.Create(req.Path, format)
	if err != nil {
		return err
	}

	l.rec = &recordState{req: req, writer: w, started: time.Now()}
	if req.MaxDuration > 0 {
		l.rec.limit = time.AfterFunc(req.MaxDuration, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.endRecordLocked()
		})
	}
	return nil
}

// endRecordLocked дописывает тишину за прошедшее время записи и закрывает файл
func (l *Line) endRecordLocked() {
	rec := l.rec
	if rec == nil {
		return
	}
	l.rec = nil
	if rec.limit != nil {
		rec.limit.Stop()
	}

	elapsed := time.Since(rec.started)
	if rec.req.MaxDuration > 0 && elapsed > rec.req.MaxDuration {
		elapsed = rec.req.MaxDuration
	}
	samples := int64(elapsed.Seconds() * float64(l.cfg.SampleRate))
	_, _ = rec.writer.Write(silence(rec.req.Encoding, samples))
	_ = rec.writer.Close()

	l.lastRecords = append(l.lastRecords, samples)
	l.queueLocked(hardware.EventRecordEnd, 0)
}

func (l *Line) StopRecord() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callLocked("record_stop")
	if err := l.failureLocked(OpStop); err != nil {
		return err
	}
	l.endRecordLocked()
	return nil
}

func (l *Line) StartDial(digits string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return hardware.ErrLineClosed
	}
	l.callLocked("dial %s", digits)
	if err := l.failureLocked(OpDial); err != nil {
		return err
	}
	if digits == "" {
		return errors.New("sim: empty dial string")
	}
	for _, c := range digits {
		if !strings.ContainsRune(dialChars, c) {
			return fmt.Errorf("sim: invalid dial character %q", c)
		}
	}

	d := time.Duration(len(digits)) * l.cfg.DialDigitDuration
	l.dialTimer = time.AfterFunc(d, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.queueLocked(hardware.EventDialEnd, 0)
	})
	return nil
}

func (l *Line) StartCollectDigits(req hardware.DigitRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return hardware.ErrLineClosed
	}
	l.callLocked("collect %d", req.Count)
	if err := l.failureLocked(OpCollect); err != nil {
		return err
	}
	if req.Count <= 0 {
		return errors.New("sim: digit count must be positive")
	}

	// цифры, нажатые до начала сбора, берутся из буфера
	c := &collectState{req: req, digits: append([]byte(nil), l.digitBuf...)}
	l.digitBuf = l.digitBuf[:0]
	l.collect = c

	if req.Timeout > 0 {
		c.overall = time.AfterFunc(req.Timeout, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.collect == c {
				l.finishCollectLocked(hardware.DigitsTimeout)
			}
		})
	}
	l.checkCollectLocked(false)
	return nil
}

func (l *Line) checkCollectLocked(digitArrived bool) {
	c := l.collect
	if c == nil {
		return
	}
	if len(c.digits) > 0 && strings.IndexByte(c.req.TermDigits, c.digits[len(c.digits)-1]) >= 0 {
		l.finishCollectLocked(hardware.DigitsTerminated)
		return
	}
	if len(c.digits) >= c.req.Count {
		l.finishCollectLocked(hardware.DigitsCountReached)
		return
	}
	if digitArrived && c.req.InterDigitTimeout > 0 {
		if c.interDig != nil {
			c.interDig.Stop()
		}
		c.interDig = time.AfterFunc(c.req.InterDigitTimeout, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.collect == c {
				l.finishCollectLocked(hardware.DigitsInterDigitTimeout)
			}
		})
	}
}

func (l *Line) finishCollectLocked(reason int) {
	c := l.collect
	l.collect = nil
	if c.overall != nil {
		c.overall.Stop()
	}
	if c.interDig != nil {
		c.interDig.Stop()
	}
	l.collected = string(c.digits)
	l.queueLocked(hardware.EventDigitsComplete, reason)
}

func (l *Line) CollectedDigits() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collected
}

func (l *Line) PollEvent() (hardware.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return hardware.Event{}, false
	}
	ev := l.events[0]
	l.events = l.events[1:]
	return ev, true
}

func (l *Line) Timer() hardware.Timer { return l.timer }

// LineTimer возвращает таймер линии с доступом к состоянию для тестов
func (l *Line) LineTimer() *Timer { return l.timer }

// CaptureSamples ждет StopCapture или заполнения буфера в реальном времени
func (l *Line) CaptureSamples(buf []int16) (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, hardware.ErrLineClosed
	}
	if l.captureStop != nil {
		l.mu.Unlock()
		return 0, errors.New("sim: capture already in progress")
	}
	stop := make(chan struct{})
	l.captureStop = stop
	l.callLocked("capture_start")
	rate := l.cfg.SampleRate
	l.mu.Unlock()

	started := time.Now()
	full := time.Duration(len(buf)) * time.Second / time.Duration(rate)
	t := time.NewTimer(full)
	defer t.Stop()

	select {
	case <-stop:
	case <-t.C:
	}

	n := int(time.Since(started).Seconds() * float64(rate))
	if n > len(buf) {
		n = len(buf)
	}

	l.mu.Lock()
	if l.captureStop == stop {
		l.captureStop = nil
	}
	l.callLocked("capture_done")
	l.mu.Unlock()
	return n, nil
}

func (l *Line) StopCapture() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.captureStop != nil {
		close(l.captureStop)
		l.captureStop = nil
	}
	return nil
}

func (l *Line) DecodeCallerID(samples []int16) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.CallerID == "" {
		return "", errors.New("sim: no caller id signal")
	}
	return l.cfg.CallerID, nil
}

// SetCallerID задает номер, который будет декодирован
func (l *Line) SetCallerID(cid string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.CallerID = cid
}

func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.callLocked("close")
	l.endPlayLocked()
	l.endRecordLocked()
	if l.dialTimer != nil {
		l.dialTimer.Stop()
	}
	if l.collect != nil {
		l.finishCollectLocked(hardware.DigitsTerminated)
	}
	l.timer.halt()
	if l.captureStop != nil {
		close(l.captureStop)
		l.captureStop = nil
	}
	l.closed = true
	l.events = nil
	return nil
}

// Closed сообщает, закрыта ли линия
func (l *Line) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func silence(enc audio.Encoding, samples int64) []byte {
	var b byte
	switch enc {
	case audio.EncodingMuLaw:
		b = 0xFF
	case audio.EncodingALaw:
		b = 0xD5
	}
	return bytes.Repeat([]byte{b}, int(samples)*enc.BytesPerSample())
}

func init() {
	hardware.Register("sim", func(index int) (hardware.Line, error) {
		return New(index, DefaultConfig()), nil
	})
}
