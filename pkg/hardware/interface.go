package hardware

import (
	"errors"
	"time"

	"github.com/arzzra/ctserver/pkg/audio"
)

// HookState состояние трубки
type HookState int

const (
	OnHook HookState = iota
	OffHook
)

func (h HookState) String() string {
	if h == OffHook {
		return "off-hook"
	}
	return "on-hook"
}

// ErrLineClosed возвращается при обращении к закрытой линии
var ErrLineClosed = errors.New("hardware: line closed")

// DigitRequest параметры сбора цифр
type DigitRequest struct {
	// Count количество цифр
	Count int
	// Timeout общий таймаут сбора, 0 - без таймаута
	Timeout time.Duration
	// InterDigitTimeout таймаут между цифрами, 0 - без таймаута
	InterDigitTimeout time.Duration
	// TermDigits цифры, завершающие сбор досрочно
	TermDigits string
}

// RecordRequest параметры записи
type RecordRequest struct {
	Path     string
	Encoding audio.Encoding
	// MaxDuration ограничение длительности, 0 - без ограничения
	MaxDuration time.Duration
}

// Timer таймер линии. Срабатывание таймера приходит событием EventTimerExpired.
type Timer interface {
	SetPeriod(d time.Duration) error
	Start() error
	// Stop останавливает таймер. Драйвер по возможности убирает из очереди
	// срабатывание, которое еще не было прочитано.
	Stop() error
}

// Line аппаратная линия. Все методы, кроме CaptureSamples и StopCapture,
// вызываются только из горутины-владельца линии.
// Операции Start* асинхронные: завершение приходит событием.
type Line interface {
	// ID номер линии
	ID() int

	SetHook(state HookState) error
	// FlushDigits очищает буфер принятых цифр
	FlushDigits() error

	// StartPlayFile запускает воспроизведение файла с заголовком
	StartPlayFile(path string) error
	// StartPlayVox запускает воспроизведение raw файла в кодировании enc
	StartPlayVox(path string, enc audio.Encoding) error
	StopPlay() error

	StartRecord(req RecordRequest) error
	StopRecord() error

	StartDial(digits string) error

	StartCollectDigits(req DigitRequest) error
	// CollectedDigits возвращает цифры, собранные к моменту EventDigitsComplete
	CollectedDigits() string

	// PollEvent неблокирующее получение следующего события
	PollEvent() (Event, bool)

	// Timer таймер линии
	Timer() Timer

	// CaptureSamples блокирующе записывает линейные отсчеты в buf до заполнения
	// буфера или до StopCapture. Возвращает количество записанных отсчетов.
	CaptureSamples(buf []int16) (int, error)
	// StopCapture прерывает CaptureSamples
	StopCapture() error

	// DecodeCallerID декодирует номер из записанных отсчетов
	DecodeCallerID(samples []int16) (string, error)

	Close() error
}
