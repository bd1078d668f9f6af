package hardware

import "fmt"

// EventKind тип аппаратного события линии
type EventKind int

const (
	EventOther EventKind = iota
	// EventRing - звонок (один импульс вызывного сигнала)
	EventRing
	// EventToneDetect - обнаружен тон, Data содержит идентификатор тона
	EventToneDetect
	// EventDTMF - нажата DTMF цифра, Data содержит символ цифры
	EventDTMF
	// EventDigitsComplete - сбор цифр завершен, Data содержит причину
	EventDigitsComplete
	// EventPlayEnd - воспроизведение завершено
	EventPlayEnd
	// EventRecordEnd - запись завершена
	EventRecordEnd
	// EventTimerExpired - таймер линии сработал
	EventTimerExpired
	// EventDialEnd - набор номера завершен
	EventDialEnd
)

var eventKindNames = map[EventKind]string{
	EventOther:          "other",
	EventRing:           "ring",
	EventToneDetect:     "tone_detect",
	EventDTMF:           "dtmf",
	EventDigitsComplete: "digits_complete",
	EventPlayEnd:        "play_end",
	EventRecordEnd:      "record_end",
	EventTimerExpired:   "timer_expired",
	EventDialEnd:        "dial_end",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Идентификаторы тонов для EventToneDetect
const (
	ToneDial = iota + 1
	ToneRingback
	ToneBusy
)

// Причины завершения сбора цифр для EventDigitsComplete
const (
	DigitsCountReached = iota
	DigitsTimeout
	DigitsInterDigitTimeout
	DigitsTerminated
)

// Event аппаратное событие
type Event struct {
	Kind EventKind
	Line int
	Data int
}

// Digit возвращает DTMF символ события
func (e Event) Digit() byte {
	return byte(e.Data)
}

// String форматирует событие для логов
func (e Event) String() string {
	if e.Kind == EventDTMF {
		return fmt.Sprintf("[%02d] %s %q", e.Line, e.Kind, rune(e.Data))
	}
	return fmt.Sprintf("[%02d] %s data=%d", e.Line, e.Kind, e.Data)
}
