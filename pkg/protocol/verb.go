package protocol

import "strings"

// Verb команда протокола
type Verb int

const (
	VerbUnknown Verb = iota
	VerbWaitForRing
	VerbWaitForDial
	VerbHangup
	VerbAnswer
	VerbPlay
	VerbRecord
	VerbSleep
	VerbClear
	VerbCollect
	VerbDial
)

var verbNames = map[Verb]string{
	VerbWaitForRing: "waitforring",
	VerbWaitForDial: "waitfordial",
	VerbHangup:      "hangup",
	VerbAnswer:      "answer",
	VerbPlay:        "play",
	VerbRecord:      "record",
	VerbSleep:       "sleep",
	VerbClear:       "clear",
	VerbCollect:     "collect",
	VerbDial:        "dial",
}

// legacyPrefix префикс старых имен команд (ctplay, ctrecord, ...)
const legacyPrefix = "ct"

var verbsByName = func() map[string]Verb {
	m := make(map[string]Verb, 2*len(verbNames))
	for v, name := range verbNames {
		m[name] = v
		m[legacyPrefix+name] = v
	}
	return m
}()

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return "unknown"
}

// Verbs возвращает все известные команды
func Verbs() []Verb {
	return []Verb{
		VerbWaitForRing, VerbWaitForDial, VerbHangup, VerbAnswer, VerbPlay,
		VerbRecord, VerbSleep, VerbClear, VerbCollect, VerbDial,
	}
}

// ParseVerb разбирает строку команды. Регистр и пробелы по краям
// (включая \r от telnet клиентов) не учитываются.
func ParseVerb(line string) Verb {
	if v, ok := verbsByName[strings.ToLower(strings.TrimSpace(line))]; ok {
		return v
	}
	return VerbUnknown
}
