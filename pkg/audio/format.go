package audio

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Encoding кодирование отсчетов в аудио файле
type Encoding int

const (
	// EncodingMuLaw - G.711 µ-law, 1 байт на отсчет
	EncodingMuLaw Encoding = iota
	// EncodingALaw - G.711 A-law, 1 байт на отсчет
	EncodingALaw
	// EncodingLinear16 - 16 bit linear PCM, little endian
	EncodingLinear16
)

// String возвращает строковое представление кодирования
func (e Encoding) String() string {
	switch e {
	case EncodingMuLaw:
		return "mulaw"
	case EncodingALaw:
		return "alaw"
	case EncodingLinear16:
		return "linear16"
	default:
		return "unknown"
	}
}

// BytesPerSample возвращает размер одного отсчета в байтах
func (e Encoding) BytesPerSample() int {
	if e == EncodingLinear16 {
		return 2
	}
	return 1
}

// Container тип контейнера аудио файла
type Container int

const (
	// ContainerRaw - "голые" отсчеты без заголовка (vox файлы)
	ContainerRaw Container = iota
	// ContainerWAV - RIFF/WAVE
	ContainerWAV
)

func (c Container) String() string {
	if c == ContainerWAV {
		return "wav"
	}
	return "raw"
}

// Format описывает формат аудио файла
type Format struct {
	Container  Container
	Encoding   Encoding
	SampleRate int
}

// DefaultSampleRate частота дискретизации телефонной линии
const DefaultSampleRate = 8000

// ErrUnknownFormat возвращается для файлов, формат которых нельзя определить
var ErrUnknownFormat = errors.New("unknown audio format")

// FormatForPath определяет формат по расширению файла.
//
//	.ul .mu        - raw µ-law
//	.al            - raw A-law
//	.sw .raw .pcm  - raw linear16
//	.wav           - WAV, µ-law по умолчанию
//
// Для остальных расширений возвращается ErrUnknownFormat.
func FormatForPath(path string) (Format, error) {
	f := Format{SampleRate: DefaultSampleRate}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ul", ".mu":
		f.Container, f.Encoding = ContainerRaw, EncodingMuLaw
	case ".al":
		f.Container, f.Encoding = ContainerRaw, EncodingALaw
	case ".sw", ".raw", ".pcm":
		f.Container, f.Encoding = ContainerRaw, EncodingLinear16
	case ".wav":
		f.Container, f.Encoding = ContainerWAV, EncodingMuLaw
	default:
		return f, errors.Wrapf(ErrUnknownFormat, "extension of %q", path)
	}

	return f, nil
}

// IsRawVoice сообщает, нужно ли проигрывать файл через raw voice путь
// (файл без заголовка, кодирование задается вызывающей стороной).
func IsRawVoice(path string) (Encoding, bool) {
	f, err := FormatForPath(path)
	if err != nil || f.Container != ContainerRaw {
		return 0, false
	}
	// linear16 без заголовка железо проигрывает через generic путь
	if f.Encoding == EncodingLinear16 {
		return 0, false
	}
	return f.Encoding, true
}
