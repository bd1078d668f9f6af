package audio

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Writer пишет отсчеты в raw или WAV файл. Для WAV размеры в заголовке
// исправляются при Close.
type Writer struct {
	f       *os.File
	format  Format
	header  []byte
	written int64
}

// Create создает аудио файл формата format
func Create(path string, format Format) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "create audio file")
	}

	w := &Writer{f: f, format: format}
	if format.Container == ContainerWAV {
		if format.SampleRate == 0 {
			w.format.SampleRate = DefaultSampleRate
		}
		w.header = newWAVHeader(w.format)
		if _, err := f.Write(w.header); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "write wav header")
		}
	}
	return w, nil
}

// Write пишет закодированные отсчеты
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.written += int64(n)
	return n, err
}

// Samples возвращает количество записанных отсчетов
func (w *Writer) Samples() int64 {
	return w.written / int64(w.format.Encoding.BytesPerSample())
}

// Close закрывает файл
func (w *Writer) Close() error {
	if w.format.Container == ContainerWAV {
		if _, err := w.f.Seek(0, io.SeekStart); err != nil {
			w.f.Close()
			return errors.Wrap(err, "seek wav header")
		}
		if _, err := w.f.Write(patchWAVSizes(w.header, w.written)); err != nil {
			w.f.Close()
			return errors.Wrap(err, "patch wav header")
		}
	}
	return errors.Wrap(w.f.Close(), "close audio file")
}
