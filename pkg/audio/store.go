package audio

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Info описание аудио файла в хранилище
type Info struct {
	Path       string
	Format     Format
	Samples    int64
	DataOffset int64

	header []byte
}

// Store хранилище аудио файлов. Для обрезки записи нужны только
// размер файла, копирование N отсчетов и атомарная замена.
type Store interface {
	// Stat возвращает формат и количество отсчетов
	Stat(path string) (Info, error)
	// CopySamples копирует первые samples отсчетов src в новый файл dst
	CopySamples(src Info, dst string, samples int64) error
	// Replace заменяет path файлом tmp
	Replace(tmp, path string) error
	// Remove удаляет файл
	Remove(path string) error
}

// DefaultBlockSamples размер блока копирования в отсчетах
const DefaultBlockSamples = 160

// FileStore реализация Store поверх локальной файловой системы.
// Пути разрешаются относительно рабочего каталога процесса.
type FileStore struct {
	BlockSamples int
}

// NewFileStore создает файловое хранилище
func NewFileStore() *FileStore {
	return &FileStore{BlockSamples: DefaultBlockSamples}
}

// Stat определяет формат файла. Файлы с RIFF заголовком разбираются как WAV
// независимо от расширения, остальные считаются raw с кодированием по расширению
// (µ-law, если расширение неизвестно).
func (s *FileStore) Stat(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, errors.Wrap(err, "open audio file")
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, errors.Wrap(err, "stat audio file")
	}

	var magic [4]byte
	n, _ := io.ReadFull(f, magic[:])
	if n == 4 && bytes.Equal(magic[:], []byte("RIFF")) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return Info{}, errors.Wrap(err, "seek audio file")
		}
		h, err := readWAVHeader(f)
		if err != nil {
			return Info{}, errors.Wrapf(err, "parse %s", path)
		}
		// размер data чанка у недописанных файлов бывает неверным
		dataBytes := st.Size() - h.dataOffset
		if h.dataSize < dataBytes {
			dataBytes = h.dataSize
		}
		return Info{
			Path:       path,
			Format:     h.format,
			Samples:    dataBytes / int64(h.format.Encoding.BytesPerSample()),
			DataOffset: h.dataOffset,
			header:     h.header,
		}, nil
	}

	format, err := FormatForPath(path)
	if err != nil || format.Container == ContainerWAV {
		format = Format{Container: ContainerRaw, Encoding: EncodingMuLaw, SampleRate: DefaultSampleRate}
	}
	return Info{
		Path:    path,
		Format:  format,
		Samples: st.Size() / int64(format.Encoding.BytesPerSample()),
	}, nil
}

// CopySamples копирует заголовок (для WAV - с исправленными размерами)
// и первые samples отсчетов блоками по BlockSamples.
func (s *FileStore) CopySamples(src Info, dst string, samples int64) error {
	if samples < 0 {
		samples = 0
	}
	if samples > src.Samples {
		samples = src.Samples
	}

	in, err := os.Open(src.Path)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "create destination")
	}

	bps := int64(src.Format.Encoding.BytesPerSample())
	dataBytes := samples * bps

	if src.Format.Container == ContainerWAV {
		if _, err := out.Write(patchWAVSizes(src.header, dataBytes)); err != nil {
			out.Close()
			return errors.Wrap(err, "write wav header")
		}
		if _, err := in.Seek(src.DataOffset, io.SeekStart); err != nil {
			out.Close()
			return errors.Wrap(err, "seek source data")
		}
	}

	block := s.BlockSamples
	if block <= 0 {
		block = DefaultBlockSamples
	}
	buf := make([]byte, int64(block)*bps)
	if _, err := io.CopyBuffer(out, io.LimitReader(in, dataBytes), buf); err != nil {
		out.Close()
		return errors.Wrap(err, "copy samples")
	}

	return errors.Wrap(out.Close(), "close destination")
}

// Replace атомарно заменяет path файлом tmp
func (s *FileStore) Replace(tmp, path string) error {
	return errors.Wrap(os.Rename(tmp, path), "rename")
}

// Remove удаляет файл, отсутствие файла ошибкой не считается
func (s *FileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove")
	}
	return nil
}
