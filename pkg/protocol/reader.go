package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Delimiter разделитель строк протокола
const Delimiter = '\n'

// DefaultMaxLineLength ограничение длины строки команды
const DefaultMaxLineLength = 4096

var (
	// ErrEndOfStream соединение закрыто или чтение завершилось ошибкой.
	// Отличается от успешно прочитанной пустой строки.
	ErrEndOfStream = errors.New("protocol: end of stream")
	// ErrLineTooLong строка длиннее допустимой
	ErrLineTooLong = errors.New("protocol: line too long")
)

// Reader разбивает поток байт сессии на строки. Состояние буфера
// принадлежит одной сессии: байты, пришедшие за концом строки, отдаются
// следующим вызовом ReadLine без нового чтения из сокета.
type Reader struct {
	br     *bufio.Reader
	maxLen int
}

// NewReader создает Reader. maxLen <= 0 - DefaultMaxLineLength.
func NewReader(r io.Reader, maxLen int) *Reader {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	// +1 под разделитель
	size := maxLen + 1
	if size < 16 {
		size = 16
	}
	return &Reader{br: bufio.NewReaderSize(r, size), maxLen: maxLen}
}

// ReadLine возвращает следующую строку без разделителя. Незавершенный
// фрагмент в конце потока отбрасывается.
func (r *Reader) ReadLine() (string, error) {
	line, err := r.br.ReadSlice(Delimiter)
	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrLineTooLong
	case errors.Is(err, io.EOF):
		return "", ErrEndOfStream
	default:
		return "", fmt.Errorf("%w: %w", ErrEndOfStream, err)
	}

	if len(line)-1 > r.maxLen {
		return "", ErrLineTooLong
	}
	return string(line[:len(line)-1]), nil
}
