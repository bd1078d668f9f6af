package protocol

import (
	"io"
)

// Стандартные ответы
const (
	ReplyOK    = "OK"
	ReplyError = "ERROR"
	// ReplyShutdown ответ waitforring при завершении сервера
	ReplyShutdown = "finito"
)

// Frame оформляет ответ для отправки: строка, перевод строки и
// завершающий нулевой байт. Существующие клиенты читают ответ
// как C строку длиной strlen+1.
func Frame(reply string) []byte {
	b := make([]byte, 0, len(reply)+2)
	b = append(b, reply...)
	b = append(b, Delimiter, 0)
	return b
}

// WriteReply отправляет один ответ целиком
func WriteReply(w io.Writer, reply string) error {
	_, err := w.Write(Frame(reply))
	return err
}
