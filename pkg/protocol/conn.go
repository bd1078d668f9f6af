package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrWriteFailed ответ не удалось отправить
var ErrWriteFailed = errors.New("protocol: write reply failed")

// Conn текстовый канал одной сессии: чтение строк команд и параметров,
// отправка ответов.
type Conn struct {
	r *Reader

	wmu     sync.Mutex
	w       io.Writer
	replies int
}

// NewConn создает канал поверх rw
func NewConn(r io.Reader, w io.Writer, maxLineLength int) *Conn {
	return &Conn{r: NewReader(r, maxLineLength), w: w}
}

// ReadLine читает строку как есть
func (c *Conn) ReadLine() (string, error) {
	return c.r.ReadLine()
}

// ReadParam читает строку параметра команды без завершающего \r
func (c *Conn) ReadParam() (string, error) {
	line, err := c.r.ReadLine()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r"), nil
}

// Reply отправляет ответ
func (c *Conn) Reply(reply string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := WriteReply(c.w, reply); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	c.replies++
	return nil
}

// Replies возвращает количество отправленных ответов
func (c *Conn) Replies() int {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.replies
}
