package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/arzzra/ctserver/pkg/hardware"
)

// Timer таймер линии. Срабатывание кладет EventTimerExpired в очередь линии.
type Timer struct {
	line *Line

	mu      sync.Mutex
	period  time.Duration
	t       *time.Timer
	running bool
	starts  int
	stops   int
}

func (t *Timer) SetPeriod(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = d
	return nil
}

func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.period <= 0 {
		return errors.New("sim: timer period is zero")
	}
	if t.t != nil {
		t.t.Stop()
	}
	t.starts++
	t.running = true
	t.t = time.AfterFunc(t.period, t.fire)
	return nil
}

func (t *Timer) fire() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	t.line.mu.Lock()
	defer t.line.mu.Unlock()
	t.line.queueLocked(hardware.EventTimerExpired, 0)
}

// Stop останавливает таймер и убирает из очереди линии срабатывание,
// которое еще не было прочитано
func (t *Timer) Stop() error {
	t.halt()
	t.line.mu.Lock()
	defer t.line.mu.Unlock()
	t.line.dropLocked(hardware.EventTimerExpired)
	return nil
}

func (t *Timer) halt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	t.stops++
	t.running = false
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

// Running сообщает, запущен ли таймер
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Period возвращает текущий период
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// Starts возвращает количество запусков таймера
func (t *Timer) Starts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts
}
