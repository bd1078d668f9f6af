package server

import (
	"fmt"
	"sync"
)

// PortRange диапазон портов линий
type PortRange struct {
	Min int
	Max int
}

// portManager закрепляет за каждой линией порт base+index и следит,
// чтобы порт не был занят двумя линиями одновременно. Base 0 означает
// эфемерные порты: каждая линия получает порт от ОС.
type portManager struct {
	base      int
	lines     int
	usedPorts map[int]int // порт -> линия
	mutex     sync.RWMutex
}

// newPortManager создает менеджер портов для lines линий начиная с base
func newPortManager(base, lines int) (*portManager, error) {
	if lines <= 0 {
		return nil, fmt.Errorf("некорректное количество линий: %d", lines)
	}
	if base < 0 || (base > 0 && base+lines-1 > 65535) {
		return nil, fmt.Errorf("некорректный диапазон портов: %d-%d", base, base+lines-1)
	}

	return &portManager{
		base:      base,
		lines:     lines,
		usedPorts: make(map[int]int),
	}, nil
}

// Range возвращает диапазон портов линий
func (pm *portManager) Range() PortRange {
	if pm.base == 0 {
		return PortRange{}
	}
	return PortRange{Min: pm.base, Max: pm.base + pm.lines - 1}
}

// AllocatePort закрепляет порт за линией index
func (pm *portManager) AllocatePort(index int) (int, error) {
	if index < 0 || index >= pm.lines {
		return 0, fmt.Errorf("линия %d вне диапазона 0-%d", index, pm.lines-1)
	}
	if pm.base == 0 {
		return 0, nil
	}

	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	port := pm.base + index
	if owner, ok := pm.usedPorts[port]; ok {
		return 0, fmt.Errorf("порт %d уже занят линией %d", port, owner)
	}
	pm.usedPorts[port] = index
	return port, nil
}

// ReleasePort освобождает порт
func (pm *portManager) ReleasePort(port int) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	delete(pm.usedPorts, port)
}
