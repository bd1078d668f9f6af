package hardware

import (
	"fmt"
	"sort"
	"sync"
)

// OpenFunc открывает линию с индексом index (с нуля)
type OpenFunc func(index int) (Line, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]OpenFunc)
)

// Register регистрирует драйвер линий под именем name.
// Повторная регистрация того же имени - ошибка программиста.
func Register(name string, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if open == nil {
		panic("hardware: Register open func is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("hardware: Register called twice for driver " + name)
	}
	drivers[name] = open
}

// Drivers возвращает отсортированный список зарегистрированных драйверов
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open открывает линию index драйвером name
func Open(name string, index int) (Line, error) {
	driversMu.RLock()
	open, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("неизвестный драйвер линий %q (доступны: %v)", name, Drivers())
	}

	line, err := open(index)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть линию %d драйвером %s: %w", index, name, err)
	}
	return line, nil
}
