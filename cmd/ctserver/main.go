// ctserver - сервер телефонных линий. Каждая линия обслуживается
// отдельным TCP портом (base_port + номер линии), клиент управляет
// линией построчными текстовыми командами.
//
// Использование:
//
//	ctserver [flags]
//	ctserver config [flags]   вывести итоговую конфигурацию
//	ctserver version
package main

import (
	"fmt"
	"os"

	// встроенный программный драйвер линий
	_ "github.com/arzzra/ctserver/pkg/hardware/sim"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Ошибка:", err)
		os.Exit(1)
	}
}
