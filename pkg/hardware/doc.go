// Package hardware описывает интерфейс телефонной линии, который использует
// сервер: управление трубкой, асинхронные play/record/dial/сбор цифр,
// опрос событий, таймер линии и запись отсчетов для caller-ID.
//
// Драйверы регистрируются через Register и открываются через Open по имени,
// аналогично database/sql. Встроенный драйвер "sim" (пакет hardware/sim)
// моделирует линию программно и используется в тестах и для запуска без платы.
package hardware
