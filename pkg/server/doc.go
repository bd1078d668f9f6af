// Package server запускает обработчики линий и управляет завершением процесса.
//
// Manager создает по одному Worker на линию. Worker владеет линией все
// время работы процесса, слушает порт base_port+index и обслуживает
// клиентов по одному: Session читает команды и передает их обработчикам
// из пакета commands. Coordinator хранит флаг завершения и счетчик
// работающих линий и выполняет очистку один раз по сигналу.
package server
