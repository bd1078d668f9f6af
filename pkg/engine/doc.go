// Package engine реализует ожидание аппаратных событий линии.
//
// Waiter.WaitFor - единственный способ, которым обработчики команд
// наблюдают линию: опрос очереди событий с короткой паузой, таймаут
// через таймер линии и прерывание по отмене контекста при завершении
// процесса.
//
//	w := engine.NewWaiter(line)
//	ev, res, err := w.WaitFor(ctx, engine.Kind(hardware.EventRing), 6*time.Second)
//	switch res {
//	case engine.Matched:   // ev - второй звонок
//	case engine.TimedOut:  // звонка не было
//	case engine.Aborted:   // процесс завершается
//	}
package engine
