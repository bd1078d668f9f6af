// Package protocol реализует текстовый протокол управления линией.
//
// Клиент отправляет команду отдельной строкой, затем параметры команды,
// каждый своей строкой. Сервер отвечает одной строкой, за которой следует
// нулевой байт:
//
//	-> play\n
//	-> /var/lib/prompts/welcome.ul\n
//	<- 5\n\x00
//
// Команды принимаются как в коротком виде (play), так и с префиксом
// ct (ctplay).
package protocol
