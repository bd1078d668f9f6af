// Package commands содержит обработчики команд протокола управления линией.
//
// Каждый обработчик читает свои параметры из канала сессии, выполняет
// операцию на линии и отправляет ровно один ответ. Команды play и record
// построены на конечных автоматах (github.com/looplab/fsm): нажатая
// цифра останавливает операцию, но ответ отправляется только после
// события окончания от оборудования.
//
// Основные команды:
//
//	waitforring              -> номер caller-ID или "finito" при завершении
//	waitfordial              -> пустая строка
//	answer, hangup, clear    -> OK
//	play <файл>              -> OK или нажатая цифра
//	record <файл> <сек> <цифры> -> OK
//	sleep <сек>              -> OK или нажатая цифра
//	collect <n> <сек> <сек>  -> собранные цифры
//	dial <номер>             -> OK
//
// Ошибки оборудования и некорректные параметры дают ответ ERROR, сессия
// при этом продолжается.
package commands
