// Package audio реализует файловое хранилище аудио для команд play/record:
// определение формата (raw vox или WAV), подсчет отсчетов, запись файлов
// и обрезку хвоста записи (Trim).
//
// Поддерживаются только моно файлы 8 kHz в кодировании µ-law, A-law и
// linear16. Кодеки не реализуются: отсчеты копируются как есть.
package audio
