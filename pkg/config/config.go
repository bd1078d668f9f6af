// Package config содержит конфигурацию сервера управления линиями.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/arzzra/ctserver/pkg/commands"
	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/protocol"
)

// Config конфигурация сервера. Может быть загружена из YAML файла,
// флаги командной строки переопределяют значения файла.
type Config struct {
	// Линии и сеть
	Lines      int    `yaml:"lines"`       // Количество линий (по одному обработчику на линию)
	ListenHost string `yaml:"listen_host"` // Адрес для входящих соединений
	BasePort   int    `yaml:"base_port"`   // Порт линии i = BasePort + i
	Hardware   string `yaml:"hardware"`    // Имя драйвера оборудования

	// Ожидание событий
	PollInterval    time.Duration `yaml:"poll_interval"`     // Пауза между опросами очереди событий
	RingGracePeriod time.Duration `yaml:"ring_grace_period"` // Ожидание второго звонка
	CIDSamples      int           `yaml:"cid_samples"`       // Буфер записи caller-ID в отсчетах
	TrimSamples     int64         `yaml:"trim_samples"`      // Отрезается с конца записи

	// Протокол
	MaxLineLength   int           `yaml:"max_line_length"`  // Максимальная длина строки команды
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Ожидание завершения обработчиков

	// Процесс
	MetricsAddr string `yaml:"metrics_addr"` // Адрес /metrics, пустой - метрики не публикуются
	LogLevel    string `yaml:"log_level"`    // "debug", "info", "warn", "error"
	LogFormat   string `yaml:"log_format"`   // "text" или "json"
	PIDFile     string `yaml:"pid_file"`     // Файл с pid процесса, пустой - не создается
}

// Значения по умолчанию
const (
	DefaultLines       = 4
	DefaultBasePort    = 1200
	DefaultListenHost  = "0.0.0.0"
	DefaultHardware    = "sim"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultShutdownTTL = 5 * time.Second
)

// DefaultConfig возвращает конфигурацию по умолчанию:
//   - 4 линии на портах 1200-1203
//   - опрос событий каждые 100ms
//   - 6 секунд на второй звонок, 4 секунды записи caller-ID
//   - 2000 отсчетов обрезки записи
func DefaultConfig() *Config {
	cmd := commands.DefaultConfig()
	return &Config{
		Lines:      DefaultLines,
		ListenHost: DefaultListenHost,
		BasePort:   DefaultBasePort,
		Hardware:   DefaultHardware,

		PollInterval:    engine.DefaultPollInterval,
		RingGracePeriod: cmd.RingGracePeriod,
		CIDSamples:      cmd.CIDSamples,
		TrimSamples:     cmd.TrimSamples,

		MaxLineLength:   protocol.DefaultMaxLineLength,
		ShutdownTimeout: DefaultShutdownTTL,

		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Load читает конфигурацию из YAML файла поверх DefaultConfig.
// Неизвестные ключи считаются ошибкой.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse разбирает YAML поверх DefaultConfig и проверяет результат
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal возвращает конфигурацию в YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Lines <= 0 {
		return fmt.Errorf("lines должно быть больше 0")
	}
	// base_port 0 - эфемерные порты, выбираются системой
	if c.BasePort < 0 || (c.BasePort > 0 && c.BasePort+c.Lines-1 > 65535) {
		return fmt.Errorf("порты линий %d-%d вне допустимого диапазона", c.BasePort, c.BasePort+c.Lines-1)
	}
	if c.Hardware == "" {
		return fmt.Errorf("hardware не может быть пустым")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval должен быть больше 0")
	}
	if c.RingGracePeriod <= 0 {
		return fmt.Errorf("ring_grace_period должен быть больше 0")
	}
	if c.CIDSamples <= 0 {
		return fmt.Errorf("cid_samples должно быть больше 0")
	}
	if c.TrimSamples < 0 {
		return fmt.Errorf("trim_samples не может быть отрицательным")
	}
	if c.MaxLineLength <= 0 {
		return fmt.Errorf("max_line_length должно быть больше 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout должен быть больше 0")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("неизвестный log_format %q", c.LogFormat)
	}
	return nil
}

// Copy создает копию конфигурации
func (c *Config) Copy() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Commands возвращает параметры обработчиков команд
func (c *Config) Commands() commands.Config {
	return commands.Config{
		RingGracePeriod: c.RingGracePeriod,
		CIDSamples:      c.CIDSamples,
		TrimSamples:     c.TrimSamples,
	}
}

// ParseLevel разбирает уровень логирования
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("неизвестный log_level %q", s)
	}
	return level, nil
}

// NewLogger создает логгер по LogLevel и LogFormat
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
