package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arzzra/ctserver/pkg/config"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/server"
)

// version задается при сборке через -ldflags "-X main.version=..."
var version = "dev"

// options значения флагов командной строки
type options struct {
	configPath  string
	lines       int
	basePort    int
	listenHost  string
	hardware    string
	logLevel    string
	logFormat   string
	metricsAddr string
	pidFile     string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ctserver",
		Short: "Сервер телефонных линий с текстовым протоколом управления",
		Long: `ctserver открывает по одному TCP порту на каждую телефонную линию
(base_port + номер линии) и выполняет команды клиента: waitforring, answer,
hangup, play, record, sleep, collect, dial, clear, waitfordial.

Команды принимаются и в старой форме с префиксом ct (ctplay, ctrecord, ...).
Завершение по SIGTERM или SIGINT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, cmd.Flags())
			if err != nil {
				return err
			}
			logger := cfg.NewLogger(os.Stderr)
			slog.SetDefault(logger)
			return run(cmd.Context(), cfg, logger, true)
		},
	}
	bindFlags(root.PersistentFlags(), opts)

	root.AddCommand(newConfigCmd(opts), newVersionCmd())
	return root
}

func bindFlags(fs *pflag.FlagSet, opts *options) {
	def := config.DefaultConfig()
	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML файл конфигурации")
	fs.IntVarP(&opts.lines, "lines", "n", def.Lines, "количество линий")
	fs.IntVar(&opts.basePort, "base-port", def.BasePort, "порт линии 0, линия i слушает base-port+i")
	fs.StringVar(&opts.listenHost, "listen-host", def.ListenHost, "адрес для входящих соединений")
	fs.StringVar(&opts.hardware, "hardware", def.Hardware, "драйвер линий ("+strings.Join(hardware.Drivers(), ", ")+")")
	fs.StringVar(&opts.logLevel, "log-level", def.LogLevel, "уровень логирования: debug, info, warn, error")
	fs.StringVar(&opts.logFormat, "log-format", def.LogFormat, "формат логов: text или json")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", def.MetricsAddr, "адрес /metrics, пустой - не публиковать")
	fs.StringVar(&opts.pidFile, "pid-file", def.PIDFile, "pid файл процесса")
}

// loadConfig читает файл конфигурации и применяет явно заданные флаги
func loadConfig(opts *options, fs *pflag.FlagSet) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyFlags(cfg, opts, fs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}
	return cfg, nil
}

// applyFlags переносит в cfg только флаги, заданные в командной строке
func applyFlags(cfg *config.Config, opts *options, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "lines":
			cfg.Lines = opts.lines
		case "base-port":
			cfg.BasePort = opts.basePort
		case "listen-host":
			cfg.ListenHost = opts.listenHost
		case "hardware":
			cfg.Hardware = opts.hardware
		case "log-level":
			cfg.LogLevel = opts.logLevel
		case "log-format":
			cfg.LogFormat = opts.logFormat
		case "metrics-addr":
			cfg.MetricsAddr = opts.metricsAddr
		case "pid-file":
			cfg.PIDFile = opts.pidFile
		}
	})
}

// run открывает линии и обслуживает их до сигнала завершения или отмены ctx
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, watchSignals bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("Запуск ctserver",
		slog.String("version", version),
		slog.Int("lines", cfg.Lines),
		slog.String("hardware", cfg.Hardware),
		slog.String("listen", fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.BasePort)))

	if cfg.PIDFile != "" {
		if err := server.WritePIDFile(cfg.PIDFile); err != nil {
			return err
		}
	}

	lines, err := server.OpenLines(cfg.Hardware, cfg.Lines)
	if err != nil {
		if cfg.PIDFile != "" {
			_ = server.RemovePIDFile(cfg.PIDFile)
		}
		return err
	}

	coord := server.NewCoordinator(ctx, server.CoordinatorConfig{
		ShutdownTimeout: cfg.ShutdownTimeout,
		PIDFile:         cfg.PIDFile,
		Logger:          logger,
	})
	if watchSignals {
		coord.WatchSignals()
	}
	stop := context.AfterFunc(ctx, func() { coord.Shutdown("context canceled") })
	defer stop()

	metrics := server.NewMetrics()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := server.ServeMetrics(coord.Context(), cfg.MetricsAddr, metrics, logger); err != nil {
				logger.Error("Сервер метрик остановлен", slog.String("error", err.Error()))
			}
		}()
	}

	manager, err := server.NewManager(cfg, lines, coord, metrics, logger)
	if err != nil {
		coord.Shutdown("startup failed")
		return err
	}

	runErr := manager.Run(coord.Context())
	coord.Shutdown("workers finished")
	if runErr != nil {
		logger.Error("Линии остановлены с ошибками", slog.String("error", runErr.Error()))
	}
	return runErr
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Вывести итоговую конфигурацию в YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, cmd.Flags())
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "ctserver %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
