package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/humanalog/markedfordeath/internal/config"
	"github.com/humanalog/markedfordeath/internal/logging"
	intOtel "github.com/humanalog/markedfordeath/internal/otel"
	"github.com/humanalog/markedfordeath/internal/transfer"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentExtensionVersion string = "0.0.1"
	BuildDate               string = "unknown"

	ExtensionName string = "markedfordeath"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// DBLogger is handed to the storage and metrics layers
	DBLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()

	// markEngine is set once the engine exists so log records can carry the mark.
	markEngine atomic.Pointer[transfer.Engine]

	// closers run in reverse order on exit
	logClosers []io.Closer
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "markedfordeath",
	Short: "Marked For Death game-server extension",
	Long: `Keeps exactly one connected player marked for death. The mark moves to
whoever kills its holder and the holder's coarse grid location is shown to
everyone on an info panel.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the game server and keep the mark",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted mark and recent transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return showMark(cmd.Context(), cmd.OutOrStdout(), limit)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the mark back to the configured default",
	RunE: func(cmd *cobra.Command, args []string) error {
		return resetMark(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "Directory containing "+config.FileName)
	rootCmd.Version = fmt.Sprintf("%s (%s)", CurrentExtensionVersion, BuildDate)

	showCmd.Flags().IntP("limit", "n", 10, "Number of transfers to list")

	rootCmd.AddCommand(runCmd, showCmd, resetCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	teardown()
	if err != nil {
		os.Exit(1)
	}
}

// setup loads config and builds the logging stack. It runs before every subcommand.
func setup() error {
	// Initialize slog manager with console output until the log file exists
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Debug("Loaded config", "file", viper.ConfigFileUsed())
	}

	LogFilePath = logging.LogFilePath(viper.GetString("logsDir"), ExtensionName, SessionStartTime)
	var err error
	LogFile, err = logging.OpenLogFile(LogFilePath)
	if err != nil {
		return err
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentExtensionVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      LogFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, closer, err := logging.NewGELFHandler(gl.Address, SlogManager.Level())
		if err != nil {
			Logger.Error("Failed to set up Graylog output", "error", err, "address", gl.Address)
		} else {
			extra = append(extra, h)
			logClosers = append(logClosers, closer)
		}
	}

	SlogManager.SetContextProvider(func() []slog.Attr {
		e := markEngine.Load()
		if e == nil {
			return nil
		}
		r := e.Snapshot()
		return []slog.Attr{slog.Uint64("markedID", r.MarkedID)}
	})
	SlogManager.Setup(LogFile, viper.GetString("logLevel"), otelLogProvider, extra...)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentExtensionVersion)

	DBLogger = zerolog.New(LogFile).With().Timestamp().Str("component", "storage").Logger().
		Level(zerologLevel(viper.GetString("logLevel")))

	config.Watch(func() {
		level := viper.GetString("logLevel")
		SlogManager.SetLevel(level)
		Logger.Info("Config changed, log level applied", "level", level)
	})

	return nil
}

func zerologLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func teardown() {
	if Logger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Error("Failed to shut down OTel provider", "error", err)
		}
	}
	for i := len(logClosers) - 1; i >= 0; i-- {
		_ = logClosers[i].Close()
	}
	logClosers = nil
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

// dataDir resolves relative data paths against the config directory.
func dataDir(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}
