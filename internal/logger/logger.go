package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DEFAULT_LOG_FILE_MAX_MB = 50
	LOG_FILE_MAX_BACKUPS    = 5
	LOG_FILE_MAX_AGE_DAYS   = 28
)

var (
	// Global logger instance
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Options controls where log output goes in addition to the console.
type Options struct {
	Level     string
	File      string // empty disables the file sink
	FileMaxMB int
}

// Initialize sets up the global logger with appropriate configuration
func Initialize(opts Options) {
	// Set time format to be more human-readable
	zerolog.TimeFieldFormat = time.RFC3339

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	}

	var output io.Writer = consoleWriter
	if opts.File != "" {
		// Console stays human readable, the file gets raw JSON lines for ingestion.
		output = zerolog.MultiLevelWriter(consoleWriter, FileWriter(opts.File, opts.FileMaxMB))
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	// Replace standard log with zerolog
	log.Logger = Logger
}

// ParseLevel maps LOG_LEVEL values onto zerolog levels, defaulting to info.
func ParseLevel(logLevel string) zerolog.Level {
	switch logLevel {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter returns a size-rotated log file writer.
func FileWriter(path string, maxSizeMB int) io.Writer {
	if maxSizeMB <= 0 {
		maxSizeMB = DEFAULT_LOG_FILE_MAX_MB
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: LOG_FILE_MAX_BACKUPS,
		MaxAge:     LOG_FILE_MAX_AGE_DAYS,
		Compress:   true,
	}
}
