package logger

import (
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel string

const (
	InfoLevel  LogLevel = "INFO"
	WarnLevel  LogLevel = "WARN"
	ErrorLevel LogLevel = "ERROR"
	DebugLevel LogLevel = "DEBUG"
)

const fieldModule = "module"

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()

	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex  = regexp.MustCompile(`eyJ[^\s]+`)
	userIDRegex = regexp.MustCompile(`\buser_id\s*=\s*[0-9a-fA-F-]+\b`)
)

// Init configures the process-wide writer and level. Loggers created with
// New before Init pick up the new settings.
func Init(level string, pretty bool) {
	SetOutput(writer(pretty), level)
}

// SetOutput replaces the destination of every Logger.
func SetOutput(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	base = zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func writer(pretty bool) io.Writer {
	if pretty {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	return os.Stdout
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Zerolog exposes the underlying logger for components that take a
// zerolog.Logger directly.
func Zerolog() zerolog.Logger {
	return current()
}

// Logger is a centralized structured logger
type Logger struct{}

// New creates a new Logger
func New() *Logger {
	return &Logger{}
}

// Anonymize replaces sensitive information in logs (emails, tokens, IDs)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = userIDRegex.ReplaceAllString(s, "user_id=[USER_ID]")
	return s
}

func (l *Logger) log(module string, level LogLevel, msg string, err error) {
	z := current()
	var ev *zerolog.Event
	switch level {
	case DebugLevel:
		ev = z.Debug()
	case WarnLevel:
		ev = z.Warn()
	case ErrorLevel:
		ev = z.Error()
	default:
		ev = z.Info()
	}
	if module != "" {
		ev = ev.Str(fieldModule, module)
	}
	if err != nil {
		ev = ev.Str(zerolog.ErrorFieldName, Anonymize(err.Error()))
	}
	ev.Msg(Anonymize(msg))
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string) {
	l.log(module, InfoLevel, msg, nil)
}

func (l *Logger) Debug(module, msg string) {
	l.log(module, DebugLevel, msg, nil)
}

func (l *Logger) Warn(module, msg string, err error) {
	l.log(module, WarnLevel, msg, err)
}

func (l *Logger) Error(module, msg string, err error) {
	l.log(module, ErrorLevel, msg, err)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
