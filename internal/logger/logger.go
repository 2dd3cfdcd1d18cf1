// Package logger provides structured logging for the math-text editor.
// Entries go to a rotating log file and optionally to stderr; packages that
// serve many instances (math fields, HTTP requests) log through a scoped logger
// carrying fixed fields.
//
// Field values are written as key=value. Values holding spaces, quotes or
// newlines are quoted with only " and newlines escaped, so LaTeX backslashes
// read as typed. Long values are cut to MaxValueLen runes.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Level represents the severity level of a log message
type Level int

const (
	// LevelDebug is for detailed debugging information
	LevelDebug Level = iota
	// LevelInfo is for general informational messages
	LevelInfo
	// LevelWarn is for warning messages
	LevelWarn
	// LevelError is for error messages
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// String returns the string representation of the log level
func (l Level) String() string {
	if l < LevelDebug || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a configuration string to a Level. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// MaxValueLen is the number of runes of a field value written before it is cut.
const MaxValueLen = 160

// Field is one key=value pair of an entry
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger defines the logging interface
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	// Error logs err and the caller location.
	Error(msg string, err error, fields ...Field)
	SetLevel(level Level)
	Close() error
}

// Config holds the configuration for the logger
type Config struct {
	// LogFilePath is the path to the log file
	LogFilePath string
	// MaxFileSize is the size in bytes that triggers rotation
	MaxFileSize int64
	// MaxBackups is the number of rotated files kept as .1 ... .N
	MaxBackups int
	// Level is the minimum log level to output
	Level Level
	// EnableConsole mirrors entries to stderr. Stdout is left to command output.
	EnableConsole bool
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() *Config {
	return &Config{
		LogFilePath: "latex-mathedit.log",
		MaxFileSize: 10 * 1024 * 1024, // 10 MB
		MaxBackups:  5,
		Level:       LevelInfo,
	}
}

// DefaultLogger writes entries to the log file and, optionally, stderr
type DefaultLogger struct {
	mu       sync.Mutex
	config   Config
	level    Level
	file     *os.File
	fileSize int64
	console  io.Writer
}

// NewDefaultLogger creates a new DefaultLogger with the given configuration
func NewDefaultLogger(config *Config) (*DefaultLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	l := &DefaultLogger{config: *config, level: config.Level}
	if config.EnableConsole {
		l.console = os.Stderr
	}

	if dir := filepath.Dir(config.LogFilePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *DefaultLogger) open() error {
	file, err := os.OpenFile(l.config.LogFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	l.file = file
	l.fileSize = info.Size()
	return nil
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.write(LevelDebug, msg, nil, fields)
}

func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.write(LevelInfo, msg, nil, fields)
}

func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.write(LevelWarn, msg, nil, fields)
}

func (l *DefaultLogger) Error(msg string, err error, fields ...Field) {
	l.write(LevelError, msg, err, fields)
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close closes the log file
func (l *DefaultLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *DefaultLogger) write(level Level, msg string, err error, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	entry := formatEntry(time.Now(), level, msg, err, fields)
	if level == LevelError {
		entry = strings.TrimSuffix(entry, "\n") + " caller=" + callerOutside() + "\n"
	}

	if l.file != nil && l.config.MaxFileSize > 0 && l.fileSize+int64(len(entry)) > l.config.MaxFileSize {
		if rerr := l.rotate(); rerr != nil && l.console != nil {
			fmt.Fprintf(l.console, "log rotation failed: %v\n", rerr)
		}
	}
	if l.file != nil {
		n, _ := io.WriteString(l.file, entry)
		l.fileSize += int64(n)
	}
	if l.console != nil {
		io.WriteString(l.console, entry)
	}
}

// rotate shifts path.N-1 to path.N, ..., path to path.1, dropping the
// oldest, and reopens path.
func (l *DefaultLogger) rotate() error {
	path := l.config.LogFilePath
	l.file.Close()
	l.file = nil

	os.Remove(fmt.Sprintf("%s.%d", path, l.config.MaxBackups))
	for i := l.config.MaxBackups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	if l.config.MaxBackups > 0 {
		os.Rename(path, path+".1")
	} else {
		os.Remove(path)
	}
	return l.open()
}

func formatEntry(now time.Time, level Level, msg string, err error, fields []Field) string {
	var sb strings.Builder
	sb.WriteString(now.Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(level.String())
	sb.WriteString("] ")
	sb.WriteString(msg)
	if err != nil {
		writeField(&sb, "error", err.Error())
	}
	for _, f := range fields {
		writeField(&sb, f.Key, f.Value)
	}
	sb.WriteString("\n")
	return sb.String()
}

func writeField(sb *strings.Builder, key string, value interface{}) {
	sb.WriteByte(' ')
	sb.WriteString(key)
	sb.WriteByte('=')
	sb.WriteString(formatValue(value))
}

var valueEscaper = strings.NewReplacer(`"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func formatValue(value interface{}) string {
	s := fmt.Sprintf("%v", value)
	if n := utf8.RuneCountInString(s); n > MaxValueLen {
		s = string([]rune(s)[:MaxValueLen]) + fmt.Sprintf("…(+%d)", n-MaxValueLen)
	}
	if s == "" || strings.ContainsAny(s, " \"=\n\r\t") {
		return `"` + valueEscaper.Replace(s) + `"`
	}
	return s
}

// callerOutside returns file:line of the first frame outside this package.
func callerOutside() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "internal/logger.") {
			return filepath.Base(frame.File) + ":" + fmt.Sprint(frame.Line)
		}
		if !more {
			return "unknown"
		}
	}
}

// Global logger instance
var (
	globalLogger Logger
	globalMu     sync.RWMutex
)

// Init replaces the global logger with one built from config
func Init(config *Config) error {
	l, err := NewDefaultLogger(config)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		globalLogger.Close()
	}
	globalLogger = l
	return nil
}

// GetLogger returns the global logger, or a no-op logger before Init
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return noopLogger{}
	}
	return globalLogger
}

// Close closes the global logger; later entries are discarded
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		return nil
	}
	err := globalLogger.Close()
	globalLogger = nil
	return err
}

func Debug(msg string, fields ...Field) { GetLogger().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { GetLogger().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { GetLogger().Warn(msg, fields...) }

func Error(msg string, err error, fields ...Field) {
	GetLogger().Error(msg, err, fields...)
}

// scopedLogger prepends fixed fields to every entry.
type scopedLogger struct {
	fields []Field
}

// With returns a Logger that adds fields to every entry written through it.
// It resolves the global logger on each call, so it may be created before
// Init.
func With(fields ...Field) Logger {
	return &scopedLogger{fields: fields}
}

func (s *scopedLogger) merge(fields []Field) []Field {
	out := make([]Field, 0, len(s.fields)+len(fields))
	out = append(out, s.fields...)
	return append(out, fields...)
}

func (s *scopedLogger) Debug(msg string, fields ...Field) { GetLogger().Debug(msg, s.merge(fields)...) }
func (s *scopedLogger) Info(msg string, fields ...Field)  { GetLogger().Info(msg, s.merge(fields)...) }
func (s *scopedLogger) Warn(msg string, fields ...Field)  { GetLogger().Warn(msg, s.merge(fields)...) }
func (s *scopedLogger) Error(msg string, err error, fields ...Field) {
	GetLogger().Error(msg, err, s.merge(fields)...)
}
func (s *scopedLogger) SetLevel(level Level) { GetLogger().SetLevel(level) }

// Close is a no-op; the global logger owns the file.
func (s *scopedLogger) Close() error { return nil }

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field)        {}
func (noopLogger) Info(string, ...Field)         {}
func (noopLogger) Warn(string, ...Field)         {}
func (noopLogger) Error(string, error, ...Field) {}
func (noopLogger) SetLevel(Level)                {}
func (noopLogger) Close() error                  { return nil }
