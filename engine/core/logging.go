package core

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var once sync.Once

type logger struct {
	*log.Logger
	file *lumberjack.Logger
}

var singleton *logger

// LogFileConfig describes the optional rotating log file.
type LogFileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func getLogger() *logger {
	once.Do(func() {
		singleton = &logger{Logger: newLogger(os.Stderr)}
		singleton.SetLevel(log.InfoLevel)
	})
	return singleton
}

func newLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "Lumen 🔦 ",
		CallerOffset:    1,
	})
}

// LogConfigure sets the level and, when a file path is given, tees output
// into a rotating file.
func LogConfigure(level string, file LogFileConfig) error {
	l := getLogger()

	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}

	if file.Path != "" {
		if l.file != nil {
			_ = l.file.Close()
		}
		l.file = &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
		}
		l.Logger = newLogger(io.MultiWriter(os.Stderr, l.file))
	}
	l.SetLevel(lvl)
	return nil
}

// LogSetOutput redirects the logger, mostly useful in tests.
func LogSetOutput(w io.Writer) {
	getLogger().SetOutput(w)
}

// LogClose flushes and closes the log file, if any.
func LogClose() error {
	l := getLogger()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
