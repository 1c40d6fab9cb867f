package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05.000"
	pterm.DefaultLogger.MaxWidth = 1000
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Scope tags messages with a fixed prefix such as a connection id, giving
// lines like "[1a2b3c4d] read: ...". The zero Scope logs untagged.
type Scope string

// global is the untagged scope behind the Log* helpers.
const global Scope = ""

func (s Scope) format(format string, args []interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if s == global {
		return msg
	}
	return "[" + string(s) + "] " + msg
}

// log writes through pterm.DefaultLogger at level. Output goes to stderr.
func (s Scope) log(level pterm.LogLevel, format string, args []interface{}) {
	logger := pterm.DefaultLogger
	msg := s.format(format, args)
	switch level {
	case pterm.LogLevelDebug:
		logger.Debug(msg)
	case pterm.LogLevelWarn:
		logger.Warn(msg)
	case pterm.LogLevelError:
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}

func (s Scope) Debug(format string, args ...interface{}) { s.log(pterm.LogLevelDebug, format, args) }
func (s Scope) Info(format string, args ...interface{})  { s.log(pterm.LogLevelInfo, format, args) }
func (s Scope) Warn(format string, args ...interface{})  { s.log(pterm.LogLevelWarn, format, args) }
func (s Scope) Error(format string, args ...interface{}) { s.log(pterm.LogLevelError, format, args) }

func LogDebug(format string, args ...interface{})   { global.Debug(format, args...) }
func LogInfo(format string, args ...interface{})    { global.Info(format, args...) }
func LogSuccess(format string, args ...interface{}) { global.Info(format, args...) }
func LogWarning(format string, args ...interface{}) { global.Warn(format, args...) }
func LogError(format string, args ...interface{})   { global.Error(format, args...) }
