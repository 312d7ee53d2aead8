// Package logflags selects which components emit diagnostic logging.
package logflags

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var (
	debugger bool
	dwarf    bool

	logOut io.Writer = os.Stderr
)

// Fields carries structured context for a component logger.
type Fields map[string]interface{}

// Setup enables logging for the listed components. Recognized names are
// "debugger" and "dwarf"; unknown names are ignored.
func Setup(components []string) {
	for _, c := range components {
		switch c {
		case "debugger":
			debugger = true
		case "dwarf":
			dwarf = true
		}
	}
}

// SetOutput redirects all component loggers. Must be called before the
// first logger is created.
func SetOutput(w io.Writer) {
	logOut = w
}

// Debugger reports whether debugger logging is enabled.
func Debugger() bool { return debugger }

// Dwarf reports whether DWARF parser logging is enabled.
func Dwarf() bool { return dwarf }

func makeLogger(enabled bool, fields Fields) *logrus.Entry {
	logger := logrus.New()
	logger.Formatter = &logrus.TextFormatter{DisableColors: true}
	logger.Out = logOut
	logger.Level = logrus.ErrorLevel
	if enabled {
		logger.Level = logrus.DebugLevel
	}
	return logger.WithFields(logrus.Fields(fields))
}

// DebuggerLogger returns the logger for the process controller.
func DebuggerLogger() *logrus.Entry {
	return makeLogger(debugger, Fields{"layer": "debugger"})
}

// DwarfLogger returns the logger for the DWARF decoder.
func DwarfLogger() *logrus.Entry {
	return makeLogger(dwarf, Fields{"layer": "dwarf"})
}
