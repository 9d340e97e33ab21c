package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var logFile *os.File

/*
Options configures the process-wide charmbracelet logger. Components log
through the package-level functions of github.com/charmbracelet/log, so this
only has to run once at startup.
*/
type Options struct {
	Level  string
	File   string
	Prefix string
	JSON   bool
}

/*
Init configures the default logger. An empty File keeps logging on stderr,
otherwise output is appended to the given path.
*/
func Init(opts Options) error {
	var out io.Writer = os.Stderr

	if opts.File != "" {
		fh, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}

		logFile = fh
		out = fh
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		ReportCaller:    opts.File != "",
		TimeFormat:      time.StampMicro,
		Prefix:          opts.Prefix,
		Level:           ParseLevel(opts.Level),
	})

	if opts.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}

	log.SetDefault(logger)
	log.Debug("logging initialized", "level", opts.Level, "file", opts.File)

	return nil
}

// ParseLevel maps a config string to a log level, defaulting to info.
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Close closes the log file, if one was opened.
func Close() {
	if logFile != nil {
		log.Debug("closing log file")
		logFile.Close()
		logFile = nil
	}
}
