// Package logging builds the crawler's logrus logger: a file under the log
// directory, optionally mirrored to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "02-01-2006 15:04:05"

// New opens (appending) dir/file and returns a logger writing to it. The
// returned closer releases the file.
func New(dir, file string, console bool, level string) (*logrus.Logger, io.Closer, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", level, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, file), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	var out io.Writer = f
	if console {
		out = io.MultiWriter(f, os.Stderr)
	}
	return newLogger(out, lvl), f, nil
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *logrus.Logger {
	return newLogger(io.Discard, logrus.PanicLevel)
}

func newLogger(out io.Writer, lvl logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		DisableColors:   true,
	})
	return l
}
