package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
	errMu sync.Mutex
	errW  io.WriteCloser
	path  string
}

func New(errorsPath string) (*Logger, error) {
	// Clear the log file on startup
	if err := os.Truncate(errorsPath, 0); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	f, err := os.OpenFile(errorsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	// Write errors to both stdout and file
	errWriter := io.MultiWriter(os.Stdout, f)
	l := &Logger{
		info: log.New(os.Stdout, "INFO ", log.LstdFlags|log.Lmicroseconds),
		warn: log.New(os.Stdout, "WARN ", log.LstdFlags|log.Lmicroseconds),
		err:  log.New(errWriter, "ERROR ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		errW: f,
		path: errorsPath,
	}
	return l, nil
}

// NewWriter builds a logger without an errors file. Used by tests and one-shot tools.
func NewWriter(w io.Writer) *Logger {
	return &Logger{
		info: log.New(w, "INFO ", log.LstdFlags),
		warn: log.New(w, "WARN ", log.LstdFlags),
		err:  log.New(w, "ERROR ", log.LstdFlags),
	}
}

// Discard drops everything.
func Discard() *Logger { return NewWriter(io.Discard) }

func (l *Logger) Close() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.errW != nil {
		return l.errW.Close()
	}
	return nil
}

// ErrorsPath returns the file errors are mirrored to, empty when there is none.
func (l *Logger) ErrorsPath() string { return l.path }

func (l *Logger) Infof(format string, args ...any) {
	l.info.Printf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.warn.Printf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	_ = l.err.Output(2, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(err error) {
	if err == nil {
		return
	}
	l.Errorf("%v", err)
}
