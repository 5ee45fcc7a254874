package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Kind is the console category of a log line.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
	KindCustom  Kind = "custom"
)

// Setup configures the standard logrus logger.
func Setup(level, format string) {
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.TimeOnly,
		})
	}

	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(log.InfoLevel)
		log.Warnf("Unknown log level %q, using info", level)
	}
}

// Print writes msg at the logrus level matching kind, tagged with the kind.
func Print(entry *log.Entry, kind Kind, format string, args ...interface{}) {
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	e := entry.WithField("kind", string(kind))

	switch kind {
	case KindError:
		e.Errorf(format, args...)
	case KindWarning:
		e.Warnf(format, args...)
	default:
		e.Infof(format, args...)
	}
}

// ErrorLog is an append-only plain-text log of failed remote calls.
type ErrorLog struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// OpenErrorLog opens (or creates) path for appending.
func OpenErrorLog(path string) (*ErrorLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	return &ErrorLog{file: f, now: time.Now}, nil
}

// Append writes one line "[time] [✗] msg account | proxy". Each line is a
// single write on an O_APPEND descriptor so concurrent lines never interleave.
// A nil log silently drops the line.
func (l *ErrorLog) Append(msg, account, proxy string) {
	if l == nil {
		return
	}

	msg = strings.ReplaceAll(msg, "\n", " ")
	line := fmt.Sprintf("[%s] [✗] %s %s | %s\n", l.now().Format(time.TimeOnly), msg, account, proxy)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteString(line); err != nil {
		log.Errorf("Failed to append to error log: %v", err)
	}
}

func (l *ErrorLog) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
