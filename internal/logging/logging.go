// Package logging provides the bracket-tagged log.Printf convention used
// throughout the codebase ([SUPERVISOR], [DISPATCHER], [TICK], ...), with
// a level gate driven by the logLevel configuration key. No structured
// logging library is introduced; none appears anywhere in the source
// this repo is grounded on.
package logging

import (
	"log"
	"os"
)

// Level mirrors the logLevel configuration key.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "silent":
		return LevelSilent
	default:
		return LevelInfo
	}
}

// Logger wraps a *log.Logger with a level gate and a fixed component tag.
type Logger struct {
	tag   string
	level Level
	out   *log.Logger
}

// New creates a root logger writing to stderr at the given level.
func New(level Level) *Logger {
	return &Logger{level: level, out: log.New(os.Stderr, "", log.LstdFlags)}
}

// With returns a child logger scoped to a bracketed component tag, e.g.
// log.With("SUPERVISOR").Infof("worker %s spawned", id) prints
// "[SUPERVISOR] worker ... spawned".
func (l *Logger) With(tag string) *Logger {
	return &Logger{tag: tag, level: l.level, out: l.out}
}

func (l *Logger) prefix() string {
	if l.tag == "" {
		return ""
	}
	return "[" + l.tag + "] "
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level <= LevelDebug {
		l.out.Printf(l.prefix()+format, args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level <= LevelInfo {
		l.out.Printf(l.prefix()+format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.level <= LevelWarn {
		l.out.Printf(l.prefix()+"WARN: "+format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.level <= LevelError {
		l.out.Printf(l.prefix()+"ERROR: "+format, args...)
	}
}
