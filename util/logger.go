package util

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(LogLevelInfo))
}

func SetLevel(level LogLevel) {
	currentLevel.Store(int32(level))
}

func Level() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects every leveled log line, mostly for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func enabled(level LogLevel) bool {
	return LogLevel(currentLevel.Load()) <= level
}

func Debug(format string, v ...interface{}) {
	if enabled(LogLevelDebug) {
		log.Printf("[DEBUG] "+format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if enabled(LogLevelInfo) {
		log.Printf("[INFO] "+format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if enabled(LogLevelWarn) {
		log.Printf("[WARN] "+format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if enabled(LogLevelError) {
		log.Printf("[ERROR] "+format, v...)
	}
}

func Fatal(format string, v ...interface{}) {
	log.Printf("[FATAL] "+format, v...)
	os.Exit(1)
}
