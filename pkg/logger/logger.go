package logger

import (
	"log"
	"os"
	"strings"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// Initialize logging flags (called once from main)
func Init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	debugEnabled.Store(strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug"))
}

func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

func Infof(format string, v ...any) {
	log.Printf("[INFO] "+format, v...)
}

func Warnf(format string, v ...any) {
	log.Printf("[WARN] "+format, v...)
}

func Errorf(format string, v ...any) {
	log.Printf("[ERROR] "+format, v...)
}

func Debugf(format string, v ...any) {
	if !debugEnabled.Load() {
		return
	}
	log.Printf("[DEBUG] "+format, v...)
}

func Fatalf(format string, v ...any) {
	log.Fatalf("[FATAL] "+format, v...)
}

// Printf lets the logger stand in wherever a Printf-style logger is expected.
type Printf struct{}

func (Printf) Printf(format string, v ...any) {
	log.Printf("[INFO] "+format, v...)
}
