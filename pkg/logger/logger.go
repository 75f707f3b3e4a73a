
package logger

import "log"

type Logger struct {
	debug bool
}

func New() *Logger { return &Logger{} }

// WithDebug returns a logger that also prints Debugf output.
func WithDebug(enabled bool) *Logger { return &Logger{debug: enabled} }

func (l *Logger) Infof(format string, args ...any) {
	log.Printf("[INFO] "+format, args...)
}
func (l *Logger) Warnf(format string, args ...any) {
	log.Printf("[WARN] "+format, args...)
}
func (l *Logger) Errorf(format string, args ...any) {
	log.Printf("[ERROR] "+format, args...)
}
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || !l.debug {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}
