package whatsapp

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// zapLogger adapts a zap logger to whatsmeow's logging interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger returns a waLog.Logger that writes through l.
func NewLogger(l *zap.Logger) waLog.Logger {
	if l == nil {
		l = zap.L()
	}
	return zapLogger{s: l.Sugar()}
}

func (z zapLogger) Debugf(msg string, args ...any) { z.s.Debugf(msg, args...) }
func (z zapLogger) Infof(msg string, args ...any)  { z.s.Infof(msg, args...) }
func (z zapLogger) Warnf(msg string, args ...any)  { z.s.Warnf(msg, args...) }
func (z zapLogger) Errorf(msg string, args ...any) { z.s.Errorf(msg, args...) }

func (z zapLogger) Sub(module string) waLog.Logger {
	return zapLogger{s: z.s.Named(module)}
}
