package clog

import "go.uber.org/zap"

// zapProvider adapts a *zap.SugaredLogger to the LogProvider interface,
// replacing the teacher's raw log.Logger-backed defaultLogger with a
// structured-logging provider grounded on the pack's zap usage
// (caddyserver-caddy, perkeep-perkeep). See SPEC_FULL.md §11.
type zapProvider struct {
	l *zap.SugaredLogger
}

var _ LogProvider = zapProvider{}

func (p zapProvider) Critical(format string, v ...interface{}) { p.l.Errorf("[C] "+format, v...) }
func (p zapProvider) Error(format string, v ...interface{})    { p.l.Errorf(format, v...) }
func (p zapProvider) Warn(format string, v ...interface{})     { p.l.Warnf(format, v...) }
func (p zapProvider) Debug(format string, v ...interface{})    { p.l.Debugf(format, v...) }

// NewZapLogger builds a Clog backed by the given *zap.Logger, named with
// prefix. Logging starts disabled, matching NewLogger's behavior — call
// LogMode(true) to enable output.
func NewZapLogger(z *zap.Logger, prefix string) Clog {
	named := z
	if prefix != "" {
		named = z.Named(prefix)
	}
	return Clog{provider: zapProvider{l: named.Sugar()}}
}
