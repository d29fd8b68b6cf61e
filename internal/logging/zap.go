package logging

import "go.uber.org/zap"

// Zap adapts a *zap.SugaredLogger to Logger.
type Zap struct {
	s *zap.SugaredLogger
}

// NewZap wraps l for use as the store's Logger.
func NewZap(l *zap.Logger) Zap {
	return Zap{s: l.Sugar()}
}

func (z Zap) Debug(msg string, args ...any) { z.s.Debugw(msg, args...) }
func (z Zap) Info(msg string, args ...any)  { z.s.Infow(msg, args...) }
func (z Zap) Warn(msg string, args ...any)  { z.s.Warnw(msg, args...) }
func (z Zap) Error(msg string, args ...any) { z.s.Errorw(msg, args...) }
