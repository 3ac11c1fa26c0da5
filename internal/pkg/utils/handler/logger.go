package handler

import (
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/rs/zerolog"
	"github.com/vgarvardt/gue/v5/adapter"
)

// GueLogger passes gue logs to the app logger
type GueLogger struct {
	fields []adapter.Field
}

var _ adapter.Logger = (*GueLogger)(nil)

// NewGueLogger creates logger for gue pools
func NewGueLogger() *GueLogger {
	return &GueLogger{}
}

// Debug implements adapter.Logger
func (l *GueLogger) Debug(msg string, fields ...adapter.Field) {
	l.with(goapp.Log.Debug(), fields).Msg(msg)
}

// Info implements adapter.Logger, gue info is too noisy for the app info level
func (l *GueLogger) Info(msg string, fields ...adapter.Field) {
	l.with(goapp.Log.Debug(), fields).Msg(msg)
}

// Error implements adapter.Logger
func (l *GueLogger) Error(msg string, fields ...adapter.Field) {
	l.with(goapp.Log.Error(), fields).Msg(msg)
}

// With implements adapter.Logger
func (l *GueLogger) With(fields ...adapter.Field) adapter.Logger {
	res := make([]adapter.Field, 0, len(l.fields)+len(fields))
	res = append(res, l.fields...)
	return &GueLogger{fields: append(res, fields...)}
}

func (l *GueLogger) with(le *zerolog.Event, fields []adapter.Field) *zerolog.Event {
	for _, f := range l.fields {
		le = le.Interface(f.Key, f.Value)
	}
	for _, f := range fields {
		le = le.Interface(f.Key, f.Value)
	}
	return le
}
