package desktop

import (
	"github.com/wailsapp/wails/v2/pkg/logger"
	"go.uber.org/zap"
)

// zapLogger routes wails runtime logs into zap.
type zapLogger struct {
	log *zap.Logger
}

func newZapLogger(l *zap.Logger) *zapLogger {
	return &zapLogger{log: l.Named("wails")}
}

func (z *zapLogger) Print(message string)   { z.log.Info(message) }
func (z *zapLogger) Trace(message string)   { z.log.Debug(message) }
func (z *zapLogger) Debug(message string)   { z.log.Debug(message) }
func (z *zapLogger) Info(message string)    { z.log.Info(message) }
func (z *zapLogger) Warning(message string) { z.log.Warn(message) }
func (z *zapLogger) Error(message string)   { z.log.Error(message) }

// Fatal is logged at error level; the wails runtime exits on its own.
func (z *zapLogger) Fatal(message string) { z.log.Error(message, zap.Bool("fatal", true)) }

var _ logger.Logger = (*zapLogger)(nil)
