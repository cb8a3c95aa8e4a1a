// Package logging configures the process-wide zap logger: console plus
// rotating file output, with sensitive-value redaction for endpoint
// credentials that pass through configuration logging.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the application logger.
//
// Development mode uses colored console output at debug level; production
// uses JSON at info level. Both modes additionally write JSON to filePath
// with rotation (100MB, 5 backups, 30 days, compressed).
func New(isDevelopment bool, filePath string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if isDevelopment {
		level = zapcore.DebugLevel
	}

	core := NewMultiCore(level, zapcore.Lock(os.Stdout), NewFileWriter(filePath), isDevelopment)
	return zap.New(core, zap.AddCaller()), nil
}

// NewMultiCore tees log output to a console writer and a file writer. The
// file side always uses JSON encoding; the console side is human-readable in
// development mode and JSON otherwise. Both sides sit behind the
// sensitive-value filter.
func NewMultiCore(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		fileWriter,
		level,
	)

	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	return WithRedaction(zapcore.NewTee(consoleCore, fileCore))
}
