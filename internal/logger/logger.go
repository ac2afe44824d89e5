package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log file names under the log directory, one per level.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	sugar  *zap.SugaredLogger
	logDir string
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileEnc := zapcore.NewJSONEncoder(encCfg)
	consoleEnc := zapcore.NewConsoleEncoder(encCfg)

	exactly := func(lvl zapcore.Level) zap.LevelEnablerFunc {
		return func(l zapcore.Level) bool { return l == lvl }
	}

	cores := make([]zapcore.Core, 0, 5)
	for name, lvl := range map[string]zapcore.Level{
		InfoFile:    zapcore.InfoLevel,
		WarningFile: zapcore.WarnLevel,
		ErrorFile:   zapcore.ErrorLevel,
	} {
		f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", name, err)
		}
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(f), exactly(lvl)))
	}
	cores = append(cores,
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stdout), zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l < zapcore.ErrorLevel
		})),
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(zapcore.ErrorLevel)),
	)

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{sugar: z.Sugar(), logDir: logDir}, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// With returns a child logger carrying structured fields, e.g. the session id.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...), logDir: l.logDir}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Dir is the directory holding the level files; empty for a Nop logger.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	filePath := filepath.Join(l.logDir, filepath.Base(fileName))
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return err
	}
	defer file.Close()

	l.Info("File %s has been cleared.", fileName)
	return nil
}
