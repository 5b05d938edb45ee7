// Package logging builds the run logger: structured JSON into the run
// directory, plus a console sink when no live board owns the terminal.
package logging

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New opens runDir/run.log and returns the logger with its close func.
// With interactive set, the console sink is dropped so log lines do not
// fight the board for the terminal.
func New(runDir string, interactive bool) (*zap.Logger, func(), error) {
	logPath := filepath.Join(runDir, "run.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", logPath)
	}

	fileCfg := zap.NewProductionEncoderConfig()
	fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), zap.InfoLevel),
	}

	if !interactive {
		conCfg := zap.NewDevelopmentEncoderConfig()
		conCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cores = append(cores,
			zapcore.NewCore(zapcore.NewConsoleEncoder(conCfg), zapcore.Lock(os.Stderr), zap.InfoLevel))
	}

	log := zap.New(zapcore.NewTee(cores...))
	closeFn := func() {
		_ = log.Sync()
		_ = f.Close()
	}
	return log, closeFn, nil
}
