// Package logutil implements various log utilities.
package logutil

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var DefaultLogLevel = "info"

// ConvertToZapLevel converts log level string to zapcore.Level.
func ConvertToZapLevel(lvl string) zapcore.Level {
	switch lvl {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "dpanic":
		return zap.DPanicLevel
	case "panic":
		return zap.PanicLevel
	case "fatal":
		return zap.FatalLevel
	default:
		panic(fmt.Sprintf("unknown level %q", lvl))
	}
}

// GetDefaultZapLoggerConfig returns a new default zap logger configuration.
func GetDefaultZapLoggerConfig() zap.Config {
	return zap.Config{
		Level: zap.NewAtomicLevelAt(ConvertToZapLevel(DefaultLogLevel)),

		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},

		Encoding: "json",

		// copied from "zap.NewProductionEncoderConfig" with some updates
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},

		// Use "/dev/null" to discard all
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// New builds a logger with the given level and output paths.
func New(logLevel string, logOutputs []string) (*zap.Logger, error) {
	lcfg := AddOutputPaths(GetDefaultZapLoggerConfig(), logOutputs, logOutputs)
	lcfg.Level = zap.NewAtomicLevelAt(ConvertToZapLevel(logLevel))
	return lcfg.Build()
}

// AddOutputPaths adds output paths to the existing output paths, resolving conflicts.
func AddOutputPaths(cfg zap.Config, outputPaths, errorOutputPaths []string) zap.Config {
	cfg.OutputPaths = mergePaths(cfg.OutputPaths, outputPaths)
	cfg.ErrorOutputPaths = mergePaths(cfg.ErrorOutputPaths, errorOutputPaths)
	return cfg
}

func mergePaths(curr []string, more []string) []string {
	paths := make(map[string]struct{})
	for _, v := range curr {
		paths[v] = struct{}{}
	}
	for _, v := range more {
		paths[v] = struct{}{}
	}
	if _, ok := paths["/dev/null"]; ok {
		// "/dev/null" to discard all
		return []string{"/dev/null"}
	}
	merged := make([]string, 0, len(paths))
	for k := range paths {
		merged = append(merged, k)
	}
	sort.Strings(merged)
	return merged
}
