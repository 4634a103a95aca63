package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger = zap.NewNop()

// SensitiveWords lists substrings of field keys whose values are never
// written verbatim, whatever the caller passes.
var SensitiveWords = []string{"password", "token", "secret", "apikey", "api_key", "authorization", "credential"}

// Init initializes the global Zap logger.
// jsonOutput controls whether logs are formatted as JSON. Output always goes
// to stderr so stdout stays reserved for pipeline logging commands.
func Init(debug bool, jsonOutput bool) error {
	var config zap.Config
	var encoderConfig zapcore.EncoderConfig

	if debug {
		config = zap.NewDevelopmentConfig()
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	} else {
		config = zap.NewProductionConfig()
		encoderConfig = zap.NewProductionEncoderConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		config.DisableCaller = true
	}

	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.LevelKey = "level"
	encoderConfig.NameKey = "logger"
	encoderConfig.MessageKey = "msg"
	encoderConfig.StacktraceKey = "stacktrace"
	if !config.DisableCaller {
		encoderConfig.CallerKey = "caller"
	}
	if jsonOutput {
		// Colour codes make no sense inside JSON.
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		config.Encoding = "json"
	} else {
		config.Encoding = "console"
	}

	config.EncoderConfig = encoderConfig
	config.DisableStacktrace = !debug
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to build zap logger: %w", err)
	}
	Log = built

	Log.Info("Logger initialized",
		zap.Bool("debug_mode", debug),
		zap.Bool("json_output", jsonOutput),
		zap.String("log_level", config.Level.Level().String()),
	)
	return nil
}

// Redacted returns a field that records only whether the value was set and
// how long it is.
func Redacted(key, value string) zap.Field {
	if value == "" {
		return zap.String(key, "")
	}
	return zap.String(key, fmt.Sprintf("***REDACTED*** (%d bytes)", len(value)))
}

// Field picks Redacted for keys that look sensitive and a plain string field
// otherwise.
func Field(key, value string) zap.Field {
	if IsSensitiveKey(key) {
		return Redacted(key, value)
	}
	return zap.String(key, value)
}

// IsSensitiveKey reports whether key contains one of SensitiveWords.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range SensitiveWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// DebugRequested reports whether the pipeline itself runs in diagnostic mode
// (System.Debug=true).
func DebugRequested() bool {
	return strings.EqualFold(os.Getenv("SYSTEM_DEBUG"), "true")
}
