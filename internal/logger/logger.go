package logger

import (
	"log/slog"
	"os"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Service string
	Debug   bool
}

// Init installs the default slog logger. Debug mode logs human-readable text;
// otherwise a zap JSON core handles output.
func Init(cfg Config) {
	if cfg.Service == "" {
		cfg.Service = "convo-server"
	}

	var h slog.Handler
	if cfg.Debug {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		h = newZapHandler()
	}

	base := slog.New(h).With(slog.String("service", cfg.Service))
	slog.SetDefault(base)
}

func newZapHandler() slog.Handler {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stdout), zapcore.InfoLevel)
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return slogzap.Option{Logger: z}.NewZapHandler()
}
