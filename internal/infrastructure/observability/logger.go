package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// InitLogger builds the process logger and installs it as the default
// context logger, so zerolog.Ctx never falls back to a no-op. format
// "console" writes human-readable lines; anything else writes JSON.
func InitLogger(level, format, service string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}
	if strings.EqualFold(format, "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	zerolog.DefaultContextLogger = &logger
	return logger
}

func parseLogLevel(level string) zerolog.Level {
	level = strings.ToLower(level)
	if level == "warning" {
		return zerolog.WarnLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// WithPayment returns a child logger tagged with the payment token and variant.
func WithPayment(logger zerolog.Logger, token, variant string) zerolog.Logger {
	return logger.With().Str("token", token).Str("variant", variant).Logger()
}
