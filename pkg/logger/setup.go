package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/raywall/fast-ledger-service/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CorrelationField é o nome do campo com o id de correlação da requisição.
const CorrelationField = "correlation_id"

// Configure inicializa o logger global baseando-se na configuração do YAML.
func Configure(cfg config.LoggingConf, service string) zerolog.Logger {
	var output io.Writer = os.Stdout
	if !cfg.Enabled {
		output = io.Discard
	} else if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return ConfigureTo(output, cfg, service)
}

// ConfigureTo é como Configure, mas escreve no writer informado.
func ConfigureTo(w io.Writer, cfg config.LoggingConf, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx := zerolog.New(w).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger
}

// WithCorrelation guarda no contexto um logger filho com o id de correlação.
func WithCorrelation(ctx context.Context, base zerolog.Logger, correlationID string) context.Context {
	l := base.With().Str(CorrelationField, correlationID).Logger()
	return l.WithContext(ctx)
}

// FromContext devolve o logger da requisição (ou o global).
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
