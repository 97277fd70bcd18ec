package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/raywall/fast-ledger-service/envloader"
	"github.com/raywall/fast-ledger-service/pkg/awsconf"
	"github.com/raywall/fast-ledger-service/pkg/engine"
	"github.com/raywall/fast-ledger-service/pkg/logger"
	"github.com/raywall/fast-ledger-service/pkg/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// bootstrap são as variáveis lidas antes de existir configuração.
type bootstrap struct {
	ConfigPath string `env:"CONFIG_FILE_PATH,required"`
	Region     string `env:"AWS_REGION"`
}

var (
	// Variáveis injetáveis para mocking
	serverStarter = transport.StartHTTPServer
	lambdaStarter = lambda.Start
	newSQSClient  = func(ctx context.Context, region string) (transport.SQSClient, error) {
		cfg, err := awsconf.GetAWSConfig(ctx, region)
		if err != nil {
			return nil, err
		}
		return sqs.NewFromConfig(cfg), nil
	}
	engineDeps engine.Deps
)

func main() {
	var boot bootstrap
	if err := envloader.Load(&boot); err != nil {
		log.Fatal().Err(err).Msg("FATAL: variáveis de ambiente inválidas")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, boot); err != nil {
		log.Fatal().Err(err).Msg("FATAL")
	}
}

// run contém a lógica principal testável
func run(ctx context.Context, boot bootstrap) error {
	// 1. Carrega Configuração e inicializa a Engine (Boot Time)
	loader := engine.NewUniversalLoader(boot.Region)
	eng, err := engine.Load(ctx, loader, boot.ConfigPath, engineDeps)
	if err != nil {
		return err
	}
	defer eng.Close()

	cfg := eng.Config()
	logger.Configure(cfg.Service.Logging, cfg.Service.Name)
	log.Info().
		Str("runtime", cfg.Service.Runtime).
		Int("entities", len(cfg.Entities)).
		Msg("serviço inicializado")

	handler := transport.NewLambdaHandler(eng, cfg.Service)

	// 2. Seleciona Runtime Strategy
	switch cfg.Service.Runtime {
	case "lambda":
		lambdaStarter(handler.Handle)
		return nil
	case "local":
		return runLocal(ctx, eng, handler, boot.Region)
	default:
		return fmt.Errorf("runtime desconhecido: %s", cfg.Service.Runtime)
	}
}

// runLocal sobe o servidor HTTP e, se configurado, o hot reload via SQS.
// O fim do servidor encerra o reloader.
func runLocal(ctx context.Context, eng *engine.Engine, handler *transport.LambdaHandler, region string) error {
	cfg := eng.Config()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return serverStarter(gctx, cfg.Service.Port, handler)
	})

	if reload := cfg.Service.Reload; reload.SQSQueueURL != "" {
		client, err := newSQSClient(ctx, region)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("falha cliente SQS: %w", err)
		}
		reloader := transport.NewSQSReloader(client, reload.SQSQueueURL, reload.WaitSeconds, eng)
		g.Go(func() error {
			reloader.Start(gctx)
			return nil
		})
	}

	return g.Wait()
}
