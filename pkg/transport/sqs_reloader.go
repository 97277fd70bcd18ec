package transport

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SQSClient define a interface necessária para o reloader (permite Mocking)
type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Reloader recarrega a configuração do serviço.
type Reloader interface {
	Reload(ctx context.Context) error
}

// SQSReloader gerencia o loop de verificação do SQS
type SQSReloader struct {
	client   SQSClient
	queueURL string
	wait     int32
	retry    time.Duration // intervalo após erro de leitura da fila
	reloader Reloader
	logger   zerolog.Logger
}

// NewSQSReloader cria uma nova instância do reloader. waitSeconds é o
// long polling do ReceiveMessage (0 usa 20s).
func NewSQSReloader(client SQSClient, queueURL string, waitSeconds int32, reloader Reloader) *SQSReloader {
	if waitSeconds <= 0 {
		waitSeconds = 20
	}
	return &SQSReloader{
		client:   client,
		queueURL: queueURL,
		wait:     waitSeconds,
		retry:    5 * time.Second,
		reloader: reloader,
		logger:   log.With().Str("component", "sqs_reloader").Logger(),
	}
}

// Start inicia o monitoramento (bloqueante)
func (s *SQSReloader) Start(ctx context.Context) {
	if s.queueURL == "" {
		s.logger.Warn().Msg("URL da fila SQS não configurada. Hot Reload desativado.")
		return
	}

	s.logger.Info().Str("queue", s.queueURL).Msg("Monitorando fila SQS para Hot Reload")

	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("Parando monitoramento SQS")
			return
		}

		out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(s.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     s.wait,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msgf("Erro no SQS. Retentando em %s...", s.retry)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retry):
			}
			continue
		}
		if len(out.Messages) == 0 {
			continue
		}

		// Várias notificações no mesmo lote resultam em um único reload.
		s.logger.Info().Int("messages", len(out.Messages)).Msg("Evento de alteração recebido via SQS")
		if err := s.reloader.Reload(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Falha no Reload; configuração anterior mantida")
		} else {
			s.logger.Info().Msg("Hot Reload aplicado")
		}

		for _, m := range out.Messages {
			if _, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(s.queueURL),
				ReceiptHandle: m.ReceiptHandle,
			}); err != nil {
				s.logger.Warn().Err(err).Msg("Falha ao remover mensagem da fila")
			}
		}
	}
}
