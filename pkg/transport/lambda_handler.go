package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/raywall/fast-ledger-service/pkg/config"
	"github.com/raywall/fast-ledger-service/pkg/logger"
	"github.com/raywall/fast-ledger-service/pkg/responder"
	"github.com/rs/zerolog/log"
)

// HeaderCorrelationID é lido da requisição e devolvido na resposta.
const HeaderCorrelationID = responder.CorrelationHeader

// EventHandler é quem atende o evento já com contexto de observabilidade
// (o ledger.Handler, normalmente através da Engine).
type EventHandler interface {
	Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
}

// LambdaHandler adapta eventos do API Gateway: correlation id, logger
// contextual, timeout e o log final da requisição.
type LambdaHandler struct {
	next      EventHandler
	timeout   time.Duration
	onTimeout config.ErrorResponse
	resp      *responder.ResponseBuilder
}

// NewLambdaHandler cria uma nova instância do adaptador
func NewLambdaHandler(next EventHandler, service config.ServiceDetails) *LambdaHandler {
	onTimeout := config.ErrorResponse{Code: http.StatusGatewayTimeout, Msg: "Request timed out"}
	if service.OnTimeout != nil {
		onTimeout = *service.OnTimeout
	}
	return &LambdaHandler{
		next:      next,
		timeout:   service.GetTimeout(),
		onTimeout: onTimeout,
		resp:      responder.NewResponseBuilder(nil),
	}
}

// Handle processa a requisição Lambda
func (h *LambdaHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()

	corrID := correlationID(req.Headers)
	ctx = logger.WithCorrelation(ctx, log.Logger, corrID)

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	response, err := h.next.Handle(ctx, req)
	failed := err != nil || response.StatusCode >= http.StatusInternalServerError
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("erro crítico ao processar o evento")
		response = h.resp.Message(http.StatusInternalServerError, "Internal server error")
	}
	// Resposta concluída com sucesso é mantida mesmo após o prazo.
	if failed && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		response = h.resp.Message(h.onTimeout.Code, h.onTimeout.Msg)
	}

	log.Ctx(ctx).Info().
		Str("method", req.HTTPMethod).
		Str("path", req.Path).
		Int("status", response.StatusCode).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("lambda request completed")

	if response.Headers == nil {
		response.Headers = make(map[string]string)
	}
	response.Headers[HeaderCorrelationID] = corrID

	return response, nil
}

// correlationID procura o header sem diferenciar maiúsculas (o API Gateway
// pode normalizar os nomes) e gera um novo id quando ausente.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, HeaderCorrelationID) && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
