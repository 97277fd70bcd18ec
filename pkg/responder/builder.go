package responder

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// CorrelationHeader é o header que devolve ao cliente o id da requisição.
const CorrelationHeader = "X-Correlation-Id"

// Message é o corpo padrão das respostas de erro e de confirmação.
type Message struct {
	Message string `json:"Message"`
}

// ResponseBuilder monta as respostas do API Gateway com os headers padrão
// (JSON e CORS aberto) mais os headers extras configurados.
type ResponseBuilder struct {
	headers map[string]string
}

func NewResponseBuilder(extra map[string]string) *ResponseBuilder {
	h := map[string]string{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": "*",
	}
	for k, v := range extra {
		h[k] = v
	}
	return &ResponseBuilder{headers: h}
}

// WithHeader devolve uma cópia do builder com o header adicionado.
func (rb *ResponseBuilder) WithHeader(name, value string) *ResponseBuilder {
	h := make(map[string]string, len(rb.headers)+1)
	for k, v := range rb.headers {
		h[k] = v
	}
	h[name] = value
	return &ResponseBuilder{headers: h}
}

// Build serializa o corpo. Falha de serialização vira 500 genérico: o
// corpo original nunca é devolvido parcialmente.
func (rb *ResponseBuilder) Build(status int, body any) (events.APIGatewayProxyResponse, error) {
	resp := events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    rb.copyHeaders(),
	}
	if body == nil {
		return resp, nil
	}

	b, err := json.Marshal(body)
	if err != nil {
		resp.StatusCode = http.StatusInternalServerError
		resp.Body = `{"Message":"Internal server error"}`
		return resp, fmt.Errorf("erro json marshal: %w", err)
	}
	resp.Body = string(b)
	return resp, nil
}

// JSON é como Build, mas descarta o erro (já refletido no status 500).
func (rb *ResponseBuilder) JSON(status int, body any) events.APIGatewayProxyResponse {
	resp, _ := rb.Build(status, body)
	return resp
}

// Message responde {"Message": msg}.
func (rb *ResponseBuilder) Message(status int, msg string) events.APIGatewayProxyResponse {
	return rb.JSON(status, Message{Message: msg})
}

func (rb *ResponseBuilder) copyHeaders() map[string]string {
	out := make(map[string]string, len(rb.headers))
	for k, v := range rb.headers {
		out[k] = v
	}
	return out
}
