package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/raywall/fast-ledger-service/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// safeBuffer permite ler o log escrito por outras goroutines.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHTTPHandler_AdaptsRequest(t *testing.T) {
	var got events.APIGatewayProxyRequest
	next := handlerFunc(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		got = req
		return events.APIGatewayProxyResponse{
			StatusCode: 201,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"ok":true}`,
		}, nil
	})
	srv := httptest.NewServer(NewHTTPHandler(NewLambdaHandler(next, config.ServiceDetails{Timeout: "1s"})))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPatch, srv.URL+"/loan?userId=U1&tag=a&tag=b", strings.NewReader(`{"loanId":"L1"}`))
	require.NoError(t, err)
	req.Header.Set("X-Correlation-Id", "http-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, 201, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, "http-1", resp.Header.Get(HeaderCorrelationID))
	assert.NotEmpty(t, resp.Header.Get(HeaderLatency))

	assert.Equal(t, "PATCH", got.HTTPMethod)
	assert.Equal(t, "/loan", got.Path)
	assert.Equal(t, "U1", got.QueryStringParameters["userId"])
	assert.Equal(t, []string{"a", "b"}, got.MultiValueQueryStringParameters["tag"])
	assert.Equal(t, `{"loanId":"L1"}`, got.Body)
	assert.False(t, got.IsBase64Encoded)
}

func TestHTTPHandler_BinaryBodyIsBase64(t *testing.T) {
	var got events.APIGatewayProxyRequest
	next := handlerFunc(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		got = req
		return events.APIGatewayProxyResponse{StatusCode: 200}, nil
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/asset", bytes.NewReader([]byte{0xff, 0xfe}))

	NewHTTPHandler(NewLambdaHandler(next, config.ServiceDetails{})).ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.True(t, got.IsBase64Encoded)
	assert.Equal(t, "//4=", got.Body)
}

func TestHTTPHandler_BodyTooLarge(t *testing.T) {
	called := false
	next := handlerFunc(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		called = true
		return events.APIGatewayProxyResponse{StatusCode: 200}, nil
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/asset", strings.NewReader(strings.Repeat("a", maxBodyBytes+1)))

	NewHTTPHandler(NewLambdaHandler(next, config.ServiceDetails{})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "Request body too large")
	assert.False(t, called)
}

func TestStartHTTPServer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- StartHTTPServer(ctx, 0, NewLambdaHandler(okHandler(`{}`), config.ServiceDetails{}))
	}()

	cancel()
	assert.NoError(t, <-done)
}
