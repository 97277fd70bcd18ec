package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const HeaderLatency = "X-Latency-Ms"

// maxBodyBytes segue o limite de payload do API Gateway.
const maxBodyBytes = 10 << 20

// NewHTTPHandler expõe o LambdaHandler como servidor HTTP local: cada
// requisição vira um evento do API Gateway, atendido exatamente como na Lambda.
func NewHTTPHandler(h *LambdaHandler) http.Handler {
	router := mux.NewRouter()
	router.Use(latencyMiddleware)
	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		event, err := toProxyRequest(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, `{"Message":"Request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, `{"Message":"Invalid request body"}`, http.StatusBadRequest)
			return
		}

		resp, _ := h.Handle(r.Context(), event)
		writeProxyResponse(w, resp)
	})
	return router
}

// StartHTTPServer sobe o servidor local e encerra com graceful shutdown
// quando o contexto é cancelado.
func StartHTTPServer(ctx context.Context, port int, h *LambdaHandler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewHTTPHandler(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Servidor HTTP ouvindo em %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Encerrando servidor HTTP")
		return srv.Shutdown(shutdownCtx)
	}
}

func toProxyRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}
	defer r.Body.Close()

	event := events.APIGatewayProxyRequest{
		HTTPMethod: r.Method,
		Path:       r.URL.Path,
		Headers:    make(map[string]string, len(r.Header)),
	}
	for k, v := range r.Header {
		if len(v) > 0 {
			event.Headers[k] = v[0]
		}
	}

	query := r.URL.Query()
	if len(query) > 0 {
		event.QueryStringParameters = make(map[string]string, len(query))
		event.MultiValueQueryStringParameters = make(map[string][]string, len(query))
		for k, v := range query {
			event.QueryStringParameters[k] = v[0]
			event.MultiValueQueryStringParameters[k] = v
		}
	}

	if utf8.Valid(body) {
		event.Body = string(body)
	} else {
		event.Body = base64.StdEncoding.EncodeToString(body)
		event.IsBase64Encoded = true
	}
	return event, nil
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp.Body)
}

type responseWriterWrapper struct {
	http.ResponseWriter
	startTime   time.Time
	wroteHeader bool
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.Header().Set(HeaderLatency, strconv.FormatInt(time.Since(rw.startTime).Milliseconds(), 10))
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

func (rw *responseWriterWrapper) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func latencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&responseWriterWrapper{ResponseWriter: w, startTime: time.Now()}, r)
	})
}
