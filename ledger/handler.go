package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/raywall/fast-ledger-service/dyndb"
	"github.com/raywall/fast-ledger-service/patch"
	"github.com/raywall/fast-ledger-service/pkg/metrics"
	"github.com/raywall/fast-ledger-service/pkg/responder"
	"github.com/raywall/fast-ledger-service/pkg/rules"
	"github.com/rs/zerolog/log"
)

type routeKey struct {
	method string
	path   string
}

type route struct {
	svc *Service
	op  Op
}

// Handler roteia os eventos do API Gateway para o serviço da entidade.
// É o único ponto que traduz erros em status HTTP.
type Handler struct {
	routes  map[routeKey]route
	health  map[string]bool
	resp    *responder.ResponseBuilder
	metrics *metrics.Recorder
}

// NewHandler monta a tabela de rotas. Duas entidades não podem responder
// pelo mesmo método e caminho; rotas de health podem ser compartilhadas.
func NewHandler(rec *metrics.Recorder, services ...*Service) (*Handler, error) {
	defs := make([]*Definition, len(services))
	for i, svc := range services {
		defs[i] = svc.Definition()
	}
	if err := CheckRoutes(defs...); err != nil {
		return nil, err
	}

	h := &Handler{
		routes:  make(map[routeKey]route),
		health:  make(map[string]bool),
		resp:    responder.NewResponseBuilder(nil),
		metrics: rec,
	}
	for _, svc := range services {
		d := svc.Definition()
		if d.HealthPath != "" {
			h.health[d.HealthPath] = true
		}
		for _, r := range d.routeSpecs() {
			h.routes[routeKey{r.method, r.path}] = route{svc: svc, op: r.op}
		}
	}
	return h, nil
}

type routeSpec struct {
	method string
	path   string
	op     Op
}

func (d *Definition) routeSpecs() []routeSpec {
	all := []routeSpec{
		{http.MethodGet, d.ItemPath, OpGet},
		{http.MethodGet, d.ListPath, OpList},
		{http.MethodPost, d.ItemPath, OpCreate},
		{http.MethodPatch, d.ItemPath, OpUpdate},
		{http.MethodDelete, d.ItemPath, OpDelete},
	}
	out := all[:0]
	for _, r := range all {
		if d.Has(r.op) {
			out = append(out, r)
		}
	}
	return out
}

// Routes lista as rotas habilitadas da entidade ("GET /loan", ...).
func (d *Definition) Routes() []string {
	specs := d.routeSpecs()
	out := make([]string, len(specs))
	for i, r := range specs {
		out[i] = r.method + " " + r.path
	}
	return out
}

// CheckRoutes verifica se as entidades podem ser servidas pelo mesmo handler.
func CheckRoutes(defs ...*Definition) error {
	owner := make(map[routeKey]string)
	health := make(map[string]bool)
	for _, d := range defs {
		if d.HealthPath != "" {
			health[d.HealthPath] = true
		}
		for _, r := range d.routeSpecs() {
			k := routeKey{r.method, r.path}
			if prev, dup := owner[k]; dup {
				return fmt.Errorf("ledger: route %s %s used by %s and %s", r.method, r.path, prev, d.Name)
			}
			owner[k] = d.Name
		}
	}
	for k := range owner {
		if k.method == http.MethodGet && health[k.path] {
			return fmt.Errorf("ledger: health path %s collides with an entity route", k.path)
		}
	}
	return nil
}

// Handle atende um evento do API Gateway (proxy integration).
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	log.Ctx(ctx).Debug().Str("method", req.HTTPMethod).Str("path", req.Path).Msg("requisição recebida")

	if req.HTTPMethod == http.MethodGet && h.health[req.Path] {
		resp := h.resp.JSON(http.StatusOK, map[string]string{"status": "Healthy"})
		h.metrics.Request("none", "health", resp.StatusCode, time.Since(start))
		return resp, nil
	}

	r, ok := h.routes[routeKey{req.HTTPMethod, req.Path}]
	if !ok {
		resp := h.resp.Message(http.StatusNotFound, "Path not found")
		h.metrics.Request("none", "route", resp.StatusCode, time.Since(start))
		return resp, nil
	}

	resp := h.dispatch(ctx, r, req)
	h.metrics.Request(r.svc.def.Name, r.op.String(), resp.StatusCode, time.Since(start))
	return resp, nil
}

func (h *Handler) dispatch(ctx context.Context, r route, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	d := r.svc.def

	switch r.op {
	case OpGet:
		k, err := d.ParseKeys(queryValues(req.QueryStringParameters), "")
		if err != nil {
			return h.fail(ctx, r, err, k)
		}
		item, err := r.svc.Get(ctx, k)
		if err != nil {
			return h.fail(ctx, r, err, k)
		}
		return h.resp.JSON(http.StatusOK, item)

	case OpList:
		return h.list(ctx, r, req.QueryStringParameters)

	case OpCreate:
		body, err := decodeBody(req)
		if err != nil {
			return h.resp.Message(http.StatusBadRequest, "Invalid JSON body")
		}
		item, err := r.svc.Create(ctx, body)
		if err != nil {
			return h.fail(ctx, r, err, Keys{})
		}
		return h.resp.JSON(http.StatusOK, map[string]any{
			"Operation": "SAVE",
			"Message":   "SUCCESS",
			"Item":      item,
		})

	case OpUpdate:
		body, err := decodeBody(req)
		if err != nil {
			return h.resp.Message(http.StatusBadRequest, "Invalid JSON body")
		}
		k, err := d.ParseKeys(body, "Missing required fields for updating "+d.updateSubject())
		if err != nil {
			return h.fail(ctx, r, err, k)
		}
		c, err := r.svc.Candidates(body)
		if err != nil {
			return h.fail(ctx, r, err, k)
		}
		updated, err := r.svc.Update(ctx, k, c)
		if err != nil {
			return h.fail(ctx, r, err, k)
		}
		return h.resp.JSON(http.StatusOK, map[string]any{
			"Operation":         "UPDATE",
			"Message":           "SUCCESS",
			"UpdatedAttributes": updated,
		})

	case OpDelete:
		body, err := decodeBody(req)
		if err != nil {
			return h.resp.Message(http.StatusBadRequest, "Invalid JSON body")
		}
		k, err := d.ParseKeys(body, "")
		if err != nil {
			return h.fail(ctx, r, err, k)
		}
		old, err := r.svc.Delete(ctx, k)
		if err != nil {
			return h.fail(ctx, r, err, k)
		}
		return h.resp.JSON(http.StatusOK, map[string]any{
			"Operation":   "DELETE",
			"Message":     "SUCCESS",
			"DeletedItem": old,
		})
	}

	return h.resp.Message(http.StatusNotFound, "Path not found")
}

func (h *Handler) list(ctx context.Context, r route, params map[string]string) events.APIGatewayProxyResponse {
	d := r.svc.def
	var lr ListRequest

	if d.ListByHash {
		k, err := d.ParseKeys(queryValues(params), "")
		if err != nil {
			return h.fail(ctx, r, err, k)
		}
		lr.Hash = k.Hash
	}

	if raw := params["limit"]; raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			return h.resp.Message(http.StatusBadRequest, "limit must be a positive number")
		}
		lr.Limit = int32(n)
	}
	lr.NextToken = params["nextToken"]

	page, err := r.svc.List(ctx, lr)
	if err != nil {
		return h.fail(ctx, r, err, Keys{})
	}

	body := map[string]any{d.listField(): page.Items}
	if page.NextToken != "" {
		body["nextToken"] = page.NextToken
	}
	return h.resp.JSON(http.StatusOK, body)
}

// fail traduz o erro da operação em resposta. Erros do cliente vão para o
// log em debug; falhas de storage em error, sem ecoar a causa.
func (h *Handler) fail(ctx context.Context, r route, err error, k Keys) events.APIGatewayProxyResponse {
	d := r.svc.def
	logger := log.Ctx(ctx)

	var (
		keyErr    *KeyError
		fieldErr  *patch.FieldError
		violation *rules.Violation
	)
	switch {
	case errors.As(err, &keyErr):
		logger.Debug().Err(err).Str("entity", d.Name).Msg("chave inválida")
		return h.resp.Message(http.StatusBadRequest, keyErr.Msg)

	case errors.Is(err, patch.ErrNothingToUpdate):
		logger.Debug().Str("entity", d.Name).Msg("nada para atualizar")
		return h.resp.Message(http.StatusBadRequest, "No fields to update for "+d.Singular)

	case errors.As(err, &fieldErr):
		logger.Debug().Err(err).Str("entity", d.Name).Msg("campo inválido")
		return h.resp.Message(http.StatusBadRequest, fieldErr.Error())

	case errors.Is(err, ErrUnknownField):
		logger.Debug().Err(err).Str("entity", d.Name).Msg("updateKey desconhecido")
		return h.resp.Message(http.StatusBadRequest, "updateKey is not an updatable field")

	case errors.As(err, &violation):
		logger.Debug().Err(err).Str("entity", d.Name).Str("rule", violation.RuleID).Msg("regra reprovada")
		code := violation.Code
		if code == 0 {
			code = http.StatusBadRequest
		}
		return h.resp.Message(code, violation.Msg)

	case errors.Is(err, dyndb.ErrInvalidToken):
		return h.resp.Message(http.StatusBadRequest, "Invalid nextToken")

	case errors.Is(err, dyndb.ErrNotFound) && r.op == OpGet:
		return h.resp.Message(http.StatusNotFound, fmt.Sprintf("%s not found for %s", d.Singular, d.describeKeys(k)))

	case errors.Is(err, dyndb.ErrNotFound) && r.op == OpDelete:
		return h.resp.Message(http.StatusNotFound, d.describeKeys(k)+" not found")
	}

	logger.Error().Err(err).
		Str("entity", d.Name).
		Str("operation", r.op.String()).
		Interface("keys", d.keyMap(k)).
		Msg("falha na operação de storage")

	subject := d.Singular
	if r.op == OpList {
		subject = d.Name
	}
	return h.resp.Message(http.StatusInternalServerError, "Error "+r.op.verb()+" "+subject)
}

// describeKeys formata a chave como "loanId: X, userId: Y".
func (d *Definition) describeKeys(k Keys) string {
	s := d.HashKey.Name + ": " + keyText(k.Hash)
	if d.SortKey != nil {
		s += ", " + d.SortKey.Name + ": " + keyText(k.Sort)
	}
	return s
}

// decodeBody lê o corpo JSON preservando números como json.Number.
func decodeBody(req events.APIGatewayProxyRequest) (map[string]any, error) {
	raw := req.Body
	if req.IsBase64Encoded {
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, err
		}
		raw = string(b)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("body is not an object")
	}
	return body, nil
}
