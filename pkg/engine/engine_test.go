package engine

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/raywall/fast-ledger-service/dyndb"
	"github.com/raywall/fast-ledger-service/pkg/cache"
	"github.com/raywall/fast-ledger-service/pkg/config"
	"github.com/raywall/fast-ledger-service/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider conta as métricas de reload.
type countingProvider struct {
	observability.NoopProvider
	mu     sync.Mutex
	counts map[string]int
}

func (p *countingProvider) Count(name string, value float64, tags []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts == nil {
		p.counts = map[string]int{}
	}
	p.counts[name+"|"+strings.Join(tags, ",")]++
	return nil
}

func (p *countingProvider) total(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k, v := range p.counts {
		if strings.HasPrefix(k, prefix) {
			n += v
		}
	}
	return n
}

func testConfig(entities ...config.EntityConf) *config.ServiceConfig {
	return &config.ServiceConfig{
		Version:  "1.0",
		Service:  config.ServiceDetails{Name: "ledger", Runtime: "lambda", Timeout: "1s"},
		Entities: entities,
	}
}

func invoke(t *testing.T, e *Engine, method, path string, query map[string]string, body string) (int, map[string]any) {
	t.Helper()
	resp, err := e.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            method,
		Path:                  path,
		QueryStringParameters: query,
		Body:                  body,
	})
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	return resp.StatusCode, out
}

func TestNew_RoutesConfiguredEntities(t *testing.T) {
	var tables []string
	client := &dyndb.MockDynamoClient{
		GetItemFn: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			tables = append(tables, *params.TableName)
			return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
				"walletId": &types.AttributeValueMemberS{Value: "W1"},
				"userId":   &types.AttributeValueMemberS{Value: "U1"},
			}}, nil
		},
	}

	e, err := New(context.Background(), testConfig(
		config.EntityConf{Name: "wallets", Table: "WalletsV2", HealthPath: "/ping"},
	), Deps{Dynamo: client, Metrics: &observability.NoopProvider{}})
	require.NoError(t, err)
	defer e.Close()

	code, body := invoke(t, e, "GET", "/wallet", map[string]string{"walletId": "W1", "userId": "U1"}, "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "W1", body["walletId"])
	assert.Equal(t, []string{"WalletsV2"}, tables)

	code, body = invoke(t, e, "GET", "/ping", nil, "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "Healthy", body["status"])

	code, _ = invoke(t, e, "GET", "/loan", map[string]string{"loanId": "L1", "userId": "U1"}, "")
	assert.Equal(t, 404, code, "entidade não configurada não tem rota")

	_, ok := e.Service("wallets")
	assert.True(t, ok)
	_, ok = e.Service("loans")
	assert.False(t, ok)
}

func TestNew_MustExistDefaults(t *testing.T) {
	var conditions []bool
	client := &dyndb.MockDynamoClient{
		UpdateItemFn: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			conditions = append(conditions, params.ConditionExpression != nil)
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	no := false

	e, err := New(context.Background(), testConfig(
		config.EntityConf{Name: "settings"},
		config.EntityConf{Name: "loans"},
		config.EntityConf{Name: "stocks", MustExist: &no},
	), Deps{Dynamo: client, Metrics: &observability.NoopProvider{}})
	require.NoError(t, err)

	code, _ := invoke(t, e, "PATCH", "/settings", nil, `{"userId":"U1","theme":"dark"}`)
	assert.Equal(t, 200, code)
	code, _ = invoke(t, e, "PATCH", "/loan", nil, `{"loanId":"L1","userId":"U1","amount":"10"}`)
	assert.Equal(t, 200, code)
	code, _ = invoke(t, e, "PATCH", "/stock", nil, `{"stockId":"S1","userId":"U1","price":"10"}`)
	assert.Equal(t, 200, code)

	assert.Equal(t, []bool{false, true, false}, conditions)
}

func TestNew_ValidationRulesBecomeHooks(t *testing.T) {
	e, err := New(context.Background(), testConfig(config.EntityConf{
		Name: "loans",
		Validations: []config.ValidationRule{{
			ID:     "positive-amount",
			Expr:   "!has(input.amount) || input.amount > 0.0",
			OnFail: config.ErrorResponse{Code: 422, Msg: "amount must be positive"},
		}},
	}), Deps{Dynamo: &dyndb.MockDynamoClient{}, Metrics: &observability.NoopProvider{}})
	require.NoError(t, err)

	code, body := invoke(t, e, "POST", "/loan", nil, `{"loanId":"L1","userId":"U1","amount":-5}`)
	assert.Equal(t, 422, code)
	assert.Equal(t, "amount must be positive", body["Message"])

	code, body = invoke(t, e, "PATCH", "/loan", nil, `{"loanId":"L1","userId":"U1","amount":"-1"}`)
	assert.Equal(t, 422, code)
	assert.Equal(t, "amount must be positive", body["Message"])

	code, _ = invoke(t, e, "POST", "/loan", nil, `{"loanId":"L1","userId":"U1","amount":5}`)
	assert.Equal(t, 200, code)
}

func TestNew_ExtraFieldsExtendUpdateSchema(t *testing.T) {
	var input *dynamodb.UpdateItemInput
	client := &dyndb.MockDynamoClient{
		UpdateItemFn: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			input = params
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}

	e, err := New(context.Background(), testConfig(config.EntityConf{
		Name:        "wallets",
		ExtraFields: []config.FieldConf{{Name: "archived", Kind: "bool"}},
	}), Deps{Dynamo: client, Metrics: &observability.NoopProvider{}})
	require.NoError(t, err)

	code, _ := invoke(t, e, "PATCH", "/wallet", nil, `{"walletId":"W1","userId":"U1","archived":false}`)
	assert.Equal(t, 200, code)
	require.NotNil(t, input)
	assert.Equal(t, "SET archived = :archived", *input.UpdateExpression)
	assert.Equal(t, &types.AttributeValueMemberBOOL{Value: false}, input.ExpressionAttributeValues[":archived"])

	code, body := invoke(t, e, "PATCH", "/wallet", nil, `{"walletId":"W1","userId":"U1","archived":"maybe"}`)
	assert.Equal(t, 400, code)
	assert.Contains(t, body["Message"], "archived")
}

func TestDefinition_ExtraFieldErrors(t *testing.T) {
	_, err := Definition(config.EntityConf{Name: "wallets", ExtraFields: []config.FieldConf{{Name: "balance"}}})
	assert.ErrorContains(t, err, "duplicate")

	_, err = Definition(config.EntityConf{Name: "wallets", ExtraFields: []config.FieldConf{{Name: "walletId"}}})
	assert.ErrorContains(t, err, "cannot be an update field")

	_, err = Definition(config.EntityConf{Name: "wallets", ExtraFields: []config.FieldConf{{Name: "x", Kind: "date"}}})
	assert.ErrorContains(t, err, "extra_fields[0]")
}

func TestNew_InvalidRule(t *testing.T) {
	_, err := New(context.Background(), testConfig(config.EntityConf{
		Name:        "loans",
		Validations: []config.ValidationRule{{ID: "broken", Expr: "input.amount >", OnFail: config.ErrorResponse{Code: 400, Msg: "x"}}},
	}), Deps{Dynamo: &dyndb.MockDynamoClient{}, Metrics: &observability.NoopProvider{}})
	assert.ErrorContains(t, err, "broken")
}

func TestNew_CacheIsOptInPerEntity(t *testing.T) {
	gets := 0
	client := &dyndb.MockDynamoClient{
		GetItemFn: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			gets++
			return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
				"assetId": &types.AttributeValueMemberS{Value: "A1"},
			}}, nil
		},
	}
	no := false
	mem := newMapCache()

	e, err := New(context.Background(), testConfig(
		config.EntityConf{Name: "assets"},
		config.EntityConf{Name: "wallets", Cache: &no},
	), Deps{Dynamo: client, Cache: mem, Metrics: &observability.NoopProvider{}})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		invoke(t, e, "GET", "/asset", map[string]string{"assetId": "A1", "userId": "U1"}, "")
		invoke(t, e, "GET", "/wallet", map[string]string{"walletId": "W1", "userId": "U1"}, "")
	}
	assert.Equal(t, 3, gets, "assets servido do cache na segunda leitura")
}

func TestEngine_Reload(t *testing.T) {
	path := writeTemp(t, validYAML)
	provider := &countingProvider{}

	e, err := Load(context.Background(), newTestLoader(), path, Deps{Dynamo: &dyndb.MockDynamoClient{}, Metrics: provider})
	require.NoError(t, err)
	assert.Len(t, e.Config().Entities, 2)

	code, _ := invoke(t, e, "GET", "/wallets", nil, "")
	assert.Equal(t, 404, code)

	updated := strings.Replace(validYAML, "  - name: loans\n", "  - name: loans\n  - name: wallets\n", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.NoError(t, e.Reload(context.Background()))

	code, body := invoke(t, e, "GET", "/wallets", nil, "")
	assert.Equal(t, 200, code)
	assert.Equal(t, []any{}, body["wallets"])

	// Configuração inválida mantém a anterior.
	require.NoError(t, os.WriteFile(path, []byte("version: ["), 0o600))
	assert.Error(t, e.Reload(context.Background()))
	code, _ = invoke(t, e, "GET", "/wallets", nil, "")
	assert.Equal(t, 200, code)
	assert.Len(t, e.Config().Entities, 3)

	assert.Equal(t, 1, provider.total("ledger.config.reload|success:true"))
	assert.Equal(t, 1, provider.total("ledger.config.reload|success:false"))
}

func TestEngine_ReloadWithoutSource(t *testing.T) {
	e, err := New(context.Background(), testConfig(config.EntityConf{Name: "loans"}),
		Deps{Dynamo: &dyndb.MockDynamoClient{}, Metrics: &observability.NoopProvider{}})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Reload(context.Background()), ErrNoSource)
}

func TestEngine_ConcurrentReloadAndHandle(t *testing.T) {
	path := writeTemp(t, validYAML)
	e, err := Load(context.Background(), newTestLoader(), path, Deps{Dynamo: &dyndb.MockDynamoClient{}, Metrics: &observability.NoopProvider{}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.Reload(context.Background()))
		}()
		go func() {
			defer wg.Done()
			resp, err := e.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "GET", Path: "/healthC"})
			assert.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		}()
	}
	wg.Wait()
}

// mapCache é um cache em memória para os testes.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ cache.Cache = (*mapCache)(nil)

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}
