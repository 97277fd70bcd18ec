package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/raywall/fast-ledger-service/dyndb"
	"github.com/raywall/fast-ledger-service/ledger"
	"github.com/raywall/fast-ledger-service/patch"
	"github.com/raywall/fast-ledger-service/pkg/awsconf"
	"github.com/raywall/fast-ledger-service/pkg/cache"
	"github.com/raywall/fast-ledger-service/pkg/config"
	"github.com/raywall/fast-ledger-service/pkg/metrics"
	"github.com/raywall/fast-ledger-service/pkg/observability"
	"github.com/raywall/fast-ledger-service/pkg/rules"
	"github.com/rs/zerolog/log"
)

// ErrNoSource é retornado por Reload quando a Engine foi criada a partir de
// uma configuração em memória.
var ErrNoSource = errors.New("engine: configuração sem fonte para reload")

// Deps permite injetar os clientes de infraestrutura. Campos nil são
// criados a partir da configuração.
type Deps struct {
	Dynamo  dyndb.DynamoDBClient
	Cache   cache.Cache
	Metrics metrics.Provider
}

// Engine mantém o handler ativo das entidades configuradas e permite
// trocá-lo em tempo de execução (hot reload).
//
// Os clientes de infraestrutura (DynamoDB, Redis, StatsD) são criados uma
// única vez; o reload reconstrói apenas entidades, regras e rotas.
type Engine struct {
	mu       sync.RWMutex
	cfg      *config.ServiceConfig
	handler  *ledger.Handler
	services map[string]*ledger.Service

	loader *UniversalLoader
	source string

	deps     Deps
	recorder *metrics.Recorder
	rules    *rules.RuleManager
	closers  []io.Closer
}

// New cria a Engine a partir de uma configuração já validada.
func New(ctx context.Context, cfg *config.ServiceConfig, deps Deps) (*Engine, error) {
	e := &Engine{deps: deps}

	if e.deps.Dynamo == nil {
		awsCfg, err := awsconf.GetAWSConfig(ctx, cfg.Storage.Region)
		if err != nil {
			return nil, fmt.Errorf("falha config AWS: %w", err)
		}
		e.deps.Dynamo = awsconf.NewDynamoClient(awsCfg, cfg.Storage.Endpoint)
	}

	if e.deps.Cache == nil {
		if cfg.Cache.Enabled {
			rc := cache.NewRedis(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
			e.deps.Cache = rc
			e.closers = append(e.closers, rc)
		} else {
			e.deps.Cache = cache.Noop{}
		}
	}

	if e.deps.Metrics == nil {
		provider, err := observability.SetupMetrics(cfg.Service.Metrics, cfg.Service.Name)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("falha métricas: %w", err)
		}
		e.deps.Metrics = provider
		if c, ok := provider.(io.Closer); ok {
			e.closers = append(e.closers, c)
		}
	}
	e.recorder = metrics.NewRecorder(e.deps.Metrics)

	rm, err := rules.NewRuleManager()
	if err != nil {
		e.Close()
		return nil, err
	}
	e.rules = rm

	if err := e.apply(cfg); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Load carrega a configuração da fonte e cria a Engine. A fonte é guardada
// para os reloads seguintes.
func Load(ctx context.Context, loader *UniversalLoader, source string, deps Deps) (*Engine, error) {
	cfg, err := loader.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	e, err := New(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	e.loader = loader
	e.source = source
	return e, nil
}

// Handle atende o evento com o handler vigente.
func (e *Engine) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	e.mu.RLock()
	h := e.handler
	e.mu.RUnlock()
	return h.Handle(ctx, req)
}

// Reload relê a fonte e troca o handler. Em caso de falha a configuração
// anterior continua ativa.
func (e *Engine) Reload(ctx context.Context) error {
	if e.loader == nil {
		return ErrNoSource
	}
	cfg, err := e.loader.Load(ctx, e.source)
	if err == nil {
		err = e.apply(cfg)
	}
	e.recorder.Reload(err == nil)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("source", e.source).Int("entities", len(cfg.Entities)).Msg("configuração recarregada")
	return nil
}

// Config devolve a configuração vigente.
func (e *Engine) Config() *config.ServiceConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Service devolve o serviço de uma entidade configurada.
func (e *Engine) Service(name string) (*ledger.Service, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	svc, ok := e.services[name]
	return svc, ok
}

// Recorder devolve o gravador de métricas da Engine.
func (e *Engine) Recorder() *metrics.Recorder { return e.recorder }

// Close libera os clientes criados pela Engine.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// apply monta serviços e rotas para cfg e só então publica o novo handler.
func (e *Engine) apply(cfg *config.ServiceConfig) error {
	services := make(map[string]*ledger.Service, len(cfg.Entities))
	list := make([]*ledger.Service, 0, len(cfg.Entities))

	for _, ec := range cfg.Entities {
		svc, err := e.buildService(cfg, ec)
		if err != nil {
			return err
		}
		services[ec.Name] = svc
		list = append(list, svc)
	}

	h, err := ledger.NewHandler(e.recorder, list...)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.cfg = cfg
	e.handler = h
	e.services = services
	e.mu.Unlock()
	return nil
}

// Definition aplica os ajustes de ec sobre a entidade do catálogo.
func Definition(ec config.EntityConf) (*ledger.Definition, error) {
	base, ok := ledger.Lookup(ec.Name)
	if !ok {
		return nil, fmt.Errorf("entidade desconhecida: '%s'", ec.Name)
	}
	def := base.Override(ec.Table, ec.HealthPath)
	if len(ec.ExtraFields) == 0 {
		return def, nil
	}

	extra := make([]patch.Field, len(ec.ExtraFields))
	for i, fc := range ec.ExtraFields {
		kind, err := patch.ParseKind(fc.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s.extra_fields[%d]: %w", ec.Name, i, err)
		}
		extra[i] = patch.Field{Name: fc.Name, Kind: kind}
	}
	schema, err := def.Schema.Extend(extra...)
	if err != nil {
		return nil, fmt.Errorf("%s.extra_fields: %w", ec.Name, err)
	}
	def.Schema = schema
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (e *Engine) buildService(cfg *config.ServiceConfig, ec config.EntityConf) (*ledger.Service, error) {
	def, err := Definition(ec)
	if err != nil {
		return nil, err
	}

	tableCfg := dyndb.TableConfig[dyndb.Item]{TableName: def.Table, HashKey: def.HashKey.Name}
	if def.SortKey != nil {
		tableCfg.SortKey = def.SortKey.Name
	}

	opts := ledger.Options{
		MustExist:    ec.MustExistOrDefault(def.MustExist),
		PageSize:     ec.PageSize,
		ScanSegments: ec.ScanSegments,
		CacheTTL:     cfg.Cache.GetTTL(),
		Metrics:      e.recorder,
	}
	if ec.CacheEnabled() {
		opts.Cache = e.deps.Cache
	}

	svc, err := ledger.NewService(def, dyndb.New(e.deps.Dynamo, tableCfg), opts)
	if err != nil {
		return nil, err
	}

	rs, err := e.rules.Compile(ec.Name, ec.Validations)
	if err != nil {
		return nil, err
	}
	if rs.Len() > 0 {
		svc.RegisterHook(ledger.BeforeCreate, func(_ context.Context, input, keys map[string]any) error {
			return rs.Check("create", input, keys)
		})
		svc.RegisterHook(ledger.BeforeUpdate, func(_ context.Context, input, keys map[string]any) error {
			return rs.Check("update", input, keys)
		})
	}
	return svc, nil
}
