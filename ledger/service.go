package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raywall/fast-ledger-service/dyndb"
	"github.com/raywall/fast-ledger-service/patch"
	"github.com/raywall/fast-ledger-service/pkg/cache"
	"github.com/raywall/fast-ledger-service/pkg/metrics"
	"github.com/rs/zerolog/log"
)

type HookType int

const (
	BeforeCreate HookType = iota
	BeforeUpdate
)

// ErrUnknownField é retornado quando o updateKey legado não é um campo
// atualizável da entidade.
var ErrUnknownField = errors.New("ledger: field is not updatable")

// Hook roda antes de gravar. input traz os campos do payload em tipos
// nativos (números em float64) e keys a chave primária.
type Hook func(ctx context.Context, input, keys map[string]any) error

// Options ajusta o comportamento do serviço de uma entidade.
type Options struct {
	MustExist    bool
	PageSize     int32
	ScanSegments int32
	Cache        cache.Cache
	CacheTTL     time.Duration
	Metrics      *metrics.Recorder
}

// Service concentra as operações de uma entidade sobre o store.
type Service struct {
	def   *Definition
	store dyndb.Store[dyndb.Item]
	opts  Options
	hooks map[HookType][]Hook
}

// NewService cria o serviço da entidade. O store é compartilhado, criado
// uma única vez a partir do cliente DynamoDB do processo.
func NewService(def *Definition, store dyndb.Store[dyndb.Item], opts Options) (*Service, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("ledger: %s has no store", def.Name)
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Service{
		def:   def,
		store: store,
		opts:  opts,
		hooks: make(map[HookType][]Hook),
	}, nil
}

// Definition devolve a definição servida.
func (s *Service) Definition() *Definition { return s.def }

// RegisterHook adiciona uma validação executada antes de Create ou Update.
func (s *Service) RegisterHook(t HookType, fn Hook) {
	s.hooks[t] = append(s.hooks[t], fn)
}

func (s *Service) runHooks(ctx context.Context, t HookType, input, keys map[string]any) error {
	for _, fn := range s.hooks[t] {
		if err := fn(ctx, input, keys); err != nil {
			return err
		}
	}
	return nil
}

// Get busca um item pela chave, passando pelo cache quando habilitado.
func (s *Service) Get(ctx context.Context, k Keys) (dyndb.Item, error) {
	key := s.cacheKey(k)
	if item, ok := s.cached(ctx, key); ok {
		return item, nil
	}

	item, err := s.store.Get(ctx, k.Hash, k.Sort)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(item); err == nil {
		if err := s.opts.Cache.Set(ctx, key, b, s.opts.CacheTTL); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("falha ao gravar no cache")
		}
	}
	return *item, nil
}

func (s *Service) cached(ctx context.Context, key string) (dyndb.Item, bool) {
	if _, noop := s.opts.Cache.(cache.Noop); noop {
		return nil, false
	}

	b, hit, err := s.opts.Cache.Get(ctx, key)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("falha ao ler do cache")
		return nil, false
	}
	s.opts.Metrics.CacheLookup(s.def.Name, hit)
	if !hit {
		return nil, false
	}

	item, err := decodeItem(b)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("item inválido no cache")
		return nil, false
	}
	return item, true
}

// write invalida a chave antes e depois da gravação. A segunda remoção
// descarta o que um Get concorrente tenha repovoado durante a escrita.
func (s *Service) write(ctx context.Context, k Keys, fn func() error) error {
	s.invalidate(ctx, k)
	if err := fn(); err != nil {
		return err
	}
	s.invalidate(ctx, k)
	return nil
}

func (s *Service) invalidate(ctx context.Context, k Keys) {
	key := s.cacheKey(k)
	if err := s.opts.Cache.Delete(ctx, key); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("falha ao invalidar o cache")
	}
}

func (s *Service) cacheKey(k Keys) string {
	if s.def.SortKey == nil {
		return cache.Key(s.def.Name, keyText(k.Hash))
	}
	return cache.Key(s.def.Name, keyText(k.Hash), keyText(k.Sort))
}

// ListRequest controla a listagem. Sem Limit e sem NextToken a tabela é
// percorrida por completo.
type ListRequest struct {
	Limit     int32
	NextToken string
	// Hash filtra o scan pelo hash key (entidades ListByHash).
	Hash any
}

// Page é o resultado da listagem; NextToken vazio indica a última página.
type Page struct {
	Items     []dyndb.Item
	NextToken string
}

// List executa o scan da tabela.
func (s *Service) List(ctx context.Context, req ListRequest) (Page, error) {
	qb := s.store.Scan()
	if s.def.ListByHash {
		qb = qb.FilterEqual(s.def.HashKey.Name, req.Hash)
	}

	if req.Limit > 0 || req.NextToken != "" {
		limit := req.Limit
		if limit <= 0 {
			limit = s.opts.PageSize
		}
		items, next, err := qb.Limit(limit).LastKey(req.NextToken).Exec(ctx)
		if err != nil {
			return Page{}, err
		}
		return Page{Items: nonNil(items), NextToken: next}, nil
	}

	items, err := qb.AllSegments(ctx, s.opts.ScanSegments)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: nonNil(items)}, nil
}

func nonNil(items []dyndb.Item) []dyndb.Item {
	if items == nil {
		return []dyndb.Item{}
	}
	return items
}

// Create grava o corpo recebido. Os campos do schema são convertidos para
// o tipo declarado; os demais atributos são gravados como vieram.
func (s *Service) Create(ctx context.Context, body map[string]any) (dyndb.Item, error) {
	item, k, err := s.buildItem(body)
	if err != nil {
		return nil, err
	}

	if err := s.runHooks(ctx, BeforeCreate, nativeItem(item), s.def.keyMap(k)); err != nil {
		return nil, err
	}
	if err := s.write(ctx, k, func() error { return s.store.Put(ctx, item) }); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) buildItem(body map[string]any) (dyndb.Item, Keys, error) {
	k, err := s.def.ParseKeys(body, "")
	if err != nil {
		return nil, k, err
	}

	fs, err := s.def.Schema.Normalize(patch.Candidates(body))
	if err != nil {
		return nil, k, err
	}

	item := make(dyndb.Item, len(body))
	for name, v := range body {
		item[name] = dyndb.FromJSON(v)
	}
	for _, e := range fs {
		item[e.Field.Name] = e.Value
	}
	item[s.def.HashKey.Name] = k.Hash
	if s.def.SortKey != nil {
		item[s.def.SortKey.Name] = k.Sort
	}
	return item, k, nil
}

// Candidates separa do corpo os valores candidatos à atualização. No
// formato legado {"updateKey", "updateValue"} o campo precisa pertencer
// ao schema.
func (s *Service) Candidates(body map[string]any) (patch.Candidates, error) {
	if s.def.LegacyUpdate {
		if raw, ok := body["updateKey"]; ok {
			name, _ := raw.(string)
			if !s.def.Schema.Has(name) {
				return nil, fmt.Errorf("%w: %v", ErrUnknownField, raw)
			}
			return patch.Candidates{name: body["updateValue"]}, nil
		}
	}
	return patch.Candidates(body), nil
}

// Update aplica uma atualização parcial e devolve os atributos alterados.
func (s *Service) Update(ctx context.Context, k Keys, c patch.Candidates) (dyndb.Item, error) {
	fs, err := s.def.Schema.Normalize(c)
	if err != nil {
		return nil, err
	}
	if fs.Len() == 0 {
		return nil, patch.ErrNothingToUpdate
	}
	if err := s.runHooks(ctx, BeforeUpdate, fs.Map(), s.def.keyMap(k)); err != nil {
		return nil, err
	}

	plan, err := patch.Build(fs)
	if err != nil {
		return nil, err
	}

	var updated *dyndb.Item
	err = s.write(ctx, k, func() (err error) {
		updated, err = s.store.Update(ctx, k.Hash, k.Sort, plan, dyndb.UpdateOptions{MustExist: s.opts.MustExist})
		return err
	})
	if err != nil {
		return nil, err
	}
	return *updated, nil
}

// Delete remove o item e devolve a versão apagada.
func (s *Service) Delete(ctx context.Context, k Keys) (dyndb.Item, error) {
	var old *dyndb.Item
	err := s.write(ctx, k, func() (err error) {
		old, err = s.store.Delete(ctx, k.Hash, k.Sort)
		return err
	})
	if err != nil {
		return nil, err
	}
	return *old, nil
}

// Seed grava itens em lote, aplicando a mesma conversão do Create.
func (s *Service) Seed(ctx context.Context, bodies []map[string]any) (int, error) {
	items := make([]dyndb.Item, 0, len(bodies))
	for i, body := range bodies {
		item, _, err := s.buildItem(body)
		if err != nil {
			return 0, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	if err := s.store.BatchWrite(ctx, items, nil); err != nil {
		return 0, err
	}
	return len(items), nil
}

func decodeItem(b []byte) (dyndb.Item, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return dyndb.Item(dyndb.FromJSON(raw).(map[string]any)), nil
}

// nativeItem converte Number em float64, recursivamente, para as regras CEL.
func nativeItem(item dyndb.Item) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		out[k] = native(v)
	}
	return out
}

func native(v any) any {
	switch x := v.(type) {
	case dyndb.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return string(x)
	case dyndb.Item:
		return nativeItem(x)
	case map[string]any:
		return nativeItem(dyndb.Item(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = native(e)
		}
		return out
	}
	return v
}
