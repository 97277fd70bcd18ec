package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Recorder traduz eventos do serviço em métricas do Provider.
// Falhas de envio são apenas logadas: métrica nunca derruba requisição.
type Recorder struct {
	provider Provider
	base     []string
}

// NewRecorder cria um Recorder; tags base são anexadas a todas as métricas.
func NewRecorder(provider Provider, baseTags ...string) *Recorder {
	return &Recorder{provider: provider, base: baseTags}
}

// Request registra uma requisição atendida.
func (r *Recorder) Request(entity, operation string, status int, elapsed time.Duration) {
	if r == nil || r.provider == nil {
		return
	}
	tags := r.tags(
		"entity:"+entity,
		"operation:"+operation,
		"status:"+strconv.Itoa(status),
		fmt.Sprintf("status_class:%dxx", status/100),
	)
	r.check(RequestCount, r.provider.Count(RequestCount, 1, tags))
	r.check(RequestLatency, r.provider.Histogram(RequestLatency, float64(elapsed.Microseconds())/1000, tags))
}

// CacheLookup registra um acerto ou falta no cache.
func (r *Recorder) CacheLookup(entity string, hit bool) {
	if r == nil || r.provider == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.check(CacheLookup, r.provider.Count(CacheLookup, 1, r.tags("entity:"+entity, "result:"+result)))
}

// Reload registra uma tentativa de recarga da configuração.
func (r *Recorder) Reload(ok bool) {
	if r == nil || r.provider == nil {
		return
	}
	r.check(ReloadCount, r.provider.Count(ReloadCount, 1, r.tags("success:"+strconv.FormatBool(ok))))
}

func (r *Recorder) tags(extra ...string) []string {
	out := make([]string, 0, len(r.base)+len(extra))
	out = append(out, r.base...)
	return append(out, extra...)
}

func (r *Recorder) check(name string, err error) {
	if err != nil {
		log.Debug().Err(err).Str("metric", name).Msg("falha ao enviar métrica")
	}
}
