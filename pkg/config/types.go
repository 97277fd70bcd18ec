package config

import "time"

// ServiceConfig representa a estrutura raiz do arquivo YAML do serviço.
type ServiceConfig struct {
	Version  string         `yaml:"version" validate:"required"`
	Service  ServiceDetails `yaml:"service" validate:"required"`
	Storage  StorageConf    `yaml:"storage"`
	Cache    CacheConf      `yaml:"cache"`
	Entities []EntityConf   `yaml:"entities" validate:"required,min=1,dive"`
}

// ServiceDetails contém os metadados e configurações de runtime do serviço.
type ServiceDetails struct {
	Name      string         `yaml:"name" validate:"required,hostname_rfc1123"`
	Runtime   string         `yaml:"runtime" validate:"required,oneof=local lambda"`
	Port      int            `yaml:"port" validate:"required_if=Runtime local"` // Obrigatório apenas se local
	Timeout   string         `yaml:"timeout" validate:"required"`               // Ex: "500ms", "2s"
	OnTimeout *ErrorResponse `yaml:"on_timeout" validate:"omitempty"`           // padrão: 504
	Logging   LoggingConf    `yaml:"logging"`
	Metrics   MetricsConf    `yaml:"metrics"`
	Reload    ReloadConf     `yaml:"reload"`
}

type StorageConf struct {
	Region   string `yaml:"region" env:"AWS_REGION"`
	Endpoint string `yaml:"endpoint" env:"DYNAMODB_ENDPOINT"` // DynamoDB Local
}

// CacheConf habilita o cache Redis das leituras por chave.
type CacheConf struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" env:"REDIS_ADDR" validate:"required_if=Enabled true"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	TTL      string `yaml:"ttl"`
}

// ReloadConf configura o hot reload via SQS (apenas runtime local).
type ReloadConf struct {
	SQSQueueURL string `yaml:"sqs_queue_url"`
	WaitSeconds int32  `yaml:"wait_seconds" validate:"gte=0,lte=20"`
}

// EntityConf ativa uma entidade do catálogo e ajusta seus parâmetros.
type EntityConf struct {
	Name         string           `yaml:"name" validate:"required"`
	Table        string           `yaml:"table"`
	HealthPath   string           `yaml:"health_path" validate:"omitempty,startswith=/"`
	MustExist    *bool            `yaml:"must_exist"`
	PageSize     int32            `yaml:"page_size" validate:"gte=0,lte=1000"`
	ScanSegments int32            `yaml:"scan_segments" validate:"gte=0,lte=64"`
	Cache        *bool            `yaml:"cache"`
	ExtraFields  []FieldConf      `yaml:"extra_fields" validate:"dive"`
	Validations  []ValidationRule `yaml:"validations" validate:"dive"`
}

// FieldConf torna atualizável via PATCH um atributo fora do catálogo.
type FieldConf struct {
	Name string `yaml:"name" validate:"required"`
	Kind string `yaml:"kind" validate:"omitempty,oneof=string number bool any"`
}

type ErrorResponse struct {
	Code int    `yaml:"code" validate:"gte=400,lt=600"`
	Msg  string `yaml:"msg" validate:"required"`
}

type LoggingConf struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format  string `yaml:"format" validate:"omitempty,oneof=json console"`
}

type MetricsConf struct {
	Datadog DatadogConf `yaml:"datadog"`
}

type DatadogConf struct {
	Enabled   bool   `yaml:"enabled" env:"DD_ENABLED"`
	Addr      string `yaml:"addr" env:"DD_AGENT_HOST" validate:"required_if=Enabled true"`
	Namespace string `yaml:"namespace"`
}

// ValidationRule é uma regra CEL avaliada sobre o corpo de POST/PATCH.
// Quando On não é informado, vale para as duas operações.
type ValidationRule struct {
	ID     string        `yaml:"id" validate:"required"`
	Expr   string        `yaml:"expr" validate:"required"`
	On     []string      `yaml:"on" validate:"dive,oneof=create update"`
	OnFail ErrorResponse `yaml:"on_fail" validate:"required"`
}

func (s ServiceDetails) GetTimeout() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetTTL devolve o TTL do cache; 5 minutos quando ausente ou inválido.
func (c CacheConf) GetTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// MustExistOrDefault devolve a configuração explícita ou, na ausência dela,
// o padrão da entidade.
func (e EntityConf) MustExistOrDefault(def bool) bool {
	if e.MustExist == nil {
		return def
	}
	return *e.MustExist
}

// CacheEnabled indica se a entidade usa o cache global (padrão: sim).
func (e EntityConf) CacheEnabled() bool {
	if e.Cache == nil {
		return true
	}
	return *e.Cache
}

// AppliesTo indica se a regra vale para a operação ("create" ou "update").
func (r ValidationRule) AppliesTo(op string) bool {
	if len(r.On) == 0 {
		return true
	}
	for _, o := range r.On {
		if o == op {
			return true
		}
	}
	return false
}
