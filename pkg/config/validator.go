package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type ConfigValidator struct {
	validate *validator.Validate
	known    map[string]bool
}

// NewValidator cria uma nova instância do validador. knownEntities é o
// catálogo de entidades que o serviço sabe servir.
func NewValidator(knownEntities ...string) *ConfigValidator {
	known := make(map[string]bool, len(knownEntities))
	for _, k := range knownEntities {
		known[k] = true
	}
	return &ConfigValidator{
		validate: validator.New(),
		known:    known,
	}
}

// Validate realiza validações estruturais (tags) e semânticas (lógica)
func (cv *ConfigValidator) Validate(cfg *ServiceConfig) error {
	// 1. Validação Estrutural (Tags do struct: required, oneof, etc)
	if err := cv.validate.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMsgs []string
			for _, e := range validationErrors {
				errMsgs = append(errMsgs, fmt.Sprintf("Campo '%s' falhou na regra '%s'", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("erros de validação estrutural:\n- %s", strings.Join(errMsgs, "\n- "))
		}
		return fmt.Errorf("erro de validação estrutural: %w", err)
	}

	// 2. Validação Semântica (Regras de negócio da configuração)
	if err := cv.validateSemantics(cfg); err != nil {
		return fmt.Errorf("erro de validação semântica: %w", err)
	}

	return nil
}

func (cv *ConfigValidator) validateSemantics(cfg *ServiceConfig) error {
	if _, err := time.ParseDuration(cfg.Service.Timeout); err != nil {
		return fmt.Errorf("timeout inválido: '%s'", cfg.Service.Timeout)
	}
	if cfg.Cache.TTL != "" {
		if _, err := time.ParseDuration(cfg.Cache.TTL); err != nil {
			return fmt.Errorf("cache.ttl inválido: '%s'", cfg.Cache.TTL)
		}
	}

	// O reloader faz long polling; numa Lambda ele nunca rodaria.
	if cfg.Service.Reload.SQSQueueURL != "" && cfg.Service.Runtime != "local" {
		return fmt.Errorf("reload via SQS só é suportado no runtime local")
	}

	seen := make(map[string]bool)
	tables := make(map[string]string)
	for _, e := range cfg.Entities {
		if len(cv.known) > 0 && !cv.known[e.Name] {
			return fmt.Errorf("entidade desconhecida: '%s'", e.Name)
		}
		if seen[e.Name] {
			return fmt.Errorf("entidade duplicada: '%s'", e.Name)
		}
		seen[e.Name] = true

		if e.Table != "" {
			if other, ok := tables[e.Table]; ok {
				return fmt.Errorf("tabela '%s' usada por '%s' e '%s'", e.Table, other, e.Name)
			}
			tables[e.Table] = e.Name
		}

		ruleIDs := make(map[string]bool)
		for _, r := range e.Validations {
			if ruleIDs[r.ID] {
				return fmt.Errorf("regra duplicada em '%s': '%s'", e.Name, r.ID)
			}
			ruleIDs[r.ID] = true
		}
	}

	return nil
}
