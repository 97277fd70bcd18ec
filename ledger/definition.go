package ledger

import (
	"fmt"
	"strings"

	"github.com/raywall/fast-ledger-service/patch"
)

// Op é uma operação que uma entidade pode expor.
type Op int

const (
	OpGet Op = 1 << iota
	OpList
	OpCreate
	OpUpdate
	OpDelete
)

// AllOps habilita o CRUD completo.
const AllOps = OpGet | OpList | OpCreate | OpUpdate | OpDelete

func (o Op) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpList:
		return "list"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// verb é o termo usado nas mensagens de erro 500 ("Error updating loan").
func (o Op) verb() string {
	switch o {
	case OpGet, OpList:
		return "retrieving"
	case OpCreate:
		return "saving"
	case OpUpdate:
		return "updating"
	case OpDelete:
		return "deleting"
	}
	return "processing"
}

// Key descreve um atributo da chave primária. Apenas String e Number são
// tipos válidos de chave.
type Key struct {
	Name string
	Kind patch.Kind
}

// Definition descreve uma entidade do ledger: tabela, chave, rotas e schema
// dos campos atualizáveis.
type Definition struct {
	Name       string // plural, usado na listagem ("loans")
	Singular   string // usado nas mensagens ("loan")
	Table      string
	HashKey    Key
	SortKey    *Key
	ItemPath   string
	ListPath   string
	HealthPath string
	// ListField é o campo do corpo da listagem; padrão: Name.
	ListField string
	Schema    *patch.Schema
	Ops       Op
	// ListByHash faz da listagem um scan filtrado pelo hash key informado
	// na query string (settings).
	ListByHash bool
	// LegacyUpdate aceita também o corpo {"updateKey", "updateValue"}.
	LegacyUpdate bool
	// MustExist é o padrão da condição attribute_exists no PATCH.
	MustExist bool
	// UpdateSubject substitui Singular na mensagem de chave ausente do PATCH.
	UpdateSubject string
}

// Has indica se a operação está habilitada.
func (d *Definition) Has(op Op) bool { return d.Ops&op != 0 }

func (d *Definition) updateSubject() string {
	if d.UpdateSubject != "" {
		return d.UpdateSubject
	}
	return d.Singular
}

func (d *Definition) listField() string {
	if d.ListField != "" {
		return d.ListField
	}
	return d.Name
}

// KeyNames devolve os nomes dos atributos de chave.
func (d *Definition) KeyNames() []string {
	if d.SortKey == nil {
		return []string{d.HashKey.Name}
	}
	return []string{d.HashKey.Name, d.SortKey.Name}
}

// Validate confere a consistência da definição.
func (d *Definition) Validate() error {
	if d.Name == "" || d.Table == "" {
		return fmt.Errorf("ledger: definition requires name and table")
	}
	if d.Schema == nil {
		return fmt.Errorf("ledger: %s has no update schema", d.Name)
	}
	keys := []Key{d.HashKey}
	if d.SortKey != nil {
		keys = append(keys, *d.SortKey)
	}
	for _, k := range keys {
		if k.Name == "" {
			return fmt.Errorf("ledger: %s has an empty key name", d.Name)
		}
		if k.Kind != patch.String && k.Kind != patch.Number {
			return fmt.Errorf("ledger: %s key %s must be string or number", d.Name, k.Name)
		}
		if d.Schema.Has(k.Name) {
			return fmt.Errorf("ledger: %s key %s cannot be an update field", d.Name, k.Name)
		}
	}
	for _, p := range []string{d.ItemPath, d.ListPath, d.HealthPath} {
		if p != "" && !strings.HasPrefix(p, "/") {
			return fmt.Errorf("ledger: %s path %q must start with /", d.Name, p)
		}
	}
	if d.Has(OpGet) && d.Has(OpList) && d.ItemPath == d.ListPath {
		return fmt.Errorf("ledger: %s get and list share the path %s", d.Name, d.ItemPath)
	}
	return nil
}

// Override aplica os ajustes da configuração sobre uma cópia da definição.
func (d Definition) Override(table, healthPath string) *Definition {
	if table != "" {
		d.Table = table
	}
	if healthPath != "" {
		d.HealthPath = healthPath
	}
	return &d
}
