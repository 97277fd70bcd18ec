package patch

import (
	"fmt"
	"strings"
)

// Kind é o tipo esperado do valor de um campo.
type Kind int

const (
	String Kind = iota
	Number
	Bool
	Any
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	default:
		return "any"
	}
}

// ParseKind converte o kind declarado em extra_fields; vazio vale string.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string":
		return String, nil
	case "number":
		return Number, nil
	case "bool":
		return Bool, nil
	case "any":
		return Any, nil
	}
	return String, fmt.Errorf("patch: unknown field kind %q", s)
}

// Field é um atributo atualizável de uma entidade.
type Field struct {
	Name     string
	Kind     Kind
	Reserved bool
}

// Schema é a lista ordenada dos campos atualizáveis de uma entidade.
// É imutável depois de criado e pode ser compartilhado entre goroutines.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema valida os campos e marca como reservados os nomes que colidem
// com a tabela do DynamoDB, mesmo que o chamador não tenha marcado.
func NewSchema(fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("patch: schema has no fields")
	}

	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if !validName(f.Name) {
			return nil, fmt.Errorf("patch: invalid field name %q", f.Name)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("patch: duplicate field %q", f.Name)
		}
		if IsReserved(f.Name) {
			f.Reserved = true
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustSchema é como NewSchema, mas entra em pânico em caso de erro.
// Usado apenas nas definições estáticas das entidades.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Extend devolve um novo schema com fields depois dos campos atuais.
func (s *Schema) Extend(fields ...Field) (*Schema, error) {
	return NewSchema(append(s.Fields(), fields...)...)
}

// Fields devolve uma cópia dos campos, na ordem do schema.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// validName aceita apenas identificadores simples: o nome vira parte do
// texto da expressão (placeholder e alias).
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
