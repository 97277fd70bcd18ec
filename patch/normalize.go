package patch

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/raywall/fast-ledger-service/dyndb"
)

// Candidates são os valores brutos recebidos no corpo da requisição,
// indexados pelo nome do campo. Chaves fora do schema são ignoradas.
type Candidates map[string]any

// Entry é um campo presente após a normalização.
type Entry struct {
	Field Field
	Value any
}

// FieldSet é o conjunto normalizado, na ordem do schema.
type FieldSet []Entry

func (fs FieldSet) Len() int { return len(fs) }

// Names devolve os nomes dos campos, na ordem.
func (fs FieldSet) Names() []string {
	out := make([]string, len(fs))
	for i, e := range fs {
		out[i] = e.Field.Name
	}
	return out
}

// Map devolve os valores como tipos nativos (números em float64), no formato
// esperado pelas regras CEL.
func (fs FieldSet) Map() map[string]any {
	out := make(map[string]any, len(fs))
	for _, e := range fs {
		out[e.Field.Name] = native(e.Value)
	}
	return out
}

// Normalize aplica o filtro de presença: ausente, null e texto só com espaços
// ficam de fora; zero e false entram. Os valores presentes são convertidos
// para o tipo declarado do campo.
func (s *Schema) Normalize(c Candidates) (FieldSet, error) {
	var fs FieldSet
	for _, f := range s.fields {
		raw, ok := c[f.Name]
		if !ok || blank(raw) {
			continue
		}
		v, err := coerce(f, raw)
		if err != nil {
			return nil, err
		}
		fs = append(fs, Entry{Field: f, Value: v})
	}
	return fs, nil
}

func blank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case dyndb.Number:
		return strings.TrimSpace(string(x)) == ""
	}
	return false
}

func coerce(f Field, raw any) (any, error) {
	switch f.Kind {
	case String:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return nil, &FieldError{Field: f.Name, Kind: f.Kind, Reason: "got " + typeName(raw)}

	case Number:
		n, ok := toNumber(raw)
		if !ok {
			reason := "got " + typeName(raw)
			if t := typeName(raw); t == "number" || t == "string" {
				reason = "out of DynamoDB number range or format"
			}
			return nil, &FieldError{Field: f.Name, Kind: f.Kind, Reason: reason}
		}
		return n, nil

	case Bool:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return parsed, nil
			}
		}
		return nil, &FieldError{Field: f.Name, Kind: f.Kind, Reason: "got " + typeName(raw)}
	}

	return dyndb.FromJSON(raw), nil
}

func toNumber(raw any) (dyndb.Number, bool) {
	var (
		n   dyndb.Number
		err error
	)
	switch v := raw.(type) {
	case dyndb.Number:
		n, err = dyndb.ParseNumber(string(v))
	case json.Number:
		n, err = dyndb.ParseNumber(v.String())
	case string:
		n, err = dyndb.ParseNumber(strings.TrimSpace(v))
	case float64:
		n, err = dyndb.FormatFloat(v, 64)
	case float32:
		n, err = dyndb.FormatFloat(float64(v), 32)
	case int:
		n = dyndb.Number(strconv.Itoa(v))
	case int64:
		n = dyndb.Number(strconv.FormatInt(v, 10))
	case int32:
		n = dyndb.Number(strconv.FormatInt(int64(v), 10))
	case uint64:
		n = dyndb.Number(strconv.FormatUint(v, 10))
	default:
		return "", false
	}
	return n, err == nil
}

func native(v any) any {
	switch x := v.(type) {
	case dyndb.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return string(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = native(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = native(e)
		}
		return out
	}
	return v
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, dyndb.Number, float64, float32, int, int32, int64, uint64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return "unsupported value"
}
