package ledger

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/raywall/fast-ledger-service/dyndb"
	"github.com/raywall/fast-ledger-service/patch"
)

// KeyError indica identificadores ausentes ou inválidos na requisição.
// A mensagem já está no formato devolvido ao cliente.
type KeyError struct {
	Field string
	Msg   string
}

func (e *KeyError) Error() string { return e.Msg }

// Keys é a chave primária já convertida para o tipo da tabela.
// Sort é nil em tabelas sem sort key.
type Keys struct {
	Hash any
	Sort any
}

// keyMap devolve a chave como mapa nome → valor, para as regras.
func (d *Definition) keyMap(k Keys) map[string]any {
	m := map[string]any{d.HashKey.Name: plainKey(k.Hash)}
	if d.SortKey != nil {
		m[d.SortKey.Name] = plainKey(k.Sort)
	}
	return m
}

func plainKey(v any) any {
	if n, ok := v.(dyndb.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}

func keyText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case dyndb.Number:
		return string(x)
	}
	return ""
}

// missingKeys é a mensagem usada quando algum identificador falta.
func (d *Definition) missingKeys() string {
	if d.SortKey == nil {
		return d.HashKey.Name + " is required"
	}
	return d.HashKey.Name + " and " + d.SortKey.Name + " are required"
}

// ParseKeys extrai e converte a chave a partir de valores da query string
// ou do corpo. missing é a mensagem devolvida quando algum valor falta.
func (d *Definition) ParseKeys(values map[string]any, missing string) (Keys, error) {
	if missing == "" {
		missing = d.missingKeys()
	}

	var k Keys
	hash, err := parseKey(d.HashKey, values[d.HashKey.Name], missing)
	if err != nil {
		return k, err
	}
	k.Hash = hash

	if d.SortKey != nil {
		sort, err := parseKey(*d.SortKey, values[d.SortKey.Name], missing)
		if err != nil {
			return k, err
		}
		k.Sort = sort
	}
	return k, nil
}

func parseKey(key Key, raw any, missing string) (any, error) {
	if raw == nil {
		return nil, &KeyError{Field: key.Name, Msg: missing}
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return nil, &KeyError{Field: key.Name, Msg: missing}
	}

	if key.Kind == patch.Number {
		var text string
		switch v := raw.(type) {
		case string:
			text = strings.TrimSpace(v)
		case json.Number:
			text = v.String()
		case dyndb.Number:
			text = string(v)
		case float64:
			if n, err := dyndb.FormatFloat(v, 64); err == nil {
				text = string(n)
			}
		case int:
			text = strconv.Itoa(v)
		}
		n, err := dyndb.ParseNumber(text)
		if err != nil {
			return nil, &KeyError{Field: key.Name, Msg: key.Name + " must be a valid number"}
		}
		return n, nil
	}

	s, ok := raw.(string)
	if !ok {
		return nil, &KeyError{Field: key.Name, Msg: key.Name + " must be a string"}
	}
	return s, nil
}

// queryValues converte a query string no formato aceito por ParseKeys.
func queryValues(params map[string]string) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
