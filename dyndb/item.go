package dyndb

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item é um documento sem schema fixo, usado pelas entidades do ledger.
//
// Na leitura, atributos N viram Number (e não float64), preservando o texto
// gravado; conjuntos viram listas.
type Item map[string]any

// UnmarshalDynamoDBAttributeValue implementa attributevalue.Unmarshaler.
func (it *Item) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return fmt.Errorf("dyndb: cannot unmarshal %T into Item", av)
	}
	out := make(Item, len(m.Value))
	for k, v := range m.Value {
		val, err := plain(v)
		if err != nil {
			return fmt.Errorf("dyndb: attribute %s: %w", k, err)
		}
		out[k] = val
	}
	*it = out
	return nil
}

// String devolve o atributo como texto; vazio quando ausente.
func (it Item) String(name string) string {
	switch v := it[name].(type) {
	case string:
		return v
	case Number:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func plain(av types.AttributeValue) (any, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return Number(v.Value), nil
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberB:
		return v.Value, nil
	case *types.AttributeValueMemberSS:
		return v.Value, nil
	case *types.AttributeValueMemberNS:
		out := make([]Number, len(v.Value))
		for i, s := range v.Value {
			out[i] = Number(s)
		}
		return out, nil
	case *types.AttributeValueMemberBS:
		return v.Value, nil
	case *types.AttributeValueMemberL:
		out := make([]any, len(v.Value))
		for i, e := range v.Value {
			val, err := plain(e)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(v.Value))
		for k, e := range v.Value {
			val, err := plain(e)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", av)
	}
}
