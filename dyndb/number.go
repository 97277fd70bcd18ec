package dyndb

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Number representa um número DynamoDB (N) preservando o texto original.
//
// Corpos JSON são decodificados com UseNumber; sem essa conversão um
// json.Number seria gravado como string (S).
type Number string

// MarshalDynamoDBAttributeValue implementa attributevalue.Marshaler.
func (n Number) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: string(n)}, nil
}

// UnmarshalDynamoDBAttributeValue implementa attributevalue.Unmarshaler.
// Aceita N e também S numérico, gravado por versões antigas das lambdas.
func (n *Number) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		*n = Number(v.Value)
	case *types.AttributeValueMemberS:
		num, err := ParseNumber(v.Value)
		if err != nil {
			return fmt.Errorf("dyndb: %q is not a number", v.Value)
		}
		*n = num
	case *types.AttributeValueMemberNULL:
		*n = ""
	default:
		return fmt.Errorf("dyndb: cannot unmarshal %T into Number", av)
	}
	return nil
}

// MarshalJSON emite o número sem aspas.
func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

// UnmarshalJSON aceita tanto 12.5 quanto "12.5".
func (n *Number) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		*n = ""
		return nil
	}
	num, err := ParseNumber(raw)
	if err != nil {
		return fmt.Errorf("dyndb: %s is not a number", b)
	}
	*n = num
	return nil
}

// Float64 converte o número para float64.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// ErrInvalidNumber indica um texto fora da gramática ou da faixa aceita
// pelo DynamoDB para atributos N.
var ErrInvalidNumber = errors.New("dyndb: invalid number")

var (
	numberGrammar = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

	// Magnitudes aceitas: 1E-130 até 9.99...E+125, com até 38 dígitos.
	minMagnitude = mustBig("1e-130")
	maxMagnitude = mustBig("1e126")
)

const maxDigits = 38

func mustBig(s string) *big.Float {
	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseNumber valida um texto numérico e retorna o Number correspondente.
// NaN, infinitos e hexadecimais são recusados, assim como valores que o
// DynamoDB não consegue representar.
func ParseNumber(s string) (Number, error) {
	if !numberGrammar.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}

	mantissa := strings.TrimLeft(s, "+-")
	if i := strings.IndexAny(mantissa, "eE"); i >= 0 {
		mantissa = mantissa[:i]
	}
	digits := strings.Trim(strings.Replace(mantissa, ".", "", 1), "0")
	if len(digits) > maxDigits {
		return "", fmt.Errorf("%w: %q has more than %d significant digits", ErrInvalidNumber, s, maxDigits)
	}
	if digits == "" {
		return Number(s), nil
	}

	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	f.Abs(f)
	if f.Cmp(minMagnitude) < 0 || f.Cmp(maxMagnitude) >= 0 {
		return "", fmt.Errorf("%w: %q is out of range", ErrInvalidNumber, s)
	}
	return Number(s), nil
}

// FormatFloat converte um float64 em Number, recusando NaN, infinitos e
// valores fora da faixa.
func FormatFloat(f float64, bitSize int) (Number, error) {
	return ParseNumber(strconv.FormatFloat(f, 'f', -1, bitSize))
}

// FromJSON converte recursivamente os json.Number de um valor decodificado
// em Number, para que mapas e listas aninhados sejam gravados como N.
func FromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		return Number(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = FromJSON(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = FromJSON(val)
		}
		return out
	default:
		return v
	}
}
