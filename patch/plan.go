package patch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Assignment é um par alvo = placeholder da cláusula SET.
type Assignment struct {
	Field       string
	Target      string // nome cru ou alias (#campo)
	Placeholder string
	Value       any
}

// Plan é a expressão de atualização pronta para o UpdateItem.
// Implementa dyndb.UpdateExpression.
type Plan struct {
	Assignments []Assignment
	Clause      string
	Values      map[string]types.AttributeValue
	// Names é nil quando nenhum campo reservado foi tocado.
	Names map[string]string
}

func (p *Plan) Expression() string                               { return p.Clause }
func (p *Plan) AttributeNames() map[string]string                { return p.Names }
func (p *Plan) AttributeValues() map[string]types.AttributeValue { return p.Values }

// Fields devolve os nomes dos campos alterados, na ordem da cláusula.
func (p *Plan) Fields() []string {
	out := make([]string, len(p.Assignments))
	for i, a := range p.Assignments {
		out[i] = a.Field
	}
	return out
}

// BuildPlan normaliza os candidatos e monta o plano. Retorna
// ErrNothingToUpdate quando nada sobra após a normalização.
func (s *Schema) BuildPlan(c Candidates) (*Plan, error) {
	fs, err := s.Normalize(c)
	if err != nil {
		return nil, err
	}
	return Build(fs)
}

// Build monta o plano a partir de um conjunto já normalizado.
func Build(fs FieldSet) (*Plan, error) {
	if len(fs) == 0 {
		return nil, ErrNothingToUpdate
	}

	p := &Plan{
		Assignments: make([]Assignment, 0, len(fs)),
		Values:      make(map[string]types.AttributeValue, len(fs)),
	}
	sets := make([]string, 0, len(fs))

	for _, e := range fs {
		name := e.Field.Name
		a := Assignment{
			Field:       name,
			Target:      name,
			Placeholder: ":" + name,
			Value:       e.Value,
		}
		if e.Field.Reserved || IsReserved(name) {
			a.Target = "#" + name
			if p.Names == nil {
				p.Names = make(map[string]string)
			}
			p.Names[a.Target] = name
		}

		av, err := attributevalue.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("patch: marshal %s: %w", name, err)
		}
		p.Values[a.Placeholder] = av
		p.Assignments = append(p.Assignments, a)
		sets = append(sets, a.Target+" = "+a.Placeholder)
	}

	p.Clause = "SET " + strings.Join(sets, ", ")
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

var (
	placeholderRe = regexp.MustCompile(`:[A-Za-z0-9_]+`)
	aliasRe       = regexp.MustCompile(`#[A-Za-z0-9_]+`)
)

// Check garante que todo placeholder da cláusula tem valor, que todo valor é
// usado, e o mesmo para os aliases.
func (p *Plan) Check() error {
	used := make(map[string]bool)
	for _, ph := range placeholderRe.FindAllString(p.Clause, -1) {
		used[ph] = true
		if _, ok := p.Values[ph]; !ok {
			return fmt.Errorf("%w: %s has no value", ErrUnboundPlaceholder, ph)
		}
	}
	for ph := range p.Values {
		if !used[ph] {
			return fmt.Errorf("%w: value %s is not referenced", ErrUnboundPlaceholder, ph)
		}
	}

	aliases := make(map[string]bool)
	for _, al := range aliasRe.FindAllString(p.Clause, -1) {
		aliases[al] = true
		if _, ok := p.Names[al]; !ok {
			return fmt.Errorf("%w: alias %s has no name", ErrUnboundPlaceholder, al)
		}
	}
	for al := range p.Names {
		if !aliases[al] {
			return fmt.Errorf("%w: alias %s is not referenced", ErrUnboundPlaceholder, al)
		}
	}
	return nil
}
