package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/raywall/fast-ledger-service/pkg/config"
)

// Violation é retornada quando uma regra reprova o payload.
type Violation struct {
	RuleID string
	Code   int
	Msg    string
	// Cause é preenchido quando a expressão falhou ao executar
	// (ex.: campo ausente sem has()).
	Cause error
}

func (v *Violation) Error() string {
	if v.Cause != nil {
		return fmt.Sprintf("rule %s: %s (%v)", v.RuleID, v.Msg, v.Cause)
	}
	return fmt.Sprintf("rule %s: %s", v.RuleID, v.Msg)
}

func (v *Violation) Unwrap() error { return v.Cause }

type compiled struct {
	conf config.ValidationRule
	prg  cel.Program
}

// RuleSet são as regras compiladas de uma entidade. Seguro para uso
// concorrente: cel.Program não guarda estado entre avaliações.
type RuleSet struct {
	entity string
	rules  []compiled
}

// Len devolve a quantidade de regras.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Check avalia, em ordem, as regras que se aplicam à operação e retorna a
// primeira violação. Erro de execução conta como reprovação.
func (rs *RuleSet) Check(op string, input, keys map[string]any) error {
	if rs == nil {
		return nil
	}
	vars := map[string]any{
		"op":    op,
		"input": input,
		"keys":  keys,
	}
	for _, r := range rs.rules {
		if !r.conf.AppliesTo(op) {
			continue
		}

		out, _, err := r.prg.Eval(vars)
		if err != nil {
			return &Violation{RuleID: r.conf.ID, Code: r.conf.OnFail.Code, Msg: r.conf.OnFail.Msg, Cause: err}
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return &Violation{
				RuleID: r.conf.ID, Code: r.conf.OnFail.Code, Msg: r.conf.OnFail.Msg,
				Cause: fmt.Errorf("resultado não é booleano: %T", out.Value()),
			}
		}
		if !ok {
			return &Violation{RuleID: r.conf.ID, Code: r.conf.OnFail.Code, Msg: r.conf.OnFail.Msg}
		}
	}
	return nil
}
