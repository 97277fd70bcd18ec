package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/raywall/fast-ledger-service/pkg/config"
)

// RuleManager gerencia a compilação e avaliação de expressões CEL.
type RuleManager struct {
	env *cel.Env
}

// NewRuleManager inicializa o ambiente CEL com as variáveis disponíveis às
// regras de validação das entidades.
func NewRuleManager() (*RuleManager, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.DynType), // corpo da requisição (campos conhecidos)
		cel.Variable("keys", cel.DynType),  // hash e sort key do item
		cel.Variable("op", cel.StringType), // "create" ou "update"
	)
	if err != nil {
		return nil, fmt.Errorf("erro fatal CEL init: %w", err)
	}

	return &RuleManager{env: env}, nil
}

// CompileProgram expõe a compilação do CEL.
func (rm *RuleManager) CompileProgram(expr string) (cel.Program, error) {
	ast, issues := rm.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("erro de compilação CEL '%s': %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("expressão CEL '%s' não retorna booleano", expr)
	}
	prg, err := rm.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("erro ao gerar programa CEL: %w", err)
	}
	return prg, nil
}

// Compile prepara as regras de uma entidade. Falhas de compilação aparecem
// no boot (ou no `toolkit validate`), nunca durante uma requisição.
func (rm *RuleManager) Compile(entity string, conf []config.ValidationRule) (*RuleSet, error) {
	rs := &RuleSet{entity: entity}
	for _, r := range conf {
		prg, err := rm.CompileProgram(r.Expr)
		if err != nil {
			return nil, fmt.Errorf("regra '%s' da entidade '%s': %w", r.ID, entity, err)
		}
		rs.rules = append(rs.rules, compiled{conf: r, prg: prg})
	}
	return rs, nil
}
