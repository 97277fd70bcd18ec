package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrNothingToUpdate indica que nenhum campo sobrou após a normalização.
	// É um erro do cliente (400), nunca uma falha do servidor.
	ErrNothingToUpdate = errors.New("patch: no fields to update")

	// ErrUnboundPlaceholder indica um placeholder usado na cláusula sem valor
	// associado (ou um valor sem placeholder).
	ErrUnboundPlaceholder = errors.New("patch: placeholder not bound")
)

// FieldError descreve um valor incompatível com o tipo declarado do campo.
type FieldError struct {
	Field  string
	Kind   Kind
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s must be a %s: %s", e.Field, e.Kind, e.Reason)
}
