// Package patch monta expressões de atualização parcial (SET) para o
// DynamoDB a partir de um corpo de requisição esparso.
//
// Cada entidade declara um Schema: a lista ordenada dos campos atualizáveis,
// com o tipo esperado e a marca de palavra reservada. BuildPlan aplica o
// filtro de presença (ausente, null ou texto em branco ficam de fora; zero e
// false entram), converte os valores e devolve um Plan:
//
//	schema := patch.MustSchema(
//		patch.Field{Name: "type"},
//		patch.Field{Name: "amount", Kind: patch.Number},
//	)
//	plan, err := schema.BuildPlan(patch.Candidates{"type": "gift", "amount": 0})
//	// plan.Clause == "SET #type = :type, amount = :amount"
//	// plan.Names  == map[string]string{"#type": "type"}
//
// Quando nada sobra, BuildPlan retorna ErrNothingToUpdate. O pacote não faz
// I/O e não guarda estado: o mesmo Schema pode ser usado por várias goroutines.
package patch
