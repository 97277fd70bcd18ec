// Package dyndb fornece uma abstração genérica e fortemente tipada sobre o
// AWS DynamoDB Go SDK (v2).
//
// Visão Geral:
// O pacote `dyndb` oferece a interface `Store[T]`, usada pelos handlers de
// cada entidade do ledger (empréstimos, carteiras, ações, etc.) para ler e
// gravar itens sem lidar diretamente com AttributeValue.
//
// Funcionalidades Principais:
//   - CRUD Tipado: `Get`, `Put`, `Delete` (devolve o item apagado) e `Update`,
//     que recebe qualquer `UpdateExpression` já montada (ver pacote patch).
//   - Escrita Condicional: `UpdateOptions.MustExist` impede que um PATCH crie
//     itens novos.
//   - Batch: `BatchWrite` divide em lotes de 25 e reenvia UnprocessedItems.
//   - Builder Fluente: `Query().KeyEqual(...).FilterEqual(...).Exec(...)`.
//   - Paginação: `LastEvaluatedKey` vira um token base64 opaco; `All` percorre
//     todas as páginas e `AllSegments` faz Scan paralelo.
//   - Números: `Number` grava valores JSON numéricos como N sem perder precisão.
//   - Mocks: `MockStore` e `MockDynamoClient` para testes unitários.
//
// Exemplo:
//
//	type Wallet struct {
//		WalletID string `dynamodbav:"walletId"`
//		UserID   string `dynamodbav:"userId"`
//	}
//
//	store := dyndb.New(client, dyndb.TableConfig[Wallet]{
//		TableName: "Wallets", HashKey: "walletId", SortKey: "userId",
//	})
//
//	w, err := store.Get(ctx, "w1", "u1")
//	if errors.Is(err, dyndb.ErrNotFound) { /* ... */ }
//
//	page, next, err := store.Scan().FilterEqual("userId", "u1").Limit(50).Exec(ctx)
package dyndb
