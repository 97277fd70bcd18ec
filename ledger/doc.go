/*
Package ledger expõe as entidades do controle financeiro (loans, settings,
cryptos, stocks, transactions, wallets e assets) como handlers do API Gateway.

Cada entidade é uma Definition do catálogo embutido: tabela, chave primária,
rotas e o schema dos campos atualizáveis. O Service executa as operações
sobre um dyndb.Store compartilhado e o Handler roteia os eventos, traduzindo
erros em respostas JSON.

	svc, _ := ledger.NewService(def, dyndb.New[dyndb.Item](client, tableCfg), ledger.Options{MustExist: true})
	h, _ := ledger.NewHandler(recorder, svc)
	resp, _ := h.Handle(ctx, event)

O PATCH nunca monta a expressão de atualização a partir do corpo cru: os
valores passam pelo patch.Schema da entidade, que gera a cláusula SET com
placeholders e aliases apenas para palavras reservadas.
*/
package ledger
