// Package ledger_service reúne os serviços de backend do ledger pessoal:
// empréstimos, configurações do usuário, criptoativos, ações, transações,
// carteiras e patrimônio, todos servidos sobre DynamoDB a partir de eventos
// do API Gateway.
//
// Visão Geral:
// 1. Atualização parcial (patch): normaliza o corpo do PATCH e monta a
// expressão SET do UpdateItem, com aliases para palavras reservadas.
// 2. Entidades (ledger): catálogo das entidades, serviço CRUD por entidade e
// o handler que mapeia rotas e erros para respostas HTTP.
// 3. Persistência (dyndb): camada genérica e tipada sobre DynamoDB, com
// paginação por token e Scan paralelo.
// 4. Configuração (envloader, pkg/config, pkg/engine): variáveis de ambiente
// de bootstrap e YAML do serviço lido de arquivo, S3 ou DynamoDB, com hot
// reload via SQS.
//
// Binários:
//
//   - cmd/server: runtime "lambda" (lambda.Start) ou "local" (servidor HTTP
//     que converte cada requisição em evento do API Gateway).
//   - cmd/toolkit: validate, plan e seed.
//
// Exemplo de configuração:
//
//	version: "1.0"
//	service:
//	  name: ledger
//	  runtime: local
//	  port: 8080
//	  timeout: 5s
//	  logging: {enabled: true, level: info, format: console}
//	storage:
//	  endpoint: http://localhost:8000
//	entities:
//	  - name: loans
//	  - name: settings
//	  - name: transactions
//	    validations:
//	      - id: positive-amount
//	        expr: "!has(input.amount) || input.amount > 0.0"
//	        on_fail: {code: 422, msg: "amount must be positive"}
//
// Atualizando um empréstimo:
//
//	curl -X PATCH localhost:8080/loan \
//	  -d '{"loanId":"L1","userId":"U1","amount":120,"note":""}'
//
// gera `SET amount = :amount` (note vazio é ignorado) com a condição
// attribute_exists(loanId).
package ledger_service
