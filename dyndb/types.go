// dyndb/types.go
package dyndb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrNotFound – erro padrão quando o item não existe
	ErrNotFound = errors.New("dyndb: item not found")

	// ErrInvalidToken é retornado quando o token de paginação não pode ser decodificado
	ErrInvalidToken = errors.New("dyndb: invalid pagination token")
)

// DynamoDBClient interface para abstrair o cliente DynamoDB
type DynamoDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// UpdateExpression é o contrato de um plano de atualização parcial já montado.
//
// AttributeNames deve retornar nil quando nenhum alias for necessário: o
// DynamoDB rejeita um ExpressionAttributeNames presente porém vazio.
type UpdateExpression interface {
	Expression() string
	AttributeNames() map[string]string
	AttributeValues() map[string]types.AttributeValue
}

// UpdateOptions controla a chamada UpdateItem
type UpdateOptions struct {
	// MustExist adiciona a condição attribute_exists(<hash key>), impedindo
	// que o UpdateItem crie um item novo.
	MustExist bool
}

// Store: interface principal (genérica)
type Store[T any] interface {
	Get(ctx context.Context, hashKey, sortKey any) (*T, error)
	Put(ctx context.Context, item T) error
	Update(ctx context.Context, hashKey, sortKey any, upd UpdateExpression, opts UpdateOptions) (*T, error)
	Delete(ctx context.Context, hashKey, sortKey any) (*T, error)

	BatchWrite(ctx context.Context, puts []T, deletes [][2]any) error

	// Query e Scan retornam QueryBuilder[T]
	Query() *QueryBuilder[T]
	Scan() *QueryBuilder[T]
}

// TableConfig: configuração da tabela
type TableConfig[T any] struct {
	TableName string `env:"DYNAMODB_TABLE_NAME"`
	HashKey   string `env:"DYNAMODB_HASH_KEY"`
	SortKey   string `env:"DYNAMODB_SORT_KEY"` // opcional
}

// QueryBuilder: o builder fluente
type QueryBuilder[T any] struct {
	store       *dynamoStore[T]
	keyCond     *expression.KeyConditionBuilder
	filterCond  *expression.ConditionBuilder
	indexName   *string
	limit       *int32
	lastKey     map[string]types.AttributeValue
	tokenErr    error
	scanForward *bool
	isScan      bool
}
