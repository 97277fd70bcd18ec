// dyndb/mock.go
package dyndb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// MockStore é um mock da interface Store[T] para testes das camadas de cima.
//
// Cada campo de função, quando definido, substitui o comportamento padrão.
// Query e Scan sem função devolvem um builder sobre um MockDynamoClient
// vazio, cujo Exec retorna lista vazia.
type MockStore[T any] struct {
	GetFn        func(ctx context.Context, hashKey, sortKey any) (*T, error)
	PutFn        func(ctx context.Context, item T) error
	UpdateFn     func(ctx context.Context, hashKey, sortKey any, upd UpdateExpression, opts UpdateOptions) (*T, error)
	DeleteFn     func(ctx context.Context, hashKey, sortKey any) (*T, error)
	BatchWriteFn func(ctx context.Context, puts []T, deletes [][2]any) error
	QueryFn      func() *QueryBuilder[T]
	ScanFn       func() *QueryBuilder[T]
}

func (m *MockStore[T]) Get(ctx context.Context, hashKey, sortKey any) (*T, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, hashKey, sortKey)
	}
	return nil, ErrNotFound
}

func (m *MockStore[T]) Put(ctx context.Context, item T) error {
	if m.PutFn != nil {
		return m.PutFn(ctx, item)
	}
	return nil
}

func (m *MockStore[T]) Update(ctx context.Context, hashKey, sortKey any, upd UpdateExpression, opts UpdateOptions) (*T, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, hashKey, sortKey, upd, opts)
	}
	return new(T), nil
}

func (m *MockStore[T]) Delete(ctx context.Context, hashKey, sortKey any) (*T, error) {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, hashKey, sortKey)
	}
	return nil, ErrNotFound
}

func (m *MockStore[T]) BatchWrite(ctx context.Context, puts []T, deletes [][2]any) error {
	if m.BatchWriteFn != nil {
		return m.BatchWriteFn(ctx, puts, deletes)
	}
	return nil
}

func (m *MockStore[T]) Query() *QueryBuilder[T] {
	if m.QueryFn != nil {
		return m.QueryFn()
	}
	return New(&MockDynamoClient{}, TableConfig[T]{TableName: "mock"}).Query()
}

func (m *MockStore[T]) Scan() *QueryBuilder[T] {
	if m.ScanFn != nil {
		return m.ScanFn()
	}
	return New(&MockDynamoClient{}, TableConfig[T]{TableName: "mock"}).Scan()
}

// MockDynamoClient é um mock para a interface DynamoDBClient de baixo nível.
//
// Sem função definida, leituras retornam saídas vazias e escritas sucesso.
type MockDynamoClient struct {
	GetItemFn        func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItemFn        func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItemFn     func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItemFn     func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItemFn func(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	QueryFn          func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	ScanFn           func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

func (m *MockDynamoClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.GetItemFn != nil {
		return m.GetItemFn(ctx, params, optFns...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *MockDynamoClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.PutItemFn != nil {
		return m.PutItemFn(ctx, params, optFns...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *MockDynamoClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.UpdateItemFn != nil {
		return m.UpdateItemFn(ctx, params, optFns...)
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *MockDynamoClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.DeleteItemFn != nil {
		return m.DeleteItemFn(ctx, params, optFns...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *MockDynamoClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if m.BatchWriteItemFn != nil {
		return m.BatchWriteItemFn(ctx, params, optFns...)
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (m *MockDynamoClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.QueryFn != nil {
		return m.QueryFn(ctx, params, optFns...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *MockDynamoClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.ScanFn != nil {
		return m.ScanFn(ctx, params, optFns...)
	}
	return &dynamodb.ScanOutput{}, nil
}
