// Copyright 2025 Raywall Malheiros de Souza
// Licensed under the Mozilla Public License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.mozilla.org/en-US/MPL/2.0/
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package dyndb_test

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/raywall/fast-ledger-service/dyndb"
	"github.com/stretchr/testify/mock"
)

// MockDynamoClient é um mock (testify) para a interface DynamoDBClient
type MockDynamoClient struct {
	mock.Mock
}

func (m *MockDynamoClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.GetItemOutput), args.Error(1)
}

func (m *MockDynamoClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.PutItemOutput), args.Error(1)
}

func (m *MockDynamoClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.UpdateItemOutput), args.Error(1)
}

func (m *MockDynamoClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.DeleteItemOutput), args.Error(1)
}

func (m *MockDynamoClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.BatchWriteItemOutput), args.Error(1)
}

func (m *MockDynamoClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.QueryOutput), args.Error(1)
}

func (m *MockDynamoClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.ScanOutput), args.Error(1)
}

// Loan é uma estrutura de teste com hash e sort key
type Loan struct {
	LoanID string       `dynamodbav:"loanId" json:"loanId"`
	UserID string       `dynamodbav:"userId" json:"userId"`
	Type   string       `dynamodbav:"type,omitempty" json:"type,omitempty"`
	Amount dyndb.Number `dynamodbav:"amount,omitempty" json:"amount,omitempty"`
}

// Setting é uma estrutura de teste só com hash key
type Setting struct {
	UserID   string `dynamodbav:"userId"`
	Currency string `dynamodbav:"currency"`
}

// staticUpdate implementa dyndb.UpdateExpression para os testes do store
type staticUpdate struct {
	expr   string
	names  map[string]string
	values map[string]types.AttributeValue
}

func (u staticUpdate) Expression() string                               { return u.expr }
func (u staticUpdate) AttributeNames() map[string]string                { return u.names }
func (u staticUpdate) AttributeValues() map[string]types.AttributeValue { return u.values }

func createLoanStore(client *MockDynamoClient) dyndb.Store[Loan] {
	return dyndb.New(client, dyndb.TableConfig[Loan]{
		TableName: "Loans",
		HashKey:   "loanId",
		SortKey:   "userId",
	})
}

func createSettingStore(client *MockDynamoClient) dyndb.Store[Setting] {
	return dyndb.New(client, dyndb.TableConfig[Setting]{
		TableName: "Settings",
		HashKey:   "userId",
	})
}

func strAV(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func numAV(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }
