// dyndb/store.go
package dyndb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	batchWriteLimit    = 25
	batchWriteAttempts = 5
)

// batchBackoff é variável para que os testes não durmam.
var batchBackoff = func(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 50 * time.Millisecond
}

type dynamoStore[T any] struct {
	client DynamoDBClient
	cfg    TableConfig[T]
}

// New cria um store reutilizável
func New[T any](client DynamoDBClient, cfg TableConfig[T]) Store[T] {
	return &dynamoStore[T]{
		client: client,
		cfg:    cfg,
	}
}

// key monta a chave primária; o sort key só entra quando configurado
func (s *dynamoStore[T]) key(hashKey, sortKey any) map[string]types.AttributeValue {
	key := map[string]types.AttributeValue{
		s.cfg.HashKey: attr(hashKey),
	}
	if s.cfg.SortKey != "" && sortKey != nil {
		key[s.cfg.SortKey] = attr(sortKey)
	}
	return key
}

// Get item por chave primária
func (s *dynamoStore[T]) Get(ctx context.Context, hashKey, sortKey any) (*T, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.cfg.TableName),
		Key:            s.key(hashKey, sortKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: get failed: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item T
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("dynamostore: unmarshal failed: %w", err)
	}
	return &item, nil
}

// Put item (upsert)
func (s *dynamoStore[T]) Put(ctx context.Context, item T) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("dynamostore: marshal failed: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.TableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamostore: put failed: %w", err)
	}
	return nil
}

// Update aplica um plano de atualização parcial e devolve os atributos
// alterados (UPDATED_NEW).
func (s *dynamoStore[T]) Update(ctx context.Context, hashKey, sortKey any, upd UpdateExpression, opts UpdateOptions) (*T, error) {
	if upd == nil || upd.Expression() == "" {
		return nil, fmt.Errorf("dynamostore: empty update expression")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.cfg.TableName),
		Key:                       s.key(hashKey, sortKey),
		UpdateExpression:          aws.String(upd.Expression()),
		ExpressionAttributeNames:  upd.AttributeNames(),
		ExpressionAttributeValues: upd.AttributeValues(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	}

	if opts.MustExist {
		cond, err := expression.NewBuilder().
			WithCondition(expression.AttributeExists(expression.Name(s.cfg.HashKey))).
			Build()
		if err != nil {
			return nil, fmt.Errorf("dynamostore: condition build failed: %w", err)
		}
		input.ConditionExpression = cond.Condition()
		input.ExpressionAttributeNames = mergeNames(input.ExpressionAttributeNames, cond.Names())
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: update failed: %w", err)
	}

	var item T
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, fmt.Errorf("dynamostore: unmarshal failed: %w", err)
	}
	return &item, nil
}

// Delete remove o item e devolve a versão apagada (ALL_OLD)
func (s *dynamoStore[T]) Delete(ctx context.Context, hashKey, sortKey any) (*T, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.cfg.TableName),
		Key:          s.key(hashKey, sortKey),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: delete failed: %w", err)
	}
	if len(out.Attributes) == 0 {
		return nil, ErrNotFound
	}

	var item T
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, fmt.Errorf("dynamostore: unmarshal failed: %w", err)
	}
	return &item, nil
}

// BatchWrite: puts + deletes (máx 25 por chamada)
func (s *dynamoStore[T]) BatchWrite(ctx context.Context, puts []T, deletes [][2]any) error {
	var writeRequests []types.WriteRequest

	for _, item := range puts {
		itemMap, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("batchwrite: marshal put item failed: %w", err)
		}
		writeRequests = append(writeRequests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: itemMap},
		})
	}

	for _, k := range deletes {
		writeRequests = append(writeRequests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: s.key(k[0], k[1])},
		})
	}

	for i := 0; i < len(writeRequests); i += batchWriteLimit {
		end := min(i+batchWriteLimit, len(writeRequests))
		if err := s.writeChunk(ctx, writeRequests[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// writeChunk reenvia os UnprocessedItems com backoff exponencial
func (s *dynamoStore[T]) writeChunk(ctx context.Context, chunk []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.cfg.TableName: chunk}

	for attempt := 0; attempt < batchWriteAttempts; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("batchwrite failed: %w", err)
		}
		if len(out.UnprocessedItems[s.cfg.TableName]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(batchBackoff(attempt)):
		}
	}
	return fmt.Errorf("batchwrite: %d items left unprocessed", len(pending[s.cfg.TableName]))
}

func mergeNames(a, b map[string]string) map[string]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// attr converte qualquer valor para types.AttributeValue
func attr(v any) types.AttributeValue {
	if v == nil {
		return &types.AttributeValueMemberNULL{Value: true}
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return &types.AttributeValueMemberNULL{Value: true}
	}
	return av
}
