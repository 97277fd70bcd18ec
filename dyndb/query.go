// dyndb/query.go
package dyndb

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"
)

// === MÉTODOS FLUENTES ===

func (qb *QueryBuilder[T]) Index(name string) *QueryBuilder[T] {
	qb.indexName = aws.String(name)
	return qb
}

func (qb *QueryBuilder[T]) KeyEqual(key string, value any) *QueryBuilder[T] {
	cond := expression.KeyEqual(expression.Key(key), expression.Value(value))
	if qb.keyCond == nil {
		qb.keyCond = &cond
	} else {
		tmp := qb.keyCond.And(cond)
		qb.keyCond = &tmp
	}
	return qb
}

func (qb *QueryBuilder[T]) FilterEqual(field string, value any) *QueryBuilder[T] {
	cond := expression.Equal(expression.Name(field), expression.Value(value))
	if qb.filterCond == nil {
		qb.filterCond = &cond
	} else {
		tmp := qb.filterCond.And(cond)
		qb.filterCond = &tmp
	}
	return qb
}

func (qb *QueryBuilder[T]) Limit(n int32) *QueryBuilder[T] {
	if n > 0 {
		qb.limit = &n
	}
	return qb
}

// LastKey retoma a paginação a partir de um token devolvido por Exec.
// Um token inválido é reportado por Exec como ErrInvalidToken.
func (qb *QueryBuilder[T]) LastKey(token string) *QueryBuilder[T] {
	if token == "" {
		return qb
	}
	key, err := DecodeToken(token)
	if err != nil {
		qb.tokenErr = err
		return qb
	}
	qb.lastKey = key
	return qb
}

// Query inicia uma Query
func (s *dynamoStore[T]) Query() *QueryBuilder[T] {
	return &QueryBuilder[T]{
		store:       s,
		scanForward: aws.Bool(true),
	}
}

// Scan inicia um Scan
func (s *dynamoStore[T]) Scan() *QueryBuilder[T] {
	return &QueryBuilder[T]{
		store:  s,
		isScan: true,
	}
}

// Exec executa uma única página da consulta e devolve o token da próxima
func (qb *QueryBuilder[T]) Exec(ctx context.Context) ([]T, string, error) {
	if qb.tokenErr != nil {
		return nil, "", qb.tokenErr
	}
	expr, err := qb.build()
	if err != nil {
		return nil, "", err
	}

	items, lastKey, err := qb.page(ctx, expr, qb.lastKey, nil)
	if err != nil {
		return nil, "", err
	}
	return qb.unmarshalResults(items, lastKey)
}

// All percorre todas as páginas seguindo o LastEvaluatedKey até o fim
func (qb *QueryBuilder[T]) All(ctx context.Context) ([]T, error) {
	if qb.tokenErr != nil {
		return nil, qb.tokenErr
	}
	expr, err := qb.build()
	if err != nil {
		return nil, err
	}

	raw, err := qb.drain(ctx, expr, nil)
	if err != nil {
		return nil, err
	}
	result, _, err := qb.unmarshalResults(raw, nil)
	return result, err
}

// AllSegments executa um Scan paralelo com o número de segmentos informado.
// A ordem do resultado segue a ordem dos segmentos.
func (qb *QueryBuilder[T]) AllSegments(ctx context.Context, segments int32) ([]T, error) {
	if !qb.isScan || segments <= 1 {
		return qb.All(ctx)
	}
	expr, err := qb.build()
	if err != nil {
		return nil, err
	}

	parts := make([][]map[string]types.AttributeValue, segments)
	g, gctx := errgroup.WithContext(ctx)
	for i := int32(0); i < segments; i++ {
		seg := &segment{index: i, total: segments}
		g.Go(func() error {
			items, err := qb.drain(gctx, expr, seg)
			if err != nil {
				return err
			}
			parts[seg.index] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var raw []map[string]types.AttributeValue
	for _, p := range parts {
		raw = append(raw, p...)
	}
	result, _, err := qb.unmarshalResults(raw, nil)
	return result, err
}

type segment struct {
	index int32
	total int32
}

func (qb *QueryBuilder[T]) build() (expression.Expression, error) {
	if qb.keyCond == nil && qb.filterCond == nil {
		return expression.Expression{}, nil
	}

	builder := expression.NewBuilder()
	if qb.keyCond != nil {
		builder = builder.WithKeyCondition(*qb.keyCond)
	}
	if qb.filterCond != nil {
		builder = builder.WithFilter(*qb.filterCond)
	}
	expr, err := builder.Build()
	if err != nil {
		return expression.Expression{}, fmt.Errorf("dyndb: expression build failed: %w", err)
	}
	return expr, nil
}

func (qb *QueryBuilder[T]) drain(ctx context.Context, expr expression.Expression, seg *segment) ([]map[string]types.AttributeValue, error) {
	var (
		all     []map[string]types.AttributeValue
		lastKey = qb.lastKey
	)
	for {
		items, next, err := qb.page(ctx, expr, lastKey, seg)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(next) == 0 {
			return all, nil
		}
		lastKey = next
	}
}

func (qb *QueryBuilder[T]) page(
	ctx context.Context,
	expr expression.Expression,
	startKey map[string]types.AttributeValue,
	seg *segment,
) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
	if qb.isScan || qb.keyCond == nil {
		input := &dynamodb.ScanInput{
			TableName:                 aws.String(qb.store.cfg.TableName),
			IndexName:                 qb.indexName,
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			Limit:                     qb.limit,
			ExclusiveStartKey:         startKey,
		}
		if seg != nil {
			input.Segment = aws.Int32(seg.index)
			input.TotalSegments = aws.Int32(seg.total)
		}
		out, err := qb.store.client.Scan(ctx, input)
		if err != nil {
			return nil, nil, fmt.Errorf("dyndb: scan failed: %w", err)
		}
		return out.Items, out.LastEvaluatedKey, nil
	}

	out, err := qb.store.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(qb.store.cfg.TableName),
		IndexName:                 qb.indexName,
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     qb.limit,
		ScanIndexForward:          qb.scanForward,
		ExclusiveStartKey:         startKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dyndb: query failed: %w", err)
	}
	return out.Items, out.LastEvaluatedKey, nil
}

func (qb *QueryBuilder[T]) unmarshalResults(
	items []map[string]types.AttributeValue,
	lastKey map[string]types.AttributeValue,
) ([]T, string, error) {
	result := make([]T, 0, len(items))
	for _, item := range items {
		var t T
		if err := attributevalue.UnmarshalMap(item, &t); err != nil {
			return nil, "", fmt.Errorf("dyndb: unmarshal failed: %w", err)
		}
		result = append(result, t)
	}

	token, err := EncodeToken(lastKey)
	if err != nil {
		return nil, "", err
	}
	return result, token, nil
}

// EncodeToken serializa um LastEvaluatedKey em base64 (URL safe).
// Uma chave vazia gera token vazio.
func EncodeToken(lastKey map[string]types.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	var plain Item
	if err := attributevalue.UnmarshalMap(lastKey, &plain); err != nil {
		return "", fmt.Errorf("dyndb: encode token: %w", err)
	}
	b, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("dyndb: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeToken reconstrói o ExclusiveStartKey a partir do token.
func DecodeToken(token string) (map[string]types.AttributeValue, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var plain map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&plain); err != nil || len(plain) == 0 {
		return nil, ErrInvalidToken
	}

	key, err := attributevalue.MarshalMap(FromJSON(plain))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return key, nil
}
