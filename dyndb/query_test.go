// dyndb/query_test.go
package dyndb_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/raywall/fast-ledger-service/dyndb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestScan_Exec_ReturnsNextToken(t *testing.T) {
	t.Parallel()

	mockClient := &MockDynamoClient{}
	store := createLoanStore(mockClient)

	mockClient.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return aws.ToString(in.TableName) == "Loans" &&
			in.FilterExpression != nil &&
			aws.ToInt32(in.Limit) == 1
	})).Return(&dynamodb.ScanOutput{
		Items: []map[string]types.AttributeValue{
			{"loanId": strAV("L1"), "userId": strAV("U1")},
		},
		LastEvaluatedKey: map[string]types.AttributeValue{
			"loanId": strAV("L1"), "userId": strAV("U1"),
		},
	}, nil)

	items, next, err := store.Scan().FilterEqual("userId", "U1").Limit(1).Exec(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "L1", items[0].LoanID)
	assert.NotEmpty(t, next)

	key, err := dyndb.DecodeToken(next)
	require.NoError(t, err)
	assert.Equal(t, strAV("L1"), key["loanId"])
}

func TestScan_Exec_ResumesFromToken(t *testing.T) {
	t.Parallel()

	mockClient := &MockDynamoClient{}
	store := createLoanStore(mockClient)

	start := map[string]types.AttributeValue{"loanId": strAV("L9"), "userId": strAV("U1")}
	token, err := dyndb.EncodeToken(start)
	require.NoError(t, err)

	mockClient.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return assert.ObjectsAreEqual(start, in.ExclusiveStartKey)
	})).Return(&dynamodb.ScanOutput{}, nil)

	items, next, err := store.Scan().LastKey(token).Exec(context.Background())

	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, next)
	mockClient.AssertExpectations(t)
}

func TestExec_InvalidToken(t *testing.T) {
	t.Parallel()

	mockClient := &MockDynamoClient{}
	store := createLoanStore(mockClient)

	for _, token := range []string{"%%%", "bm90LWpzb24", "e30"} {
		_, _, err := store.Scan().LastKey(token).Exec(context.Background())
		assert.ErrorIs(t, err, dyndb.ErrInvalidToken, token)
	}
	mockClient.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
}

func TestToken_NumericKeyRoundTrip(t *testing.T) {
	t.Parallel()

	key := map[string]types.AttributeValue{
		"transId":  numAV("1700000000000000123"),
		"username": strAV("ana"),
	}

	token, err := dyndb.EncodeToken(key)
	require.NoError(t, err)

	decoded, err := dyndb.DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, key, decoded)
}

func TestToken_EmptyKey(t *testing.T) {
	t.Parallel()

	token, err := dyndb.EncodeToken(nil)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestQuery_UsesKeyCondition(t *testing.T) {
	t.Parallel()

	mockClient := &MockDynamoClient{}
	store := createLoanStore(mockClient)

	mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.KeyConditionExpression != nil &&
			aws.ToString(in.IndexName) == "userId-index" &&
			aws.ToBool(in.ScanIndexForward)
	})).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			{"loanId": strAV("L1"), "userId": strAV("U1")},
			{"loanId": strAV("L2"), "userId": strAV("U1")},
		},
	}, nil)

	items, next, err := store.Query().
		Index("userId-index").
		KeyEqual("userId", "U1").
		Exec(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Empty(t, next)
}

func TestScan_All_FollowsPages(t *testing.T) {
	t.Parallel()

	mockClient := &MockDynamoClient{}
	store := createLoanStore(mockClient)

	page2 := map[string]types.AttributeValue{"loanId": strAV("L1"), "userId": strAV("U1")}

	mockClient.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return in.ExclusiveStartKey == nil
	})).Return(&dynamodb.ScanOutput{
		Items:            []map[string]types.AttributeValue{{"loanId": strAV("L1"), "userId": strAV("U1")}},
		LastEvaluatedKey: page2,
	}, nil).Once()
	mockClient.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return in.ExclusiveStartKey != nil
	})).Return(&dynamodb.ScanOutput{
		Items: []map[string]types.AttributeValue{{"loanId": strAV("L2"), "userId": strAV("U1")}},
	}, nil).Once()

	items, err := store.Scan().All(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "L2", items[1].LoanID)
	mockClient.AssertExpectations(t)
}

func TestScan_AllSegments(t *testing.T) {
	t.Parallel()

	client := &dyndb.MockDynamoClient{
		ScanFn: func(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			seg := aws.ToInt32(in.Segment)
			if aws.ToInt32(in.TotalSegments) != 3 {
				return nil, errors.New("unexpected total segments")
			}
			id := string(rune('A' + seg))
			return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{
				{"loanId": strAV(id), "userId": strAV("U1")},
			}}, nil
		},
	}
	store := dyndb.New(client, dyndb.TableConfig[Loan]{TableName: "Loans", HashKey: "loanId", SortKey: "userId"})

	items, err := store.Scan().FilterEqual("userId", "U1").AllSegments(context.Background(), 3)

	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.LoanID)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"A", "B", "C"}, ids)
}

func TestScan_AllSegments_PropagatesError(t *testing.T) {
	t.Parallel()

	client := &dyndb.MockDynamoClient{
		ScanFn: func(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			if aws.ToInt32(in.Segment) == 1 {
				return nil, errors.New("boom")
			}
			return &dynamodb.ScanOutput{}, nil
		},
	}
	store := dyndb.New(client, dyndb.TableConfig[Loan]{TableName: "Loans", HashKey: "loanId", SortKey: "userId"})

	_, err := store.Scan().AllSegments(context.Background(), 2)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestMockStore_Defaults(t *testing.T) {
	t.Parallel()

	m := &dyndb.MockStore[Loan]{}

	_, err := m.Get(context.Background(), "L1", "U1")
	assert.ErrorIs(t, err, dyndb.ErrNotFound)

	items, next, err := m.Scan().Exec(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, next)
}
