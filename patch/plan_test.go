package patch_test

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/raywall/fast-ledger-service/dyndb"
	"github.com/raywall/fast-ledger-service/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loanSchema() *patch.Schema {
	return patch.MustSchema(
		patch.Field{Name: "type"},
		patch.Field{Name: "counterparty"},
		patch.Field{Name: "tdate"},
		patch.Field{Name: "ddate"},
		patch.Field{Name: "fromWallet"},
		patch.Field{Name: "toWallet"},
		patch.Field{Name: "action"},
		patch.Field{Name: "amount", Kind: patch.Number},
		patch.Field{Name: "currency"},
		patch.Field{Name: "fee", Kind: patch.Number},
		patch.Field{Name: "note"},
	)
}

func TestBuildPlan_Examples(t *testing.T) {
	schema := loanSchema()

	tests := []struct {
		name       string
		candidates patch.Candidates
		clause     string
		names      map[string]string
		wantErr    error
	}{
		{
			name:       "reserved word and zero value",
			candidates: patch.Candidates{"type": "gift", "counterparty": "", "amount": 0, "note": "  "},
			clause:     "SET #type = :type, amount = :amount",
			names:      map[string]string{"#type": "type"},
		},
		{
			name:       "only blanks",
			candidates: patch.Candidates{"counterparty": "", "note": "   "},
			wantErr:    patch.ErrNothingToUpdate,
		},
		{
			name:       "numbers only",
			candidates: patch.Candidates{"amount": 100, "fee": 2.5},
			clause:     "SET amount = :amount, fee = :fee",
			names:      nil,
		},
		{
			name:       "empty input",
			candidates: patch.Candidates{},
			wantErr:    patch.ErrNothingToUpdate,
		},
		{
			name:       "null is absent",
			candidates: patch.Candidates{"note": nil, "action": "repay"},
			clause:     "SET #action = :action",
			names:      map[string]string{"#action": "action"},
		},
		{
			name:       "schema order wins",
			candidates: patch.Candidates{"note": "n", "currency": "EUR", "type": "lend"},
			clause:     "SET #type = :type, currency = :currency, note = :note",
			names:      map[string]string{"#type": "type"},
		},
		{
			name:       "unknown keys are ignored",
			candidates: patch.Candidates{"loanId": "L1", "userId": "U1"},
			wantErr:    patch.ErrNothingToUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := schema.BuildPlan(tt.candidates)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, plan)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.clause, plan.Clause)
			assert.Equal(t, tt.names, plan.Names)
			assert.Len(t, plan.Values, len(plan.Assignments))
		})
	}
}

func TestBuildPlan_NamesAreNilWithoutReservedWords(t *testing.T) {
	plan, err := loanSchema().BuildPlan(patch.Candidates{"note": "x"})

	require.NoError(t, err)
	assert.Nil(t, plan.AttributeNames())
	assert.Nil(t, plan.Names)
}

func TestBuildPlan_Values(t *testing.T) {
	plan, err := loanSchema().BuildPlan(patch.Candidates{
		"type":   "gift",
		"amount": json.Number("0"),
		"fee":    "2.50",
	})
	require.NoError(t, err)

	assert.Equal(t, &types.AttributeValueMemberS{Value: "gift"}, plan.Values[":type"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "0"}, plan.Values[":amount"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "2.50"}, plan.Values[":fee"])
	assert.Equal(t, []string{"type", "amount", "fee"}, plan.Fields())
}

func TestBuildPlan_FalseIsProvided(t *testing.T) {
	schema := patch.MustSchema(
		patch.Field{Name: "archived", Kind: patch.Bool},
		patch.Field{Name: "flag", Kind: patch.Any},
		patch.Field{Name: "note"},
	)

	tests := []struct {
		name       string
		candidates patch.Candidates
		clause     string
		values     map[string]types.AttributeValue
	}{
		{
			name:       "bool field",
			candidates: patch.Candidates{"archived": false, "note": ""},
			clause:     "SET archived = :archived",
			values:     map[string]types.AttributeValue{":archived": &types.AttributeValueMemberBOOL{Value: false}},
		},
		{
			name:       "bool field from text",
			candidates: patch.Candidates{"archived": "false"},
			clause:     "SET archived = :archived",
			values:     map[string]types.AttributeValue{":archived": &types.AttributeValueMemberBOOL{Value: false}},
		},
		{
			name:       "any field",
			candidates: patch.Candidates{"flag": false},
			clause:     "SET flag = :flag",
			values:     map[string]types.AttributeValue{":flag": &types.AttributeValueMemberBOOL{Value: false}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := schema.BuildPlan(tt.candidates)
			require.NoError(t, err)
			assert.Equal(t, tt.clause, plan.Clause)
			assert.Equal(t, tt.values, plan.Values)
		})
	}
}

func TestBuildPlan_RejectsNumbersDynamoCannotStore(t *testing.T) {
	for _, raw := range []any{"NaN", "Inf", "-infinity", "0x1p4", "1e300", json.Number("1e-200"), math.NaN(), math.Inf(1), 1e300} {
		_, err := loanSchema().BuildPlan(patch.Candidates{"amount": raw})

		var fe *patch.FieldError
		require.True(t, errors.As(err, &fe), "%v", raw)
		assert.Equal(t, "amount", fe.Field)
	}
}

func TestBuildPlan_ReservedNeverBare(t *testing.T) {
	schema := patch.MustSchema(
		patch.Field{Name: "name"},
		patch.Field{Name: "category"},
		patch.Field{Name: "value", Kind: patch.Number},
	)

	plan, err := schema.BuildPlan(patch.Candidates{"name": "Flat", "category": "home", "value": 1})
	require.NoError(t, err)

	assert.Equal(t, "SET #name = :name, category = :category, #value = :value", plan.Clause)
	for _, a := range plan.Assignments {
		if patch.IsReserved(a.Field) {
			assert.Equal(t, "#"+a.Field, a.Target)
		} else {
			assert.Equal(t, a.Field, a.Target)
		}
	}
}

func TestBuildPlan_Idempotent(t *testing.T) {
	schema := loanSchema()
	in := patch.Candidates{"type": "gift", "amount": 10, "note": "x"}

	a, err := schema.BuildPlan(in)
	require.NoError(t, err)
	b, err := schema.BuildPlan(in)
	require.NoError(t, err)

	assert.Equal(t, a.Clause, b.Clause)
	assert.Equal(t, a.Names, b.Names)
	assert.Equal(t, a.Values, b.Values)
}

func TestBuildPlan_Concurrent(t *testing.T) {
	schema := loanSchema()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			plan, err := schema.BuildPlan(patch.Candidates{"action": "x", "fee": 1})
			assert.NoError(t, err)
			assert.Equal(t, "SET #action = :action, fee = :fee", plan.Clause)
		}()
	}
	wg.Wait()
}

func TestBuildPlan_FieldErrors(t *testing.T) {
	schema := loanSchema()

	tests := []struct {
		name       string
		candidates patch.Candidates
		field      string
	}{
		{"number from text", patch.Candidates{"amount": "ten"}, "amount"},
		{"number from bool", patch.Candidates{"fee": true}, "fee"},
		{"string from number", patch.Candidates{"note": 12}, "note"},
		{"string from object", patch.Candidates{"currency": map[string]any{"a": 1}}, "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.BuildPlan(tt.candidates)

			var fe *patch.FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestBuild_AnyKindKeepsNestedNumbers(t *testing.T) {
	schema := patch.MustSchema(patch.Field{Name: "meta", Kind: patch.Any})

	plan, err := schema.BuildPlan(patch.Candidates{
		"meta": map[string]any{"rate": json.Number("1.25"), "tags": []any{"a"}},
	})
	require.NoError(t, err)

	m, ok := plan.Values[":meta"].(*types.AttributeValueMemberM)
	require.True(t, ok)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1.25"}, m.Value["rate"])
}

func TestPlan_CheckDetectsUnboundPlaceholder(t *testing.T) {
	plan := &patch.Plan{
		Clause: "SET stockName = :stockName, price = :price",
		Values: map[string]types.AttributeValue{
			":stockName": &types.AttributeValueMemberS{Value: "ACME"},
			":side":      &types.AttributeValueMemberS{Value: "buy"},
		},
	}

	err := plan.Check()
	assert.ErrorIs(t, err, patch.ErrUnboundPlaceholder)
	assert.True(t, strings.Contains(err.Error(), ":price"))
}

func TestPlan_CheckDetectsUnusedValue(t *testing.T) {
	plan := &patch.Plan{
		Clause: "SET price = :price",
		Values: map[string]types.AttributeValue{
			":price": &types.AttributeValueMemberN{Value: "1"},
			":side":  &types.AttributeValueMemberS{Value: "buy"},
		},
	}

	assert.ErrorIs(t, plan.Check(), patch.ErrUnboundPlaceholder)
}

func TestPlan_CheckDetectsMissingAlias(t *testing.T) {
	plan := &patch.Plan{
		Clause: "SET #type = :type",
		Values: map[string]types.AttributeValue{":type": &types.AttributeValueMemberS{Value: "x"}},
	}

	assert.ErrorIs(t, plan.Check(), patch.ErrUnboundPlaceholder)
}

func TestPlan_ImplementsUpdateExpression(t *testing.T) {
	var _ dyndb.UpdateExpression = (*patch.Plan)(nil)
}

func TestFieldSet_Map(t *testing.T) {
	fs, err := loanSchema().Normalize(patch.Candidates{"amount": json.Number("12.5"), "type": "lend", "note": ""})
	require.NoError(t, err)

	assert.Equal(t, 2, fs.Len())
	assert.Equal(t, []string{"type", "amount"}, fs.Names())
	assert.Equal(t, map[string]any{"type": "lend", "amount": 12.5}, fs.Map())
}
