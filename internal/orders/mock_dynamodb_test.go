package orders

import (
	"context"
	"errors"
	"sort"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// mockDynamo is a small in-memory table keyed by order_id. It understands the
// exact condition/update expressions the store issues and nothing else.
type mockDynamo struct {
	mu          sync.Mutex
	items       map[string]map[string]types.AttributeValue
	updateCalls int
	// injected error for the next UpdateItem call
	failNext error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(m map[string]types.AttributeValue) string {
	if v, ok := m["order_id"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := keyOf(params.Item)
	if pk == "" {
		return nil, errors.New("no primary key in put item")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(order_id)" {
		if _, exists := m.items[pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[keyOf(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := params.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS).Value
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := &dyn.ScanOutput{}
	for _, k := range keys {
		if st, ok := m.items[k]["status"].(*types.AttributeValueMemberS); ok && st.Value == want {
			out.Items = append(out.Items, m.items[k])
		}
	}
	return out, nil
}

// notifications returns the nested map, or nil when absent or NULL.
func notificationsOf(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if n, ok := item["notifications"].(*types.AttributeValueMemberM); ok {
		return n.Value
	}
	return nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}

	item, exists := m.items[keyOf(params.Key)]
	names := params.ExpressionAttributeNames
	vals := params.ExpressionAttributeValues
	s := func(k string) string { return vals[k].(*types.AttributeValueMemberS).Value }
	nested := notificationsOf(item)
	get := func(ph string) (string, bool) {
		if nested == nil {
			return "", false
		}
		v, ok := nested[names[ph]].(*types.AttributeValueMemberS)
		if !ok {
			return "", false
		}
		return v.Value, true
	}
	absentOrAtMost := func(ph, cutoff string) bool {
		v, ok := get(ph)
		return !ok || v <= s(cutoff)
	}
	holds := func() bool {
		v, ok := get("#r")
		return ok && v == s(":lease")
	}
	conditionFailed := &types.ConditionalCheckFailedException{}

	var pass bool
	switch *params.ConditionExpression {
	case "#s = :expected":
		st, ok := item["status"].(*types.AttributeValueMemberS)
		pass = exists && ok && st.Value == s(":expected")
	case acquireCondition:
		_, sent := get("#s")
		pass = exists && !sent && absentOrAtMost("#f", ":cooldownCutoff") && absentOrAtMost("#r", ":leaseCutoff")
	case releaseCondition:
		pass = exists && holds()
	case successCondition:
		_, sent := get("#s")
		pass = exists && !sent
	case failureCondition:
		_, sent := get("#s")
		pass = exists && !sent && holds()
	case ensureMapCondition:
		_, isNull := item["notifications"].(*types.AttributeValueMemberNULL)
		_, present := item["notifications"]
		pass = exists && (!present || isNull)
	default:
		return nil, errors.New("mock: unsupported condition " + *params.ConditionExpression)
	}
	if !pass {
		return nil, conditionFailed
	}

	if *params.UpdateExpression == ensureMapUpdate {
		item["notifications"] = &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}}
		return &dyn.UpdateItemOutput{}, nil
	}
	if *params.UpdateExpression == "SET #s = :new, updated_at = :ua" {
		item["status"] = vals[":new"]
		item["updated_at"] = vals[":ua"]
		return &dyn.UpdateItemOutput{}, nil
	}

	if nested == nil {
		return nil, &smithy.GenericAPIError{
			Code:    "ValidationException",
			Message: "The document path provided in the update expression is invalid for update",
		}
	}
	set := func(ph, val string) { nested[names[ph]] = vals[val] }
	del := func(phs ...string) {
		for _, ph := range phs {
			delete(nested, names[ph])
		}
	}
	switch *params.UpdateExpression {
	case acquireUpdate:
		set("#r", ":now")
		del("#f", "#e")
	case releaseUpdate:
		del("#r")
	case successUpdate:
		set("#s", ":now")
		set("#m", ":mid")
		del("#r", "#f", "#e")
	case failureUpdate:
		set("#f", ":now")
		set("#e", ":err")
		del("#r")
	default:
		return nil, errors.New("mock: unsupported update " + *params.UpdateExpression)
	}
	return &dyn.UpdateItemOutput{}, nil
}
