package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-orderflow-notifier/internal/aws"
)

var (
	// ErrAlreadySent is returned by RecordSuccess when sentAt is already present.
	ErrAlreadySent = errors.New("notification already recorded as sent")
	// ErrLeaseLost is returned when the caller's reservation is no longer the one stored.
	ErrLeaseLost = errors.New("lease no longer held")
)

// Condition and update expressions of the lease protocol. Placeholders:
// #n notifications, #r reservedAt, #s sentAt, #m messageId, #f failedAt, #e error.
const (
	acquireCondition = "attribute_exists(order_id) AND attribute_not_exists(#n.#s) AND " +
		"(attribute_not_exists(#n.#f) OR #n.#f <= :cooldownCutoff) AND " +
		"(attribute_not_exists(#n.#r) OR #n.#r <= :leaseCutoff)"
	acquireUpdate = "SET #n.#r = :now REMOVE #n.#f, #n.#e"

	releaseCondition = "#n.#r = :lease"
	releaseUpdate    = "REMOVE #n.#r"

	successCondition = "attribute_exists(order_id) AND attribute_not_exists(#n.#s)"
	successUpdate    = "SET #n.#s = :now, #n.#m = :mid REMOVE #n.#r, #n.#f, #n.#e"

	failureCondition = "attribute_not_exists(#n.#s) AND #n.#r = :lease"
	failureUpdate    = "SET #n.#f = :now, #n.#e = :err REMOVE #n.#r"

	ensureMapCondition = "attribute_exists(order_id) AND (attribute_not_exists(#n) OR attribute_type(#n, :null))"
	ensureMapUpdate    = "SET #n = :empty"
)

// DynamoStore encapsulates operations on the orders table. Every lease
// transition is a single conditional UpdateItem, which DynamoDB applies
// atomically against the current item.
//
// Update expressions have no server clock, so reservedAt and failedAt are
// stamped by the writer's clock and the TTL and cooldown cutoffs come from
// the reader's. Skew between instances shifts both windows by the skew: a
// reader ahead by d reclaims a lease d early. Keep instance clocks well
// inside the lease TTL (NTP-synced hosts drift by milliseconds).
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore creates a new orders store.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *DynamoStore) now() time.Time {
	return s.nowFunc().UTC().Truncate(time.Millisecond)
}

func (s *DynamoStore) key(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// Create persists a new order. It fails if the order id is taken.
func (s *DynamoStore) Create(ctx context.Context, order Order) error {
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Notifications == nil {
		order.Notifications = Notifications{}
	}

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("order %s already exists: %w", order.OrderID, err)
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// UpdateStatus conditionally updates the order status from expected -> newStatus.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *DynamoStore) UpdateStatus(ctx context.Context, orderID, expectedStatus, newStatus string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(orderID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: newStatus},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: expectedStatus},
		},
		ConditionExpression: awsString("#s = :expected"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionFailed(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ListByStatus scans for every order currently in status. It backs the
// initial replay a feed performs when it (re)subscribes.
func (s *DynamoStore) ListByStatus(ctx context.Context, status string) ([]Order, error) {
	input := &dyn.ScanInput{
		TableName:                &s.tableName,
		FilterExpression:         awsString("#s = :status"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
		},
	}

	var out []Order
	pager := dyn.NewScanPaginator(s.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan orders by status %s: %w", status, err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func leaseNames(t Trigger, fields ...string) map[string]string {
	names := map[string]string{"#n": "notifications"}
	for _, f := range fields {
		switch f {
		case "#r":
			names[f] = t.field(suffixReservedAt)
		case "#s":
			names[f] = t.field(suffixSentAt)
		case "#m":
			names[f] = t.field(suffixMessageID)
		case "#f":
			names[f] = t.field(suffixFailedAt)
		case "#e":
			names[f] = t.field(suffixError)
		}
	}
	return names
}

func str(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

// AcquireLease tries to reserve (orderID, trigger). It returns acquired=false
// without error when the notification was already sent, a failure is still
// cooling down, another lease is fresh, or the write lost a race.
func (s *DynamoStore) AcquireLease(ctx context.Context, orderID string, trigger Trigger, policy LeasePolicy) (Lease, bool, error) {
	now := s.now()
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(orderID),
		ConditionExpression:      awsString(acquireCondition),
		UpdateExpression:         awsString(acquireUpdate),
		ExpressionAttributeNames: leaseNames(trigger, "#r", "#s", "#f", "#e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":            str(FormatTime(now)),
			":cooldownCutoff": str(FormatTime(now.Add(-policy.Cooldown))),
			":leaseCutoff":    str(FormatTime(now.Add(-policy.TTL))),
		},
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil && isInvalidDocumentPath(err) {
		// Orders written without a notifications map: create it and try once more.
		if err := s.ensureNotificationsMap(ctx, orderID); err != nil {
			return Lease{}, false, err
		}
		_, err = s.client.UpdateItem(ctx, input)
	}
	if err != nil {
		if isConditionFailed(err) || isTransactionConflict(err) {
			return Lease{}, false, nil
		}
		return Lease{}, false, fmt.Errorf("acquire lease %s/%s: %w", orderID, trigger, err)
	}
	return Lease{OrderID: orderID, Trigger: trigger, ReservedAt: now}, true, nil
}

func (s *DynamoStore) ensureNotificationsMap(ctx context.Context, orderID string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(orderID),
		ConditionExpression:      awsString(ensureMapCondition),
		UpdateExpression:         awsString(ensureMapUpdate),
		ExpressionAttributeNames: map[string]string{"#n": "notifications"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}},
			":null":  str("NULL"),
		},
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("init notifications map %s: %w", orderID, err)
	}
	return nil
}

// ReleaseLease deletes the reservation if it is still the caller's.
// No failure is recorded.
func (s *DynamoStore) ReleaseLease(ctx context.Context, lease Lease) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(lease.OrderID),
		ConditionExpression:      awsString(releaseCondition),
		UpdateExpression:         awsString(releaseUpdate),
		ExpressionAttributeNames: leaseNames(lease.Trigger, "#r"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lease": str(FormatTime(lease.ReservedAt)),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrLeaseLost
		}
		return fmt.Errorf("release lease %s/%s: %w", lease.OrderID, lease.Trigger, err)
	}
	return nil
}

// RecordSuccess marks the notification sent. sentAt is never overwritten:
// if another holder already recorded it, ErrAlreadySent is returned.
func (s *DynamoStore) RecordSuccess(ctx context.Context, lease Lease, messageID string) error {
	now := s.now()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(lease.OrderID),
		ConditionExpression:      awsString(successCondition),
		UpdateExpression:         awsString(successUpdate),
		ExpressionAttributeNames: leaseNames(lease.Trigger, "#s", "#m", "#r", "#f", "#e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": str(FormatTime(now)),
			":mid": str(messageID),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrAlreadySent
		}
		return fmt.Errorf("record success %s/%s: %w", lease.OrderID, lease.Trigger, err)
	}
	return nil
}

// RecordFailure stores the failure time and message and drops the lease.
// It only applies while the caller still holds the lease.
func (s *DynamoStore) RecordFailure(ctx context.Context, lease Lease, errMsg string) error {
	now := s.now()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(lease.OrderID),
		ConditionExpression:      awsString(failureCondition),
		UpdateExpression:         awsString(failureUpdate),
		ExpressionAttributeNames: leaseNames(lease.Trigger, "#f", "#e", "#s", "#r"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   str(FormatTime(now)),
			":err":   str(errMsg),
			":lease": str(FormatTime(lease.ReservedAt)),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrLeaseLost
		}
		return fmt.Errorf("record failure %s/%s: %w", lease.OrderID, lease.Trigger, err)
	}
	return nil
}

func isConditionFailed(err error) bool {
	var cc *types.ConditionalCheckFailedException
	if errors.As(err, &cc) {
		return true
	}
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == "ConditionalCheckFailedException"
}

func isTransactionConflict(err error) bool {
	var tc *types.TransactionConflictException
	if errors.As(err, &tc) {
		return true
	}
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == "TransactionConflictException"
}

func isInvalidDocumentPath(err error) bool {
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == "ValidationException" &&
		strings.Contains(api.ErrorMessage(), "document path")
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
