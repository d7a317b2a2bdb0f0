package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-orderflow-notifier/internal/aws"
)

// ErrNotFound is returned when the config document does not exist.
var ErrNotFound = errors.New("notification config not found")

// Store reads and writes notification config documents.
type Store interface {
	Get(ctx context.Context, configID string) (NotificationConfig, error)
	Put(ctx context.Context, cfg NotificationConfig) error
}

// DynamoStore keeps config documents in the settings table.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore returns a settings store bound to tableName.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, nowFunc: time.Now}
}

// Get loads the config document. Returns ErrNotFound if missing.
func (s *DynamoStore) Get(ctx context.Context, configID string) (NotificationConfig, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"config_id": &types.AttributeValueMemberS{Value: configID},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return NotificationConfig{}, fmt.Errorf("get config %s: %w", configID, err)
	}
	if len(out.Item) == 0 {
		return NotificationConfig{}, ErrNotFound
	}
	var cfg NotificationConfig
	if err := attributevalue.UnmarshalMap(out.Item, &cfg); err != nil {
		return NotificationConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Put replaces the config document.
func (s *DynamoStore) Put(ctx context.Context, cfg NotificationConfig) error {
	cfg.UpdatedAt = s.nowFunc().UTC()
	item, err := attributevalue.MarshalMap(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.tableName, Item: item}); err != nil {
		return fmt.Errorf("put config %s: %w", cfg.ConfigID, err)
	}
	return nil
}

func awsBool(b bool) *bool { return &b }
