package feed

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
)

// FromDynamoDBEvent converts a Lambda stream batch into change events.
// REMOVE records are dropped. A record that cannot be decoded fails the batch
// so the Lambda runtime retries it.
func FromDynamoDBEvent(ev events.DynamoDBEvent) ([]ChangeEvent, error) {
	out := make([]ChangeEvent, 0, len(ev.Records))
	for _, rec := range ev.Records {
		var kind EventKind
		switch events.DynamoDBOperationType(rec.EventName) {
		case events.DynamoDBOperationTypeInsert:
			kind = KindInsert
		case events.DynamoDBOperationTypeModify:
			kind = KindModify
		default:
			continue
		}
		if len(rec.Change.NewImage) == 0 {
			return nil, fmt.Errorf("record %s has no new image", rec.EventID)
		}
		item, err := convertImage(rec.Change.NewImage)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.EventID, err)
		}
		var o orders.Order
		if err := attributevalue.UnmarshalMap(item, &o); err != nil {
			return nil, fmt.Errorf("record %s: unmarshal order: %w", rec.EventID, err)
		}
		out = append(out, ChangeEvent{
			OrderID: o.OrderID,
			Kind:    kind,
			Order:   o,
			Origin:  rec.Change.SequenceNumber,
		})
	}
	return out, nil
}

func convertImage(image map[string]events.DynamoDBAttributeValue) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		av, err := convertAttribute(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func convertAttribute(v events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, 0, len(list))
		for _, el := range list {
			av, err := convertAttribute(el)
			if err != nil {
				return nil, err
			}
			out = append(out, av)
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m, err := convertImage(v.Map())
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	}
	return nil, fmt.Errorf("unsupported attribute type %v", v.DataType())
}
