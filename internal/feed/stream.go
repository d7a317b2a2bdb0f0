package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	streamsav "github.com/aws/aws-sdk-go-v2/feature/dynamodbstreams/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamstypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/imrishuroy/go-orderflow-notifier/internal/aws"
	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
)

// StreamPoller reads the orders table's DynamoDB stream (NEW_IMAGE or
// NEW_AND_OLD_IMAGES view) and publishes one ChangeEvent per INSERT/MODIFY.
// Delivery is at-least-once: expired iterators resume after the last seen
// sequence number and restarts replay from the configured position.
type StreamPoller struct {
	client    aws.DynamoDBStreamsAPI
	streamARN string
	start     streamstypes.ShardIteratorType
	interval  time.Duration
	batch     int32
	logger    *log.Logger

	iterators map[string]string // shard id -> iterator
	lastSeq   map[string]string // shard id -> last published sequence number
	closed    map[string]bool
	started   bool
}

// NewStreamPoller returns a poller for streamARN. start is LATEST or
// TRIM_HORIZON and only applies to shards present on the first refresh;
// shards discovered later are always read from their beginning.
func NewStreamPoller(client aws.DynamoDBStreamsAPI, streamARN, start string, interval time.Duration, logger *log.Logger) *StreamPoller {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	it := streamstypes.ShardIteratorTypeTrimHorizon
	if start == string(streamstypes.ShardIteratorTypeLatest) {
		it = streamstypes.ShardIteratorTypeLatest
	}
	return &StreamPoller{
		client:    client,
		streamARN: streamARN,
		start:     it,
		interval:  interval,
		batch:     100,
		logger:    logger,
		iterators: map[string]string{},
		lastSeq:   map[string]string{},
		closed:    map[string]bool{},
	}
}

// Run polls until ctx is cancelled. Transient AWS errors are logged and retried
// on the next tick.
func (p *StreamPoller) Run(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if err := p.Poll(ctx, sink); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Printf("[feed] poll error stream=%s: %v", p.streamARN, err)
		}
		select {
		case <-ctx.Done():
			p.logger.Printf("[feed] stream poller exiting")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll performs one pass: discover shards, then read one batch per shard.
func (p *StreamPoller) Poll(ctx context.Context, sink Sink) error {
	if err := p.refreshShards(ctx); err != nil {
		return err
	}
	for shardID, iterator := range p.iterators {
		out, err := p.client.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
			ShardIterator: &iterator,
			Limit:         &p.batch,
		})
		if err != nil {
			var expired *streamstypes.ExpiredIteratorException
			if errors.As(err, &expired) {
				delete(p.iterators, shardID)
				continue
			}
			return fmt.Errorf("get records shard=%s: %w", shardID, err)
		}

		for _, rec := range out.Records {
			ev, ok, err := eventFromStreamRecord(rec)
			if err != nil {
				p.logger.Printf("[feed] skip undecodable record shard=%s: %v", shardID, err)
				continue
			}
			if ok {
				if err := sink.Publish(ctx, ev); err != nil {
					return err
				}
			}
			if rec.Dynamodb != nil && rec.Dynamodb.SequenceNumber != nil {
				p.lastSeq[shardID] = *rec.Dynamodb.SequenceNumber
			}
		}

		if out.NextShardIterator == nil {
			p.closed[shardID] = true
			delete(p.iterators, shardID)
			continue
		}
		p.iterators[shardID] = *out.NextShardIterator
	}
	return nil
}

func (p *StreamPoller) refreshShards(ctx context.Context) error {
	var exclusiveStart *string
	for {
		out, err := p.client.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             &p.streamARN,
			ExclusiveStartShardId: exclusiveStart,
		})
		if err != nil {
			return fmt.Errorf("describe stream: %w", err)
		}
		if out.StreamDescription == nil {
			break
		}
		for _, shard := range out.StreamDescription.Shards {
			if shard.ShardId == nil {
				continue
			}
			id := *shard.ShardId
			if p.closed[id] || p.iterators[id] != "" {
				continue
			}
			if err := p.openShard(ctx, id); err != nil {
				return err
			}
		}
		exclusiveStart = out.StreamDescription.LastEvaluatedShardId
		if exclusiveStart == nil {
			break
		}
	}
	p.started = true
	return nil
}

func (p *StreamPoller) openShard(ctx context.Context, shardID string) error {
	in := &dynamodbstreams.GetShardIteratorInput{
		StreamArn: &p.streamARN,
		ShardId:   &shardID,
	}
	switch seq, ok := p.lastSeq[shardID]; {
	case ok:
		in.ShardIteratorType = streamstypes.ShardIteratorTypeAfterSequenceNumber
		in.SequenceNumber = &seq
	case !p.started:
		in.ShardIteratorType = p.start
	default:
		in.ShardIteratorType = streamstypes.ShardIteratorTypeTrimHorizon
	}
	out, err := p.client.GetShardIterator(ctx, in)
	if err != nil {
		return fmt.Errorf("get shard iterator shard=%s: %w", shardID, err)
	}
	if out.ShardIterator == nil {
		p.closed[shardID] = true
		return nil
	}
	p.iterators[shardID] = *out.ShardIterator
	return nil
}

func eventFromStreamRecord(rec streamstypes.Record) (ChangeEvent, bool, error) {
	var kind EventKind
	switch rec.EventName {
	case streamstypes.OperationTypeInsert:
		kind = KindInsert
	case streamstypes.OperationTypeModify:
		kind = KindModify
	default:
		return ChangeEvent{}, false, nil
	}
	if rec.Dynamodb == nil || len(rec.Dynamodb.NewImage) == 0 {
		return ChangeEvent{}, false, errors.New("record has no new image")
	}
	var o orders.Order
	if err := streamsav.UnmarshalMap(rec.Dynamodb.NewImage, &o); err != nil {
		return ChangeEvent{}, false, fmt.Errorf("unmarshal new image: %w", err)
	}
	ev := ChangeEvent{OrderID: o.OrderID, Kind: kind, Order: o}
	if rec.Dynamodb.SequenceNumber != nil {
		ev.Origin = *rec.Dynamodb.SequenceNumber
	}
	return ev, true, nil
}
