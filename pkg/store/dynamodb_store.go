package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoDBStore.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// NewDynamoDBClient loads the default AWS configuration and builds a client.
// A non-empty endpoint overrides the service URL (e.g. DynamoDB Local).
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// item is one key of the store as persisted in the table.
type item struct {
	Key       string `dynamodbav:"key"`
	Value     string `dynamodbav:"value"`
	UpdatedAt int64  `dynamodbav:"updated_at"`
}

// DynamoDBStore keeps one item per key in a table whose partition key is
// "key". Subscriptions poll the item and report changed values.
type DynamoDBStore struct {
	client       DynamoDBAPI
	tableName    string
	pollInterval time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// DefaultPollInterval is used when NewDynamoDBStore gets a non-positive interval.
const DefaultPollInterval = 15 * time.Second

// NewDynamoDBStore creates a store backed by the given table.
func NewDynamoDBStore(client DynamoDBAPI, tableName string, pollInterval time.Duration, logger zerolog.Logger) *DynamoDBStore {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &DynamoDBStore{
		client:       client,
		tableName:    tableName,
		pollInterval: pollInterval,
		logger:       logger,
		now:          time.Now,
	}
}

// Set overwrites the item for key.
func (s *DynamoDBStore) Set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}

	av, err := attributevalue.MarshalMap(item{
		Key:       key,
		Value:     string(payload),
		UpdatedAt: s.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal item %s: %w", key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to store %s in dynamodb: %w", key, err)
	}
	return nil
}

func (s *DynamoDBStore) get(ctx context.Context, key string) (Snapshot, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s from dynamodb: %w", key, err)
	}
	if len(out.Item) == 0 {
		return Snapshot{Key: key}, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal item %s: %w", key, err)
	}
	return Snapshot{Key: key, Value: []byte(it.Value), Exists: true}, nil
}

type pollingSubscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Close stops polling and waits for the poller to exit.
func (p *pollingSubscription) Close() error {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
	return nil
}

// Subscribe polls key every pollInterval. The first read is always
// delivered; later reads only when the value changed. Read failures go to
// onError and polling continues.
func (s *DynamoDBStore) Subscribe(key string, onChange func(Snapshot), onError func(error)) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &pollingSubscription{cancel: cancel}

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		var last *Snapshot
		poll := func() {
			snap, err := s.get(ctx, key)
			if err != nil {
				if ctx.Err() == nil && onError != nil {
					onError(err)
				}
				return
			}
			if last != nil && last.Exists == snap.Exists && bytes.Equal(last.Value, snap.Value) {
				return
			}
			last = &snap
			onChange(snap)
		}

		poll()
		for {
			select {
			case <-ticker.C:
				poll()
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Debug().Str("table", s.tableName).Str("key", key).Dur("poll_interval", s.pollInterval).Msg("Polling store key")
	return sub, nil
}
