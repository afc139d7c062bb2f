package capacity

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

type dynamoAPI interface {
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoLedger keeps one item per department and relies on conditional
// updates so concurrent reservations can never pass the limit.
type DynamoLedger struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ Ledger = (*DynamoLedger)(nil)

// NewDynamoLedger builds a ledger backed by the given table.
func NewDynamoLedger(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoLedger {
	if client == nil {
		panic("capacity: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("capacity: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoLedger{client: client, tableName: tableName, logger: logger}
}

func (l *DynamoLedger) CheckAvailability(ctx context.Context, key string, limit int) (bool, error) {
	entry, ok, err := l.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return !ok || entry.ActiveCount < limit, nil
}

func (l *DynamoLedger) Reserve(ctx context.Context, key string, apptType appointment.Type, limit int) (Entry, error) {
	key = Key(key)
	if key == "" {
		return Entry{}, errEmptyKey
	}
	out, err := l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(l.tableName),
		Key:                 dynamoKey(key),
		UpdateExpression:    aws.String("ADD activeCount :one SET appointmentType = :type"),
		ConditionExpression: aws.String("attribute_not_exists(activeCount) OR activeCount < :limit"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   &types.AttributeValueMemberN{Value: "1"},
			":limit": &types.AttributeValueMemberN{Value: strconv.Itoa(limit)},
			":type":  &types.AttributeValueMemberS{Value: string(apptType)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return Entry{Key: key, ActiveCount: limit, AppointmentType: apptType}, ErrFull(key, limit)
		}
		return Entry{}, fmt.Errorf("capacity: failed to reserve %s: %w", key, err)
	}
	return decodeDynamoEntry(key, out.Attributes)
}

func (l *DynamoLedger) Release(ctx context.Context, key string) (Entry, error) {
	key = Key(key)
	if key == "" {
		return Entry{}, errEmptyKey
	}
	out, err := l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(l.tableName),
		Key:                 dynamoKey(key),
		UpdateExpression:    aws.String("ADD activeCount :neg"),
		ConditionExpression: aws.String("activeCount > :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":neg":  &types.AttributeValueMemberN{Value: "-1"},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			// already at zero or missing
			l.logger.Debug("capacity release at floor", "key", key)
			entry, _, getErr := l.Get(ctx, key)
			if getErr != nil {
				return Entry{}, getErr
			}
			entry.Key = key
			return entry, nil
		}
		return Entry{}, fmt.Errorf("capacity: failed to release %s: %w", key, err)
	}
	return decodeDynamoEntry(key, out.Attributes)
}

func (l *DynamoLedger) Get(ctx context.Context, key string) (Entry, bool, error) {
	key = Key(key)
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.tableName),
		Key:            dynamoKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("capacity: failed to fetch %s: %w", key, err)
	}
	if out.Item == nil {
		return Entry{}, false, nil
	}
	entry, err := decodeDynamoEntry(key, out.Item)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (l *DynamoLedger) List(ctx context.Context) ([]Entry, error) {
	var (
		out   []Entry
		start map[string]types.AttributeValue
	)
	for {
		page, err := l.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(l.tableName),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("capacity: failed to scan: %w", err)
		}
		var entries []Entry
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &entries); err != nil {
			return nil, fmt.Errorf("capacity: failed to decode entries: %w", err)
		}
		out = append(out, entries...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	sortEntries(out)
	return out, nil
}

func decodeDynamoEntry(key string, item map[string]types.AttributeValue) (Entry, error) {
	var entry Entry
	if err := attributevalue.UnmarshalMap(item, &entry); err != nil {
		return Entry{}, fmt.Errorf("capacity: failed to decode %s: %w", key, err)
	}
	entry.Key = key
	return entry, nil
}

func dynamoKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"departmentKey": &types.AttributeValueMemberS{Value: key},
	}
}
