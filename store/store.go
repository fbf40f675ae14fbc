package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/telemetry-gateway/internal/metrics"
	"github.com/jacentio/telemetry-gateway/telemetry"
)

// Store provides telemetry record operations on a DynamoDB table.
// It holds no per-request state and is safe for concurrent use.
type Store struct {
	client DynamoAPI
	config Config
	now    func() time.Time
}

// New creates a new Store instance.
func New(client DynamoAPI, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// TableName returns the table the store operates on.
func (s *Store) TableName() string {
	return s.config.TableName
}

// Create writes a new record. The row key must not exist yet in the partition.
func (s *Store) Create(ctx context.Context, rec telemetry.Record) (err error) {
	defer observe("create", time.Now(), &err)

	item, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	now := s.now()
	item[TimestampAttr] = &types.AttributeValueMemberS{Value: formatTimestamp(now)}
	if s.config.RecordTTL > 0 {
		item[ExpiresAtAttr] = expiryAttr(now, s.config.RecordTTL)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.TableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#rk)"),
		ExpressionAttributeNames: map[string]string{
			"#rk": telemetry.RowKeyField,
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// List returns the records of one partition, or of the whole table when
// partitionKey is empty, in the order DynamoDB returns them.
func (s *Store) List(ctx context.Context, partitionKey string) (records []telemetry.Record, err error) {
	if partitionKey != "" {
		defer observe("query", time.Now(), &err)
		return s.query(ctx, partitionKey)
	}
	defer observe("scan", time.Now(), &err)
	return s.scan(ctx)
}

func (s *Store) query(ctx context.Context, partitionKey string) ([]telemetry.Record, error) {
	now := s.now()
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": telemetry.PartitionKeyField,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: partitionKey},
		},
	}
	if s.config.RecordTTL > 0 {
		input.FilterExpression = aws.String(TTLFilterExpr())
		input.ExpressionAttributeNames = mergeExprNames(input.ExpressionAttributeNames, TTLFilterNames())
		input.ExpressionAttributeValues = mergeExprValues(input.ExpressionAttributeValues, TTLFilterValues(now))
	}

	records := make([]telemetry.Record, 0)
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query partition %q: %w", partitionKey, err)
		}
		records, err = s.appendItems(records, page.Items, now)
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) scan(ctx context.Context) ([]telemetry.Record, error) {
	now := s.now()
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.config.TableName),
	}
	if s.config.RecordTTL > 0 {
		input.FilterExpression = aws.String(TTLFilterExpr())
		input.ExpressionAttributeNames = TTLFilterNames()
		input.ExpressionAttributeValues = TTLFilterValues(now)
	}

	records := make([]telemetry.Record, 0)
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		records, err = s.appendItems(records, page.Items, now)
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) appendItems(records []telemetry.Record, items []map[string]types.AttributeValue, now time.Time) ([]telemetry.Record, error) {
	for _, raw := range items {
		// Without RecordTTL nothing expires, whatever the item carries.
		if s.config.RecordTTL > 0 && IsExpired(raw, now) {
			continue
		}
		rec, err := unmarshalRecord(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Merge overwrites the record's supplied fields, leaving other stored fields
// untouched. The record must already exist.
func (s *Store) Merge(ctx context.Context, rec telemetry.Record) (err error) {
	defer observe("merge", time.Now(), &err)

	item, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	exprNames := map[string]string{
		"#rk":        telemetry.RowKeyField,
		"#timestamp": TimestampAttr,
	}
	exprValues := map[string]types.AttributeValue{
		":timestamp": &types.AttributeValueMemberS{Value: formatTimestamp(s.now())},
	}

	// Sorted for stable expressions.
	var setClauses []string
	i := 0
	for _, k := range slices.Sorted(maps.Keys(item)) {
		// Skip keys and managed fields
		if isKeyAttr(k) || k == TimestampAttr || k == ExpiresAtAttr {
			continue
		}
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = k
		exprValues[valueKey] = item[k]
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
		i++
	}
	setClauses = append(setClauses, "#timestamp = :timestamp")

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.TableName),
		Key:                       KeyOf(rec.PartitionKey, rec.RowKey),
		UpdateExpression:          aws.String("SET " + strings.Join(setClauses, ", ")),
		ConditionExpression:       aws.String("attribute_exists(#rk)"),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrNotFound
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, partitionKey, rowKey string) (err error) {
	defer observe("delete", time.Now(), &err)

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.TableName),
		Key:       KeyOf(partitionKey, rowKey),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// Ping checks that the table exists and is reachable.
func (s *Store) Ping(ctx context.Context) (err error) {
	defer observe("ping", time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, s.config.PingTimeout)
	defer cancel()

	_, err = s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.config.TableName),
	})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", s.config.TableName, err)
	}
	return nil
}

// EnsureTable creates the table if it does not exist and waits until it is active.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.config.TableName),
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe table %s: %w", s.config.TableName, err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.config.TableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(telemetry.PartitionKeyField), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(telemetry.RowKeyField), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(telemetry.PartitionKeyField), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(telemetry.RowKeyField), KeyType: types.KeyTypeRange},
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("create table %s: %w", s.config.TableName, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = time.Second
		o.MaxDelay = 10 * time.Second
	})
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.config.TableName),
	}, s.config.CreateTimeout); err != nil {
		return fmt.Errorf("wait for table %s: %w", s.config.TableName, err)
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func observe(operation string, start time.Time, err *error) {
	metrics.ObserveStoreCall(operation, *err, time.Since(start))
}
