package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/telemetry-gateway/telemetry"
)

// Attribute names managed by the store.
const (
	TimestampAttr = telemetry.TimestampField
	ExpiresAtAttr = telemetry.ExpiresAtField
)

// DynamoAPI is the subset of the DynamoDB client used by the Store.
// *dynamodb.Client satisfies it; tests supply an in-memory double.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// KeyOf returns the primary key of a record.
func KeyOf(partitionKey, rowKey string) PK {
	return PK{
		telemetry.PartitionKeyField: &types.AttributeValueMemberS{Value: partitionKey},
		telemetry.RowKeyField:       &types.AttributeValueMemberS{Value: rowKey},
	}
}

// isKeyAttr reports whether name is part of the primary key.
func isKeyAttr(name string) bool {
	return name == telemetry.PartitionKeyField || name == telemetry.RowKeyField
}

// marshalRecord converts a record to a DynamoDB item. json.Number fields
// are written as N values with their exact text.
func marshalRecord(rec telemetry.Record) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(rec.Map())
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return item, nil
}

// unmarshalRecord converts a DynamoDB item to a record.
func unmarshalRecord(item map[string]types.AttributeValue) (telemetry.Record, error) {
	m, err := DecodeItem(item)
	if err != nil {
		return telemetry.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return telemetry.FromMap(m), nil
}

// DecodeItem converts a DynamoDB item to plain Go values. Numbers, including
// those nested in lists, maps and number sets, come back as json.Number so
// they re-encode exactly as stored.
func DecodeItem(item map[string]types.AttributeValue) (map[string]any, error) {
	m := make(map[string]any, len(item))
	err := attributevalue.UnmarshalMapWithOptions(item, &m, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return nil, err
	}
	for k, v := range m {
		m[k] = jsonNumbers(v)
	}
	return m, nil
}

func jsonNumbers(v any) any {
	switch t := v.(type) {
	case attributevalue.Number:
		return json.Number(t)
	case []attributevalue.Number:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = json.Number(n)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = jsonNumbers(e)
		}
	case map[string]any:
		for k, e := range t {
			t[k] = jsonNumbers(e)
		}
	}
	return v
}
