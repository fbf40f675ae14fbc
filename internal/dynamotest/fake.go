// Package dynamotest provides an in-memory DynamoDB double for tests.
//
// The fake understands the subset of DynamoDB the gateway uses: single
// equality key conditions, SET update expressions, attribute_exists and
// attribute_not_exists conditions, and ExclusiveStartKey paging. Filter
// expressions are recorded but not evaluated.
package dynamotest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Operation names accepted by FailOn and Calls.
const (
	OpPutItem       = "PutItem"
	OpUpdateItem    = "UpdateItem"
	OpDeleteItem    = "DeleteItem"
	OpQuery         = "Query"
	OpScan          = "Scan"
	OpDescribeTable = "DescribeTable"
	OpCreateTable   = "CreateTable"
)

type table struct {
	hashKey  string
	rangeKey string
	items    map[string]map[string]types.AttributeValue
	order    []string
}

// Fake is an in-memory DynamoDB client. The zero value is not usable; use New.
type Fake struct {
	// PageSize caps the items returned per Query or Scan page. Zero means unlimited.
	PageSize int

	mu       sync.Mutex
	tables   map[string]*table
	failures map[string]error
	calls    map[string]int

	lastQuery *dynamodb.QueryInput
	lastScan  *dynamodb.ScanInput
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		tables:   make(map[string]*table),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// AddTable creates a table with the given key schema.
func (f *Fake) AddTable(name, hashKey, rangeKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{
		hashKey:  hashKey,
		rangeKey: rangeKey,
		items:    make(map[string]map[string]types.AttributeValue),
	}
}

// FailOn makes every call of op return err. A nil err clears the failure.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Items returns a copy of the items in tableName, in insertion order.
func (f *Fake) Items(tableName string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]map[string]types.AttributeValue, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, maps.Clone(t.items[k]))
	}
	return out
}

// Put stores item directly, bypassing conditions and failure injection.
func (f *Fake) Put(tableName string, item map[string]types.AttributeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(tableName)
	if err != nil {
		return err
	}
	k, err := t.keyOf(item)
	if err != nil {
		return err
	}
	t.put(k, maps.Clone(item))
	return nil
}

// LastQuery returns the most recent Query input.
func (f *Fake) LastQuery() *dynamodb.QueryInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

// LastScan returns the most recent Scan input.
func (f *Fake) LastScan() *dynamodb.ScanInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastScan
}

func (f *Fake) begin(op string) error {
	f.calls[op]++
	return f.failures[op]
}

func (f *Fake) table(name string) (*table, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Requested resource not found: Table: %s not found", name)),
		}
	}
	return t, nil
}

// PutItem implements the DynamoDB PutItem call.
func (f *Fake) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpPutItem); err != nil {
		return nil, err
	}
	t, err := f.table(aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, t.items[k]); err != nil {
		return nil, err
	}
	t.put(k, maps.Clone(params.Item))
	return &dynamodb.PutItemOutput{}, nil
}

// UpdateItem implements the DynamoDB UpdateItem call. Only SET actions are supported.
func (f *Fake) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpUpdateItem); err != nil {
		return nil, err
	}
	t, err := f.table(aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	existing := t.items[k]
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, existing); err != nil {
		return nil, err
	}

	expr := strings.TrimSpace(aws.ToString(params.UpdateExpression))
	rest, ok := strings.CutPrefix(expr, "SET ")
	if !ok {
		return nil, fmt.Errorf("dynamotest: unsupported update expression %q", expr)
	}

	item := maps.Clone(existing)
	if item == nil {
		item = maps.Clone(params.Key)
	}
	for _, clause := range strings.Split(rest, ",") {
		name, value, ok := strings.Cut(clause, "=")
		if !ok {
			return nil, fmt.Errorf("dynamotest: malformed SET clause %q", clause)
		}
		attr := resolveName(strings.TrimSpace(name), params.ExpressionAttributeNames)
		av, ok := params.ExpressionAttributeValues[strings.TrimSpace(value)]
		if !ok {
			return nil, fmt.Errorf("dynamotest: missing value %q", strings.TrimSpace(value))
		}
		item[attr] = av
	}
	t.put(k, item)
	return &dynamodb.UpdateItemOutput{}, nil
}

// DeleteItem implements the DynamoDB DeleteItem call.
func (f *Fake) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpDeleteItem); err != nil {
		return nil, err
	}
	t, err := f.table(aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, t.items[k]); err != nil {
		return nil, err
	}
	if _, ok := t.items[k]; ok {
		delete(t.items, k)
		t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == k })
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query implements the DynamoDB Query call for a single hash key equality.
// Results are ordered by range key.
func (f *Fake) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = params
	if err := f.begin(OpQuery); err != nil {
		return nil, err
	}
	t, err := f.table(aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}

	cond := aws.ToString(params.KeyConditionExpression)
	name, value, ok := strings.Cut(cond, "=")
	if !ok {
		return nil, fmt.Errorf("dynamotest: unsupported key condition %q", cond)
	}
	attr := resolveName(strings.TrimSpace(name), params.ExpressionAttributeNames)
	if attr != t.hashKey {
		return nil, fmt.Errorf("dynamotest: key condition on %q, want hash key %q", attr, t.hashKey)
	}
	want, ok := params.ExpressionAttributeValues[strings.TrimSpace(value)]
	if !ok {
		return nil, fmt.Errorf("dynamotest: missing value %q", strings.TrimSpace(value))
	}

	var keys []string
	for _, k := range t.order {
		if scalar(t.items[k][t.hashKey]) == scalar(want) {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		return strings.Compare(scalar(t.items[a][t.rangeKey]), scalar(t.items[b][t.rangeKey]))
	})

	page, last, err := f.page(t, keys, params.ExclusiveStartKey, params.Limit)
	if err != nil {
		return nil, err
	}
	return &dynamodb.QueryOutput{
		Items:            page,
		Count:            int32(len(page)),
		ScannedCount:     int32(len(page)),
		LastEvaluatedKey: last,
	}, nil
}

// Scan implements the DynamoDB Scan call. Results are in insertion order.
func (f *Fake) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastScan = params
	if err := f.begin(OpScan); err != nil {
		return nil, err
	}
	t, err := f.table(aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}

	page, last, err := f.page(t, slices.Clone(t.order), params.ExclusiveStartKey, params.Limit)
	if err != nil {
		return nil, err
	}
	return &dynamodb.ScanOutput{
		Items:            page,
		Count:            int32(len(page)),
		ScannedCount:     int32(len(page)),
		LastEvaluatedKey: last,
	}, nil
}

// DescribeTable reports every known table as ACTIVE.
func (f *Fake) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpDescribeTable); err != nil {
		return nil, err
	}
	name := aws.ToString(params.TableName)
	t, err := f.table(name)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   aws.String(name),
			TableStatus: types.TableStatusActive,
			ItemCount:   aws.Int64(int64(len(t.items))),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(t.hashKey), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(t.rangeKey), KeyType: types.KeyTypeRange},
			},
		},
	}, nil
}

// CreateTable creates a table from the hash and range elements of the key schema.
func (f *Fake) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpCreateTable); err != nil {
		return nil, err
	}
	name := aws.ToString(params.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{
			Message: aws.String(fmt.Sprintf("Table already exists: %s", name)),
		}
	}
	t := &table{items: make(map[string]map[string]types.AttributeValue)}
	for _, el := range params.KeySchema {
		switch el.KeyType {
		case types.KeyTypeHash:
			t.hashKey = aws.ToString(el.AttributeName)
		case types.KeyTypeRange:
			t.rangeKey = aws.ToString(el.AttributeName)
		}
	}
	f.tables[name] = t
	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{
			TableName:   aws.String(name),
			TableStatus: types.TableStatusCreating,
		},
	}, nil
}

func (f *Fake) page(t *table, keys []string, start map[string]types.AttributeValue, limit *int32) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
	if len(start) > 0 {
		sk, err := t.keyOf(start)
		if err != nil {
			return nil, nil, err
		}
		idx := slices.Index(keys, sk)
		if idx < 0 {
			return nil, nil, fmt.Errorf("dynamotest: unknown ExclusiveStartKey %q", sk)
		}
		keys = keys[idx+1:]
	}

	size := f.PageSize
	if limit != nil && (size == 0 || int(*limit) < size) {
		size = int(*limit)
	}

	var last map[string]types.AttributeValue
	if size > 0 && len(keys) > size {
		keys = keys[:size]
		item := t.items[keys[len(keys)-1]]
		last = map[string]types.AttributeValue{t.hashKey: item[t.hashKey]}
		if t.rangeKey != "" {
			last[t.rangeKey] = item[t.rangeKey]
		}
	}

	items := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		items = append(items, maps.Clone(t.items[k]))
	}
	return items, last, nil
}

func (t *table) put(k string, item map[string]types.AttributeValue) {
	if _, ok := t.items[k]; !ok {
		t.order = append(t.order, k)
	}
	t.items[k] = item
}

func (t *table) keyOf(item map[string]types.AttributeValue) (string, error) {
	h, ok := item[t.hashKey]
	if !ok {
		return "", fmt.Errorf("dynamotest: missing hash key %q", t.hashKey)
	}
	if t.rangeKey == "" {
		return scalar(h), nil
	}
	r, ok := item[t.rangeKey]
	if !ok {
		return "", fmt.Errorf("dynamotest: missing range key %q", t.rangeKey)
	}
	return scalar(h) + "\x00" + scalar(r), nil
}

func scalar(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return string(v.Value)
	}
	return ""
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if resolved, ok := names[name]; ok {
			return resolved
		}
	}
	return name
}

// checkCondition evaluates a single attribute_exists or attribute_not_exists
// condition against the current item.
func checkCondition(expr *string, names map[string]string, current map[string]types.AttributeValue) error {
	cond := strings.TrimSpace(aws.ToString(expr))
	if cond == "" {
		return nil
	}

	var want bool
	var arg string
	if rest, ok := strings.CutPrefix(cond, "attribute_not_exists("); ok {
		arg = strings.TrimSuffix(rest, ")")
	} else if rest, ok := strings.CutPrefix(cond, "attribute_exists("); ok {
		arg = strings.TrimSuffix(rest, ")")
		want = true
	} else {
		return fmt.Errorf("dynamotest: unsupported condition %q", cond)
	}

	_, exists := current[resolveName(strings.TrimSpace(arg), names)]
	if exists != want {
		return &types.ConditionalCheckFailedException{
			Message: aws.String("The conditional request failed"),
		}
	}
	return nil
}
