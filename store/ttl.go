package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsExpired checks if an item carries a numeric expiry at or before now.
// DynamoDB removes expired items lazily, so reads must skip them.
func IsExpired(item map[string]types.AttributeValue, now time.Time) bool {
	ttlAttr, exists := item[ExpiresAtAttr]
	if !exists {
		return false // No TTL = active
	}
	ttlNum, ok := ttlAttr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= now.Unix()
}

// TTLFilterExpr returns the filter expression that excludes expired items.
// An expiry that is not a number never expires.
func TTLFilterExpr() string {
	return "attribute_not_exists(#exp) OR NOT attribute_type(#exp, :exp_type) OR #exp > :now"
}

// TTLFilterNames returns expression attribute names for TTL filter.
func TTLFilterNames() map[string]string {
	return map[string]string{"#exp": ExpiresAtAttr}
}

// TTLFilterValues returns expression attribute values for TTL filter.
func TTLFilterValues(now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":exp_type": &types.AttributeValueMemberS{Value: string(types.ScalarAttributeTypeN)},
		":now": &types.AttributeValueMemberN{
			Value: strconv.FormatInt(now.Unix(), 10),
		},
	}
}

// expiryAttr returns the expiry attribute for a record written at now.
func expiryAttr(now time.Time, ttl time.Duration) types.AttributeValue {
	return &types.AttributeValueMemberN{
		Value: strconv.FormatInt(now.Add(ttl).Unix(), 10),
	}
}

// mergeExprNames merges multiple expression attribute name maps.
func mergeExprNames(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
