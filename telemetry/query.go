package telemetry

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
)

// RecencyFields lists the candidate timestamp fields in priority order.
// "Timestamp" is the attribute the store stamps on every write.
//
// This is a heuristic, not a schema guarantee: the first candidate present in
// any record wins, even when other records only carry a later candidate.
var RecencyFields = []string{"timestamp", "createdAt", TimestampField, "time"}

// ListOptions are the read-side parameters of a list request.
type ListOptions struct {
	// DeviceID restricts results to one partition when non-empty.
	DeviceID string

	// Top truncates the result to its first Top records when HasTop is set.
	Top    int
	HasTop bool
}

// ParseListOptions builds ListOptions from raw query values. A top value that
// is not a non-negative integer is ignored.
func ParseListOptions(deviceID, top string) ListOptions {
	opts := ListOptions{DeviceID: deviceID}
	if top == "" {
		return opts
	}
	n, err := strconv.Atoi(strings.TrimSpace(top))
	if err != nil || n < 0 {
		return opts
	}
	opts.Top = n
	opts.HasTop = true
	return opts
}

// RecencyField returns the first candidate of RecencyFields present in at
// least one record.
func RecencyField(records []Record) (string, bool) {
	for _, name := range RecencyFields {
		for _, rec := range records {
			if _, ok := rec.Field(name); ok {
				return name, true
			}
		}
	}
	return "", false
}

// SortByRecency orders records newest first by their recency field. Records
// missing the field sort last. Without any recency field the retrieval order
// is kept.
func SortByRecency(records []Record) {
	field, ok := RecencyField(records)
	if !ok {
		return
	}
	slices.SortStableFunc(records, func(a, b Record) int {
		av, _ := a.Field(field)
		bv, _ := b.Field(field)
		return compareValues(bv, av)
	})
}

// Shape applies recency ordering and then the Top limit.
func Shape(records []Record, opts ListOptions) []Record {
	SortByRecency(records)
	if opts.HasTop && opts.Top < len(records) {
		records = records[:opts.Top]
	}
	return records
}

// compareValues orders two attribute values ascending. Values are ranked by
// kind first so mixed-type fields still sort consistently:
//
//	absent, null and ""  <  numbers  <  everything else
//
// Numbers compare numerically, everything else by its text form.
func compareValues(a, b any) int {
	ar, br := rankOf(a), rankOf(b)
	if ar != br {
		return cmp.Compare(ar, br)
	}
	switch ar {
	case rankEmpty:
		return 0
	case rankNumber:
		an, _ := numberOf(a)
		bn, _ := numberOf(b)
		return an.Cmp(bn)
	}
	return strings.Compare(textOf(a), textOf(b))
}

const (
	rankEmpty = iota
	rankNumber
	rankOther
)

func rankOf(v any) int {
	if v == nil || v == "" {
		return rankEmpty
	}
	if _, ok := numberOf(v); ok {
		return rankNumber
	}
	return rankOther
}

// numberPrec covers DynamoDB's 38 significant digits.
const numberPrec = 256

func numberOf(v any) (*big.Float, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return nil, false
		}
		return new(big.Float).SetPrec(numberPrec).SetFloat64(n), true
	case json.Number:
		f, _, err := big.ParseFloat(n.String(), 10, numberPrec, big.ToNearestEven)
		if err != nil {
			return nil, false
		}
		return f, true
	}
	return nil, false
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
