package telemetry_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jacentio/telemetry-gateway/telemetry"
)

func rec(row string, fields map[string]any) telemetry.Record {
	return telemetry.Record{PartitionKey: "dev-1", RowKey: row, Fields: fields}
}

func rowKeys(records []telemetry.Record) []string {
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = r.RowKey
	}
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseListOptions(t *testing.T) {
	tests := []struct {
		name    string
		top     string
		wantTop int
		wantHas bool
	}{
		{"absent", "", 0, false},
		{"integer", "5", 5, true},
		{"zero", "0", 0, true},
		{"padded", " 3 ", 3, true},
		{"not a number", "abc", 0, false},
		{"float", "2.5", 0, false},
		{"negative", "-1", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := telemetry.ParseListOptions("dev-1", tt.top)
			if opts.DeviceID != "dev-1" {
				t.Errorf("expected DeviceID 'dev-1', got %q", opts.DeviceID)
			}
			if opts.Top != tt.wantTop || opts.HasTop != tt.wantHas {
				t.Errorf("expected (%d, %v), got (%d, %v)", tt.wantTop, tt.wantHas, opts.Top, opts.HasTop)
			}
		})
	}
}

func TestSortByRecency_Timestamp(t *testing.T) {
	records := []telemetry.Record{
		rec("a", map[string]any{"timestamp": "2024-01-01"}),
		rec("b", map[string]any{"timestamp": "2024-06-01"}),
		rec("c", map[string]any{"timestamp": "2023-01-01"}),
	}

	telemetry.SortByRecency(records)

	want := []string{"b", "a", "c"}
	if got := rowKeys(records); !equalKeys(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSortByRecency_MissingSortsLast(t *testing.T) {
	records := []telemetry.Record{
		rec("none-1", map[string]any{"temp": 1.0}),
		rec("old", map[string]any{"timestamp": "2023-01-01"}),
		rec("none-2", map[string]any{}),
		rec("new", map[string]any{"timestamp": "2024-06-01"}),
	}

	telemetry.SortByRecency(records)

	want := []string{"new", "old", "none-1", "none-2"}
	if got := rowKeys(records); !equalKeys(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSortByRecency_NoCandidateKeepsOrder(t *testing.T) {
	records := []telemetry.Record{
		rec("z", map[string]any{"temp": 3.0}),
		rec("a", map[string]any{"temp": 1.0}),
		rec("m", map[string]any{"temp": 2.0}),
	}

	telemetry.SortByRecency(records)

	want := []string{"z", "a", "m"}
	if got := rowKeys(records); !equalKeys(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRecencyField_Priority(t *testing.T) {
	tests := []struct {
		name    string
		records []telemetry.Record
		want    string
		wantOK  bool
	}{
		{
			name:    "none",
			records: []telemetry.Record{rec("a", map[string]any{"x": 1.0})},
			wantOK:  false,
		},
		{
			name:    "empty set",
			records: nil,
			wantOK:  false,
		},
		{
			name: "timestamp beats createdAt across records",
			records: []telemetry.Record{
				rec("a", map[string]any{"createdAt": "2024-01-01"}),
				rec("b", map[string]any{"timestamp": "2023-01-01"}),
			},
			want:   "timestamp",
			wantOK: true,
		},
		{
			name: "store timestamp when no client field",
			records: []telemetry.Record{
				rec("a", map[string]any{"Timestamp": "2024-01-01T00:00:00Z"}),
				rec("b", map[string]any{"time": "x"}),
			},
			want:   "Timestamp",
			wantOK: true,
		},
		{
			name:    "time last",
			records: []telemetry.Record{rec("a", map[string]any{"time": "x"})},
			want:    "time",
			wantOK:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := telemetry.RecencyField(tt.records)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}

func TestSortByRecency_Numeric(t *testing.T) {
	records := []telemetry.Record{
		rec("nine", map[string]any{"time": 9.0}),
		rec("hundred", map[string]any{"time": 100.0}),
		rec("ten", map[string]any{"time": 10.0}),
	}

	telemetry.SortByRecency(records)

	want := []string{"hundred", "ten", "nine"}
	if got := rowKeys(records); !equalKeys(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSortByRecency_LargeIntegers(t *testing.T) {
	records := []telemetry.Record{
		rec("low", map[string]any{"time": json.Number("9007199254740992")}),
		rec("high", map[string]any{"time": json.Number("9007199254740993")}),
		rec("float", map[string]any{"time": 1.5}),
	}

	telemetry.SortByRecency(records)

	want := []string{"high", "low", "float"}
	if got := rowKeys(records); !equalKeys(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSortByRecency_MixedTypes(t *testing.T) {
	records := []telemetry.Record{
		rec("num-9", map[string]any{"time": json.Number("9")}),
		rec("str-5", map[string]any{"time": "5"}),
		rec("missing", map[string]any{}),
		rec("num-10", map[string]any{"time": json.Number("10")}),
		rec("str-9", map[string]any{"time": "9"}),
		rec("null", map[string]any{"time": nil}),
		rec("bool", map[string]any{"time": true}),
	}

	telemetry.SortByRecency(records)

	// Non-numeric values first by text, then numbers, then empties in input order.
	want := []string{"bool", "str-9", "str-5", "num-10", "num-9", "missing", "null"}
	if got := rowKeys(records); !equalKeys(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSortByRecency_MixedTypesIsOrderIndependent(t *testing.T) {
	values := []any{json.Number("10"), "9", 5.0, "5", json.Number("9"), nil, "10"}
	want := []string{"9", "5", "10", "10", "9", "5", "<nil>"}

	// Every rotation of the input must produce the same order.
	for shift := range values {
		records := make([]telemetry.Record, len(values))
		for i := range values {
			v := values[(i+shift)%len(values)]
			records[i] = rec(fmt.Sprint(v), map[string]any{"time": v})
		}

		telemetry.SortByRecency(records)

		if got := rowKeys(records); !equalKeys(got, want) {
			t.Errorf("shift %d: expected %v, got %v", shift, want, got)
		}
	}
}

func TestShape_Top(t *testing.T) {
	records := []telemetry.Record{
		rec("1", map[string]any{"timestamp": "2024-01-01"}),
		rec("2", map[string]any{"timestamp": "2024-01-02"}),
		rec("3", map[string]any{"timestamp": "2024-01-03"}),
		rec("4", map[string]any{"timestamp": "2024-01-04"}),
		rec("5", map[string]any{"timestamp": "2024-01-05"}),
	}

	got := telemetry.Shape(records, telemetry.ParseListOptions("", "2"))

	want := []string{"5", "4"}
	if keys := rowKeys(got); !equalKeys(keys, want) {
		t.Errorf("expected %v, got %v", want, keys)
	}
}

func TestShape_TopLargerThanSet(t *testing.T) {
	records := []telemetry.Record{rec("1", nil), rec("2", nil)}

	got := telemetry.Shape(records, telemetry.ListOptions{Top: 10, HasTop: true})

	if len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
}

func TestShape_InvalidTopIgnored(t *testing.T) {
	records := []telemetry.Record{rec("1", nil), rec("2", nil), rec("3", nil)}

	got := telemetry.Shape(records, telemetry.ParseListOptions("", "lots"))

	if len(got) != 3 {
		t.Errorf("expected 3 records, got %d", len(got))
	}
}
