package dispatch

import (
	"encoding/json"
	"testing"
	"time"
)

type untagged struct {
	OrderID   string
	UnitPrice float64
	internal  string
}

type tagged struct {
	ID        string    `json:"id"`
	Secret    string    `json:"-"`
	Nick      string    `json:"nickname,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Lines     []untagged
}

func roundTrip(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	return out
}

func TestMarshal_LowerCamelByConvention(t *testing.T) {
	out := roundTrip(t, untagged{OrderID: "o-1", UnitPrice: 2.5, internal: "x"})

	if out["orderId"] != "o-1" {
		t.Errorf("OrderID should serialize as orderId: %v", out)
	}
	if out["unitPrice"] != 2.5 {
		t.Errorf("UnitPrice should serialize as unitPrice: %v", out)
	}
	if _, ok := out["internal"]; ok {
		t.Error("unexported field leaked")
	}
}

func TestMarshal_TagsWin(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := roundTrip(t, &tagged{ID: "a", Secret: "s", CreatedAt: now, Lines: []untagged{{OrderID: "o"}}})

	if out["id"] != "a" {
		t.Errorf("tag name not honored: %v", out)
	}
	if _, ok := out["Secret"]; ok {
		t.Error(`json:"-" field leaked`)
	}
	if _, ok := out["nickname"]; ok {
		t.Error("omitempty zero field leaked")
	}
	if out["createdAt"] != now.Format(time.RFC3339) {
		t.Errorf("time should keep its own encoding: %v", out["createdAt"])
	}
	lines, ok := out["lines"].([]any)
	if !ok || len(lines) != 1 {
		t.Fatalf("nested slice = %v", out["lines"])
	}
	if lines[0].(map[string]any)["orderId"] != "o" {
		t.Errorf("nested struct not converted: %v", lines[0])
	}
}

func TestMarshal_NonStructValues(t *testing.T) {
	data, err := Marshal([]string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["a","b"]` {
		t.Errorf("slice = %s", data)
	}

	data, err = Marshal(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "null" {
		t.Errorf("nil = %s", data)
	}

	var empty []int
	data, err = Marshal(empty)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("nil slice should serialize as []: %s", data)
	}
}
