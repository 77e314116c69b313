package canonical

import (
	"strings"
	"testing"
)

func TestSumStableUnderKeyOrder(t *testing.T) {
	a := map[string]any{
		"transaction_id": "T-001",
		"task_type":      "liquidation",
		"target":         map[string]any{"price_eth": "0.24", "deadline": "2025-05-14"},
	}
	b := map[string]any{
		"task_type":      "liquidation",
		"target":         map[string]any{"deadline": "2025-05-14", "price_eth": "0.24"},
		"transaction_id": "T-001",
	}
	ha, _, err := Sum(a)
	if err != nil {
		t.Fatalf("sum a: %v", err)
	}
	hb, _, err := Sum(b)
	if err != nil {
		t.Fatalf("sum b: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected equal hashes, got %s vs %s", ha, hb)
	}
	if len(ha) != 64 {
		t.Fatalf("expected 32-byte hex digest, got %d chars", len(ha))
	}
}

func TestSumChangesWithValue(t *testing.T) {
	ha, _, _ := Sum(map[string]any{"amount": "10"})
	hb, _, _ := Sum(map[string]any{"amount": "11"})
	if ha == hb {
		t.Fatalf("expected different hashes")
	}
}

func TestMarshalSortsKeysAndKeepsNulls(t *testing.T) {
	type payload struct {
		Zeta  *string `json:"zeta"`
		Alpha string  `json:"alpha"`
	}
	b, err := Marshal(payload{Alpha: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(b)
	if got != `{"alpha":"x","zeta":null}` {
		t.Fatalf("unexpected canonical form: %s", got)
	}
}

func TestMarshalStructMatchesEquivalentMap(t *testing.T) {
	type payload struct {
		B string  `json:"b"`
		A *string `json:"a"`
	}
	hs, _, err := Sum(payload{B: "v"})
	if err != nil {
		t.Fatal(err)
	}
	hm, _, err := Sum(map[string]any{"a": nil, "b": "v"})
	if err != nil {
		t.Fatal(err)
	}
	if hs != hm {
		t.Fatalf("struct and map forms diverge: %s vs %s", hs, hm)
	}
}

func TestMarshalNumbersKeptVerbatim(t *testing.T) {
	b, err := Marshal(map[string]any{"n": 1234567890123456789})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "1234567890123456789") {
		t.Fatalf("large integer mangled: %s", b)
	}
}
