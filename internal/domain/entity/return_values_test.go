package entity

import (
	"encoding/json"
	"testing"
)

func TestReturnValues_StripPositional(t *testing.T) {
	tests := []struct {
		name string
		in   ReturnValues
		want []string
	}{
		{
			name: "named and positional duplicates",
			in:   ReturnValues{"0": "a", "kittyId": "a"},
			want: []string{"kittyId"},
		},
		{
			name: "several positions",
			in:   ReturnValues{"0": "0xabc", "1": "0xdef", "2": "5", "from": "0xabc", "to": "0xdef", "tokenId": "5"},
			want: []string{"from", "to", "tokenId"},
		},
		{
			name: "positions beyond the named count",
			in:   ReturnValues{"7": "x", "owner": "x"},
			want: []string{"owner"},
		},
		{
			name: "non canonical integers are names",
			in:   ReturnValues{"01": "a", "-1": "b", "1.5": "c", "0": "d"},
			want: []string{"01", "-1", "1.5"},
		},
		{
			name: "only named",
			in:   ReturnValues{"matronId": "1", "sireId": "2"},
			want: []string{"matronId", "sireId"},
		},
		{
			name: "empty",
			in:   ReturnValues{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.StripPositional()
			if len(tt.in) != len(tt.want) {
				t.Fatalf("expected %d keys, got %d: %v", len(tt.want), len(tt.in), tt.in)
			}
			for _, k := range tt.want {
				if _, ok := tt.in[k]; !ok {
					t.Errorf("expected key %q to survive, got %v", k, tt.in)
				}
			}
		})
	}
}

func TestReturnValues_StripPositional_NilMap(t *testing.T) {
	var rv ReturnValues
	rv.StripPositional()
	if rv != nil {
		t.Errorf("expected nil map to stay nil, got %v", rv)
	}
}

func TestReturnValues_UnmarshalKeepsLargeNumbers(t *testing.T) {
	var rv ReturnValues
	if err := json.Unmarshal([]byte(`{"amount":115792089237316195423570985008687907853269984665640564039457584007913129639935}`), &rv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, ok := rv.String("amount")
	if !ok {
		t.Fatal("expected amount to be present")
	}
	if got != "115792089237316195423570985008687907853269984665640564039457584007913129639935" {
		t.Errorf("number was not preserved, got %s", got)
	}
}

func TestReturnValues_String(t *testing.T) {
	rv := ReturnValues{
		"s":    "42",
		"n":    json.Number("42"),
		"f":    float64(42),
		"b":    true,
		"null": nil,
	}

	for _, key := range []string{"s", "n", "f"} {
		got, ok := rv.String(key)
		if !ok || got != "42" {
			t.Errorf("String(%q) = %q, %v; want 42, true", key, got, ok)
		}
	}
	if got, _ := rv.String("b"); got != "true" {
		t.Errorf("String(b) = %q, want true", got)
	}
	if _, ok := rv.String("null"); ok {
		t.Error("expected null value to be reported missing")
	}
	if _, ok := rv.String("missing"); ok {
		t.Error("expected missing key to be reported missing")
	}
}

func TestReturnValues_MarshalDocument(t *testing.T) {
	var nilValues ReturnValues
	doc, err := nilValues.MarshalDocument()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(doc) != "{}" {
		t.Errorf("expected {}, got %s", doc)
	}

	doc, err = ReturnValues{"kittyId": "1"}.MarshalDocument()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(doc) != `{"kittyId":"1"}` {
		t.Errorf(`expected {"kittyId":"1"}, got %s`, doc)
	}
}
