package entity

import (
	"encoding/json"
	"strings"
	"testing"
)

const testHash = "0x8f0e0f4b6f4b1d3c0d1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f70"

func TestEvent_UnmarshalJSON(t *testing.T) {
	raw := `{
		"event": "Birth",
		"logIndex": 3,
		"transactionHash": "` + testHash + `",
		"blockNumber": 4605167,
		"address": "0x06012c8cf97BEaD5deAe237070F9587f8E7A266d",
		"blockHash": "0xabc",
		"returnValues": {"0": "0x1", "owner": "0x1", "kittyId": "1"}
	}`

	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if e.EventName != "Birth" {
		t.Errorf("expected EventName=Birth, got %s", e.EventName)
	}
	if e.LogIndex != 3 {
		t.Errorf("expected LogIndex=3, got %d", e.LogIndex)
	}
	if e.BlockNumber != 4605167 {
		t.Errorf("expected BlockNumber=4605167, got %d", e.BlockNumber)
	}
	if e.TransactionHash != testHash {
		t.Errorf("expected TransactionHash=%s, got %s", testHash, e.TransactionHash)
	}
	if len(e.ReturnValues) != 3 {
		t.Errorf("expected 3 return values, got %d", len(e.ReturnValues))
	}
	if len(e.Extra) != 2 {
		t.Fatalf("expected 2 extra fields, got %d: %v", len(e.Extra), e.Extra)
	}
	if string(e.Extra["blockHash"]) != `"0xabc"` {
		t.Errorf("expected blockHash to be kept verbatim, got %s", e.Extra["blockHash"])
	}
}

func TestEvent_MarshalJSON_KeepsExtraFields(t *testing.T) {
	e := Event{
		EventName:       "Transfer",
		LogIndex:        1,
		TransactionHash: testHash,
		BlockNumber:     10,
		ReturnValues:    ReturnValues{"tokenId": "9"},
		Extra:           map[string]json.RawMessage{"address": json.RawMessage(`"0xdead"`)},
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"event", "logIndex", "transactionHash", "blockNumber", "returnValues", "address"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in %s", key, data)
		}
	}
	if decoded["address"] != "0xdead" {
		t.Errorf("expected address=0xdead, got %v", decoded["address"])
	}
}

func TestEvent_MarshalJSON_NilReturnValues(t *testing.T) {
	data, err := json.Marshal(Event{EventName: "Pause", TransactionHash: testHash})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"returnValues":{}`) {
		t.Errorf("expected empty returnValues object, got %s", data)
	}
}

func TestEvent_Validate(t *testing.T) {
	valid := func() *Event {
		return &Event{EventName: "Birth", LogIndex: 0, TransactionHash: testHash, BlockNumber: 1}
	}

	tests := []struct {
		name        string
		mutate      func(e *Event)
		wantErr     bool
		errContains string
	}{
		{name: "valid", mutate: func(e *Event) {}},
		{name: "empty event name", mutate: func(e *Event) { e.EventName = "" }, wantErr: true, errContains: "event name"},
		{name: "negative log index", mutate: func(e *Event) { e.LogIndex = -1 }, wantErr: true, errContains: "logIndex"},
		{name: "negative block number", mutate: func(e *Event) { e.BlockNumber = -5 }, wantErr: true, errContains: "blockNumber"},
		{name: "missing 0x prefix", mutate: func(e *Event) { e.TransactionHash = testHash[2:] }, wantErr: true, errContains: "invalid transactionHash"},
		{name: "short hash", mutate: func(e *Event) { e.TransactionHash = "0x1234" }, wantErr: true, errContains: "32 bytes"},
		{name: "empty hash", mutate: func(e *Event) { e.TransactionHash = "" }, wantErr: true, errContains: "invalid transactionHash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(e)
			err := e.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %v", tt.errContains, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTransactionsFromEvents(t *testing.T) {
	hashB := strings.Replace(testHash, "8f", "9f", 1)
	events := []*Event{
		{TransactionHash: testHash, BlockNumber: 5, LogIndex: 0},
		{TransactionHash: hashB, BlockNumber: 6, LogIndex: 0},
		{TransactionHash: testHash, BlockNumber: 5, LogIndex: 1},
	}

	txs := TransactionsFromEvents(events)
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].TransactionHash != testHash || txs[0].BlockNumber != 5 {
		t.Errorf("unexpected first transaction: %+v", txs[0])
	}
	if txs[1].TransactionHash != hashB || txs[1].BlockNumber != 6 {
		t.Errorf("unexpected second transaction: %+v", txs[1])
	}

	hashes := TransactionHashes(events)
	if len(hashes) != 2 || hashes[0] != testHash || hashes[1] != hashB {
		t.Errorf("unexpected hashes: %v", hashes)
	}
}
