package entity

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Event is a decoded contract log as delivered by the ingestion layer.
//
// Fields other than the five the store relies on (address, blockHash,
// signature, raw, ...) are kept in Extra so the full object can be persisted
// verbatim under the event column.
type Event struct {
	EventName       string
	LogIndex        int64
	TransactionHash string
	BlockNumber     int64
	ReturnValues    ReturnValues
	Extra           map[string]json.RawMessage
}

// eventFields are the JSON names of the typed Event fields.
var eventFields = []string{"event", "logIndex", "transactionHash", "blockNumber", "returnValues"}

type eventJSON struct {
	Event           string       `json:"event"`
	LogIndex        int64        `json:"logIndex"`
	TransactionHash string       `json:"transactionHash"`
	BlockNumber     int64        `json:"blockNumber"`
	ReturnValues    ReturnValues `json:"returnValues"`
}

// UnmarshalJSON decodes the upstream event shape and keeps unknown fields.
func (e *Event) UnmarshalJSON(data []byte) error {
	var known eventJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, f := range eventFields {
		delete(all, f)
	}

	*e = Event{
		EventName:       known.Event,
		LogIndex:        known.LogIndex,
		TransactionHash: known.TransactionHash,
		BlockNumber:     known.BlockNumber,
		ReturnValues:    known.ReturnValues,
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// MarshalJSON re-assembles the upstream event shape, extra fields included.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+len(eventFields))
	for k, v := range e.Extra {
		out[k] = v
	}

	returnValues := e.ReturnValues
	if returnValues == nil {
		returnValues = ReturnValues{}
	}

	out["event"] = e.EventName
	out["logIndex"] = e.LogIndex
	out["transactionHash"] = e.TransactionHash
	out["blockNumber"] = e.BlockNumber
	out["returnValues"] = map[string]any(returnValues)
	return json.Marshal(out)
}

// Validate checks the fields the store keys and orders on.
func (e *Event) Validate() error {
	if e.EventName == "" {
		return fmt.Errorf("event name must not be empty")
	}
	if e.LogIndex < 0 {
		return fmt.Errorf("logIndex must be non-negative, got %d", e.LogIndex)
	}
	if e.BlockNumber < 0 {
		return fmt.Errorf("blockNumber must be non-negative, got %d", e.BlockNumber)
	}
	hash, err := hexutil.Decode(e.TransactionHash)
	if err != nil {
		return fmt.Errorf("invalid transactionHash %q: %w", e.TransactionHash, err)
	}
	if len(hash) != common.HashLength {
		return fmt.Errorf("transactionHash must be %d bytes, got %d", common.HashLength, len(hash))
	}
	return nil
}

// Transaction is the on-chain transaction that emitted one or more events.
type Transaction struct {
	TransactionHash string
	BlockNumber     int64
}

// TransactionsFromEvents derives one Transaction per distinct hash, keeping
// the first occurrence and the input order.
func TransactionsFromEvents(events []*Event) []Transaction {
	seen := make(map[string]struct{}, len(events))
	txs := make([]Transaction, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.TransactionHash]; ok {
			continue
		}
		seen[e.TransactionHash] = struct{}{}
		txs = append(txs, Transaction{
			TransactionHash: e.TransactionHash,
			BlockNumber:     e.BlockNumber,
		})
	}
	return txs
}

// TransactionHashes returns the distinct hashes of events in input order.
func TransactionHashes(events []*Event) []string {
	txs := TransactionsFromEvents(events)
	hashes := make([]string, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.TransactionHash
	}
	return hashes
}
