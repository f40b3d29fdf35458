package entity

import "encoding/json"

// EventRecord is a stored event as returned to read callers.
//
// Queries that select a subset of columns leave the remaining fields at their
// zero value; those are omitted from the JSON encoding.
type EventRecord struct {
	TransactionHash string          `json:"transactionHash,omitempty"`
	BlockNumber     int64           `json:"blockNumber"`
	ContractName    string          `json:"contractName,omitempty"`
	EventName       string          `json:"eventName"`
	LogIndex        *int64          `json:"logIndex,omitempty"`
	Event           json.RawMessage `json:"event,omitempty"`
	ReturnValues    ReturnValues    `json:"returnValues"`
}
