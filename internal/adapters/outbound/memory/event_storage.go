// event_storage.go provides an in-memory implementation of EventStorage.
//
// It mirrors the PostgreSQL adapter: transactions and events are stored
// separately, writes are idempotent and atomic, and return values are kept as
// encoded documents so lookups compare the same text the database would.
//
// All operations are thread-safe. Data is lost on process restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/archon-research/event-store/internal/domain/entity"
	"github.com/archon-research/event-store/internal/ports/outbound"
)

// Compile-time checks that EventStorage implements the outbound ports
var (
	_ outbound.EventStorage = (*EventStorage)(nil)
	_ outbound.Pinger       = (*EventStorage)(nil)
)

type eventKey struct {
	transactionHash string
	logIndex        int64
}

type storedEvent struct {
	seq             uint64
	contractName    string
	eventName       string
	logIndex        int64
	transactionHash string
	event           []byte
	returnValues    []byte
}

// EventStorage is an in-memory implementation of the EventStorage port.
type EventStorage struct {
	mu           sync.RWMutex
	transactions map[string]int64 // hash -> block number
	events       map[eventKey]*storedEvent
	seq          uint64
	logger       *slog.Logger
}

// NewEventStorage creates an empty in-memory event storage.
func NewEventStorage(logger *slog.Logger) *EventStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStorage{
		transactions: make(map[string]int64),
		events:       make(map[eventKey]*storedEvent),
		logger:       logger.With("component", "memory-event-storage"),
	}
}

// Ping always succeeds.
func (s *EventStorage) Ping(ctx context.Context) error {
	return nil
}

// Save persists events for contractName. Every event is encoded before any
// state changes, so a failing batch leaves the store untouched.
func (s *EventStorage) Save(ctx context.Context, contractName string, events []*entity.Event, deleteExisting bool) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]*storedEvent, 0, len(events))
	for _, e := range events {
		if e.LogIndex < 0 {
			return fmt.Errorf("failed to insert events: logIndex must be non-negative, got %d", e.LogIndex)
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s/%d: %w", e.TransactionHash, e.LogIndex, err)
		}
		returnValues, err := e.ReturnValues.MarshalDocument()
		if err != nil {
			return fmt.Errorf("failed to marshal return values %s/%d: %w", e.TransactionHash, e.LogIndex, err)
		}
		rows = append(rows, &storedEvent{
			contractName:    contractName,
			eventName:       e.EventName,
			logIndex:        e.LogIndex,
			transactionHash: e.TransactionHash,
			event:           payload,
			returnValues:    returnValues,
		})
	}
	txs := entity.TransactionsFromEvents(events)

	s.mu.Lock()
	defer s.mu.Unlock()

	if deleteExisting {
		s.deleteTransactions(contractName, entity.TransactionHashes(events))
	}

	for _, tx := range txs {
		if _, ok := s.transactions[tx.TransactionHash]; !ok {
			s.transactions[tx.TransactionHash] = tx.BlockNumber
		}
	}
	for _, row := range rows {
		key := eventKey{row.transactionHash, row.logIndex}
		if _, ok := s.events[key]; ok {
			continue
		}
		s.seq++
		row.seq = s.seq
		s.events[key] = row
	}

	s.logger.Debug("saved events", "contract", contractName, "transactions", len(txs), "events", len(rows))
	return nil
}

// deleteTransactions removes the given transactions that carry an event of
// contractName, together with all of their events. Caller holds mu.
func (s *EventStorage) deleteTransactions(contractName string, hashes []string) {
	owned := make(map[string]bool)
	for _, e := range s.events {
		if e.contractName == contractName {
			owned[e.transactionHash] = true
		}
	}

	for _, hash := range hashes {
		if !owned[hash] {
			continue
		}
		delete(s.transactions, hash)
		for key := range s.events {
			if key.transactionHash == hash {
				delete(s.events, key)
			}
		}
	}
}

// GetEvents returns joined rows filtered by contract and event name.
func (s *EventStorage) GetEvents(ctx context.Context, args outbound.GetEventsArgs) ([]entity.EventRecord, error) {
	matches := s.selectEvents(func(e *storedEvent) bool {
		if args.ContractName != "" && e.contractName != args.ContractName {
			return false
		}
		return args.EventName == "" || e.eventName == args.EventName
	}, args.Order == outbound.Descending)

	if uint64(len(matches)) > args.Limit {
		matches = matches[:args.Limit]
	}

	records := make([]entity.EventRecord, 0, len(matches))
	for _, m := range matches {
		returnValues, err := decodeReturnValues(m.returnValues)
		if err != nil {
			return nil, err
		}
		logIndex := m.logIndex
		records = append(records, entity.EventRecord{
			TransactionHash: m.transactionHash,
			BlockNumber:     m.blockNumber,
			ContractName:    m.contractName,
			EventName:       m.eventName,
			LogIndex:        &logIndex,
			Event:           json.RawMessage(m.event),
			ReturnValues:    returnValues,
		})
	}
	return records, nil
}

// FindByReturnValues returns events whose return value under key equals value as text.
func (s *EventStorage) FindByReturnValues(ctx context.Context, args outbound.FindByReturnValuesArgs) ([]entity.EventRecord, error) {
	if args.Key == "" {
		return nil, fmt.Errorf("return value key must not be empty")
	}
	return s.findReturnValues([]string{args.Key}, args.Value)
}

// GetKittyHistory returns every event that references kittyID.
func (s *EventStorage) GetKittyHistory(ctx context.Context, kittyID string) ([]entity.EventRecord, error) {
	return s.findReturnValues(outbound.KittyIDFields, kittyID)
}

func (s *EventStorage) findReturnValues(keys []string, value string) ([]entity.EventRecord, error) {
	var decodeErr error
	matches := s.selectEvents(func(e *storedEvent) bool {
		if decodeErr != nil {
			return false
		}
		rv, err := decodeReturnValues(e.returnValues)
		if err != nil {
			decodeErr = err
			return false
		}
		for _, key := range keys {
			if v, ok := rv.String(key); ok && v == value {
				return true
			}
		}
		return false
	}, false)
	if decodeErr != nil {
		return nil, decodeErr
	}

	records := make([]entity.EventRecord, 0, len(matches))
	for _, m := range matches {
		returnValues, err := decodeReturnValues(m.returnValues)
		if err != nil {
			return nil, err
		}
		records = append(records, entity.EventRecord{
			BlockNumber:  m.blockNumber,
			EventName:    m.eventName,
			ReturnValues: returnValues,
		})
	}
	return records, nil
}

type joinedEvent struct {
	*storedEvent
	blockNumber int64
}

// selectEvents returns the joined events matching keep, ordered by block
// number then log index.
func (s *EventStorage) selectEvents(keep func(*storedEvent) bool, descending bool) []joinedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []joinedEvent
	for _, e := range s.events {
		block, ok := s.transactions[e.transactionHash]
		if !ok || !keep(e) {
			continue
		}
		out = append(out, joinedEvent{storedEvent: e, blockNumber: block})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.blockNumber != b.blockNumber {
			if descending {
				return a.blockNumber > b.blockNumber
			}
			return a.blockNumber < b.blockNumber
		}
		if a.logIndex != b.logIndex {
			if descending {
				return a.logIndex > b.logIndex
			}
			return a.logIndex < b.logIndex
		}
		return a.seq < b.seq
	})
	return out
}

func decodeReturnValues(data []byte) (entity.ReturnValues, error) {
	var rv entity.ReturnValues
	if err := json.Unmarshal(data, &rv); err != nil {
		return nil, fmt.Errorf("failed to decode return values: %w", err)
	}
	if rv == nil {
		rv = entity.ReturnValues{}
	}
	return rv, nil
}
