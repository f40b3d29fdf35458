package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/archon-research/event-store/internal/domain/entity"
)

// eventInsertRow is one blockchain_events row ready for insertion.
type eventInsertRow struct {
	ContractName    string
	EventName       string
	LogIndex        int64
	Event           []byte
	TransactionHash string
	ReturnValues    []byte
}

func newEventInsertRows(contractName string, events []*entity.Event) ([]eventInsertRow, error) {
	rows := make([]eventInsertRow, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event %s/%d: %w", e.TransactionHash, e.LogIndex, err)
		}
		returnValues, err := e.ReturnValues.MarshalDocument()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal return values %s/%d: %w", e.TransactionHash, e.LogIndex, err)
		}
		rows = append(rows, eventInsertRow{
			ContractName:    contractName,
			EventName:       e.EventName,
			LogIndex:        e.LogIndex,
			Event:           payload,
			TransactionHash: e.TransactionHash,
			ReturnValues:    returnValues,
		})
	}
	return rows, nil
}

// eventRow is the joined transaction/event row of GetEvents. The db tags are
// the only place storage column names appear on the read path.
type eventRow struct {
	TransactionHash string `db:"transaction_hash"`
	BlockNumber     int64  `db:"block_number"`
	ContractName    string `db:"contract_name"`
	EventName       string `db:"event_name"`
	LogIndex        int64  `db:"log_index"`
	Event           []byte `db:"event"`
	ReturnValues    []byte `db:"return_values"`
}

func (r eventRow) toRecord() (entity.EventRecord, error) {
	returnValues, err := decodeReturnValues(r.ReturnValues)
	if err != nil {
		return entity.EventRecord{}, err
	}
	logIndex := r.LogIndex
	return entity.EventRecord{
		TransactionHash: r.TransactionHash,
		BlockNumber:     r.BlockNumber,
		ContractName:    r.ContractName,
		EventName:       r.EventName,
		LogIndex:        &logIndex,
		Event:           json.RawMessage(r.Event),
		ReturnValues:    returnValues,
	}, nil
}

// returnValueRow is the narrow row of the return value searches.
type returnValueRow struct {
	BlockNumber  int64  `db:"block_number"`
	EventName    string `db:"event_name"`
	ReturnValues []byte `db:"return_values"`
}

func (r returnValueRow) toRecord() (entity.EventRecord, error) {
	returnValues, err := decodeReturnValues(r.ReturnValues)
	if err != nil {
		return entity.EventRecord{}, err
	}
	return entity.EventRecord{
		BlockNumber:  r.BlockNumber,
		EventName:    r.EventName,
		ReturnValues: returnValues,
	}, nil
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

// toRecords maps every row through convert, stopping at the first error.
func toRecords[R any](rows []R, convert func(R) (entity.EventRecord, error)) ([]entity.EventRecord, error) {
	records := make([]entity.EventRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := convert(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
