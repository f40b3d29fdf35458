package testutil

import (
	"fmt"

	"github.com/archon-research/event-store/internal/domain/entity"
)

// TxHash returns a deterministic, valid 32-byte transaction hash for n.
func TxHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// NewEvent builds a valid event with the given identity and return values.
func NewEvent(eventName string, txN int, logIndex, blockNumber int64, returnValues entity.ReturnValues) *entity.Event {
	return &entity.Event{
		EventName:       eventName,
		LogIndex:        logIndex,
		TransactionHash: TxHash(txN),
		BlockNumber:     blockNumber,
		ReturnValues:    returnValues,
	}
}

// KittyEvents returns four events referencing kittyID through kittyId,
// matronId, sireId and tokenId respectively, in four transactions with
// increasing block numbers starting at firstBlock.
func KittyEvents(kittyID string, firstBlock int64) []*entity.Event {
	return []*entity.Event{
		NewEvent("Birth", 101, 0, firstBlock, entity.ReturnValues{"kittyId": kittyID, "owner": "0x01"}),
		NewEvent("Pregnant", 102, 0, firstBlock+1, entity.ReturnValues{"matronId": kittyID, "sireId": "7"}),
		NewEvent("Pregnant", 103, 0, firstBlock+2, entity.ReturnValues{"matronId": "8", "sireId": kittyID}),
		NewEvent("Transfer", 104, 0, firstBlock+3, entity.ReturnValues{"from": "0x01", "to": "0x02", "tokenId": kittyID}),
	}
}
