package postgres

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/archon-research/event-store/internal/domain/entity"
	"github.com/archon-research/event-store/internal/ports/outbound"
)

const (
	TableTransactions = "blockchain_transactions"
	TableEvents       = "blockchain_events"

	// Constraint names are referenced by the upserts and must match
	// db/migrations.
	ConstraintTransactionsPK = "blockchain_transactions_transaction_hash_pk"
	ConstraintEventsPK       = "blockchain_events_transaction_hash_log_index_pk"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// selectJoined starts a query over transactions joined with their events.
func selectJoined(columns ...string) sq.SelectBuilder {
	return psql.Select(columns...).
		From(TableTransactions + " t").
		Join(TableEvents + " e ON t.transaction_hash = e.transaction_hash")
}

func buildDeleteTransactions(contractName string, hashes []string) (string, []any, error) {
	return psql.Delete(TableTransactions+" t").
		Where(sq.Expr("t.transaction_hash = ANY(?)", hashes)).
		Where(sq.Expr(
			"EXISTS (SELECT 1 FROM "+TableEvents+" e WHERE e.transaction_hash = t.transaction_hash AND e.contract_name = ?)",
			contractName,
		)).
		ToSql()
}

func buildInsertTransactions(txs []entity.Transaction) (string, []any, error) {
	q := psql.Insert(TableTransactions).Columns("transaction_hash", "block_number")
	for _, tx := range txs {
		q = q.Values(tx.TransactionHash, tx.BlockNumber)
	}
	return q.Suffix("ON CONFLICT ON CONSTRAINT " + ConstraintTransactionsPK + " DO NOTHING").ToSql()
}

func buildInsertEvents(rows []eventInsertRow) (string, []any, error) {
	q := psql.Insert(TableEvents).
		Columns("contract_name", "event_name", "log_index", "event", "transaction_hash", "return_values")
	for _, r := range rows {
		q = q.Values(r.ContractName, r.EventName, r.LogIndex, r.Event, r.TransactionHash, r.ReturnValues)
	}
	return q.Suffix("ON CONFLICT ON CONSTRAINT " + ConstraintEventsPK + " DO NOTHING").ToSql()
}

func buildGetEvents(args outbound.GetEventsArgs) (string, []any, error) {
	q := selectJoined(
		"t.transaction_hash", "t.block_number",
		"e.contract_name", "e.event_name", "e.log_index", "e.event", "e.return_values",
	)
	if args.ContractName != "" {
		q = q.Where(sq.Eq{"e.contract_name": args.ContractName})
	}
	if args.EventName != "" {
		q = q.Where(sq.Eq{"e.event_name": args.EventName})
	}

	dir := "ASC"
	if args.Order == outbound.Descending {
		dir = "DESC"
	}
	q = q.OrderBy("t.block_number "+dir, "e.log_index "+dir)

	return q.Limit(args.Limit).ToSql()
}

func buildFindByReturnValues(args outbound.FindByReturnValuesArgs) (string, []any, error) {
	return selectJoined("t.block_number", "e.event_name", "e.return_values").
		Where(sq.Expr("e.return_values ->> ?::text = ?", args.Key, args.Value)).
		OrderBy("t.block_number ASC", "e.log_index ASC").
		ToSql()
}

// buildGetKittyHistory inlines the field names so each branch matches its
// expression index in db/migrations. The names are constants, never input.
func buildGetKittyHistory(kittyID string) (string, []any, error) {
	match := make(sq.Or, 0, len(outbound.KittyIDFields))
	for _, field := range outbound.KittyIDFields {
		match = append(match, sq.Expr("e.return_values ->> '"+field+"' = ?", kittyID))
	}
	return selectJoined("t.block_number", "e.event_name", "e.return_values").
		Where(match).
		OrderBy("t.block_number ASC", "e.log_index ASC").
		ToSql()
}
