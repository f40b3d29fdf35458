package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/event-store/internal/domain/entity"
	"github.com/archon-research/event-store/internal/ports/outbound"
)

// Compile-time checks that EventStorage implements the outbound ports
var (
	_ outbound.EventStorage = (*EventStorage)(nil)
	_ outbound.Pinger       = (*EventStorage)(nil)
)

// EventStorage is a PostgreSQL implementation of the outbound.EventStorage port.
// It stores transactions in blockchain_transactions and their events in
// blockchain_events.
type EventStorage struct {
	pool      *pgxpool.Pool
	txm       *TxManager
	batchSize int
	logger    *slog.Logger
}

// NewEventStorage creates a new PostgreSQL event storage. A batchSize of 0
// uses DefaultBatchSize.
func NewEventStorage(pool *pgxpool.Pool, logger *slog.Logger, batchSize int) (*EventStorage, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	logger = logger.With("component", "postgres-event-storage")

	txm, err := NewTxManager(pool, logger)
	if err != nil {
		return nil, err
	}

	return &EventStorage{
		pool:      pool,
		txm:       txm,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Ping checks the database connection.
func (s *EventStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *EventStorage) Close() {
	s.pool.Close()
}

// Save persists events in one transaction: the optional delete, then the
// transaction rows, then the event rows. Existing rows are left untouched.
func (s *EventStorage) Save(ctx context.Context, contractName string, events []*entity.Event, deleteExisting bool) error {
	if len(events) == 0 {
		return nil
	}

	txs := entity.TransactionsFromEvents(events)
	eventRows, err := newEventInsertRows(contractName, events)
	if err != nil {
		return err
	}

	err = s.txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		if deleteExisting {
			if err := s.deleteTransactions(ctx, tx, contractName, entity.TransactionHashes(events)); err != nil {
				return err
			}
		}

		for _, batch := range chunk(txs, s.batchSize) {
			query, args, err := buildInsertTransactions(batch)
			if err != nil {
				return fmt.Errorf("failed to build transaction insert: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert transactions: %w", err)
			}
		}

		for _, batch := range chunk(eventRows, s.batchSize) {
			query, args, err := buildInsertEvents(batch)
			if err != nil {
				return fmt.Errorf("failed to build event insert: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert events: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("saved events",
		"contract", contractName,
		"transactions", len(txs),
		"events", len(eventRows),
		"deleteExisting", deleteExisting,
	)
	return nil
}

func (s *EventStorage) deleteTransactions(ctx context.Context, tx pgx.Tx, contractName string, hashes []string) error {
	query, args, err := buildDeleteTransactions(contractName, hashes)
	if err != nil {
		return fmt.Errorf("failed to build transaction delete: %w", err)
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete existing transactions: %w", err)
	}
	s.logger.Debug("deleted existing transactions", "contract", contractName, "count", tag.RowsAffected())
	return nil
}

// GetEvents returns joined rows filtered by contract and event name.
func (s *EventStorage) GetEvents(ctx context.Context, args outbound.GetEventsArgs) ([]entity.EventRecord, error) {
	query, queryArgs, err := buildGetEvents(args)
	if err != nil {
		return nil, fmt.Errorf("failed to build events query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[eventRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	return toRecords(collected, eventRow.toRecord)
}

// FindByReturnValues returns events whose return_values[key] equals value as text.
func (s *EventStorage) FindByReturnValues(ctx context.Context, args outbound.FindByReturnValuesArgs) ([]entity.EventRecord, error) {
	if args.Key == "" {
		return nil, fmt.Errorf("return value key must not be empty")
	}
	query, queryArgs, err := buildFindByReturnValues(args)
	if err != nil {
		return nil, fmt.Errorf("failed to build return value query: %w", err)
	}
	return s.queryReturnValueRows(ctx, query, queryArgs)
}

// GetKittyHistory returns every event that references kittyID.
func (s *EventStorage) GetKittyHistory(ctx context.Context, kittyID string) ([]entity.EventRecord, error) {
	query, queryArgs, err := buildGetKittyHistory(kittyID)
	if err != nil {
		return nil, fmt.Errorf("failed to build kitty history query: %w", err)
	}
	return s.queryReturnValueRows(ctx, query, queryArgs)
}

func (s *EventStorage) queryReturnValueRows(ctx context.Context, query string, args []any) ([]entity.EventRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query return values: %w", err)
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[returnValueRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan return values: %w", err)
	}
	return toRecords(collected, returnValueRow.toRecord)
}
