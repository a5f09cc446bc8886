package pantry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// Store is the Postgres-backed record store. All operations are
// short-lived; the deduction runs in a single transaction so a burst of
// consume lines never observes half-applied stock.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

const recordColumns = "id, owner, name, quantity, unit, stored_at"

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var qty sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.Name, &qty, &rec.Unit, &rec.StoredAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if qty.Valid {
			v := qty.Float64
			rec.Quantity = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListByOwner returns all records of one user, oldest first.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM pantry_records WHERE owner = $1 ORDER BY stored_at, id", owner)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListByOwnerAndName returns one user's records of a single food, oldest first.
func (s *Store) ListByOwnerAndName(ctx context.Context, owner, name string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM pantry_records WHERE owner = $1 AND name = $2 ORDER BY stored_at, id", owner, name)
	if err != nil {
		return nil, fmt.Errorf("list records by name: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// DeleteByID removes one record and returns it. ErrNotFound means it was
// already gone, which double-tapped delete buttons make routine.
func (s *Store) DeleteByID(ctx context.Context, owner string, id int64) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		"DELETE FROM pantry_records WHERE owner = $1 AND id = $2 RETURNING "+recordColumns, owner, id)

	var rec Record
	var qty sql.NullFloat64
	err := row.Scan(&rec.ID, &rec.Owner, &rec.Name, &qty, &rec.Unit, &rec.StoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("delete record: %w", err)
	}
	if qty.Valid {
		v := qty.Float64
		rec.Quantity = &v
	}
	return rec, nil
}

// DecrementByID reduces one record in place, deleting it when the
// decrement consumes it entirely. Used for indexed partial deletion.
func (s *Store) DecrementByID(ctx context.Context, owner string, id int64, amount float64) (DeductResult, error) {
	res := DeductResult{Requested: amount}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var qty sql.NullFloat64
	err = tx.QueryRowContext(ctx,
		"SELECT quantity FROM pantry_records WHERE owner = $1 AND id = $2 FOR UPDATE", owner, id).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, fmt.Errorf("lock record: %w", err)
	}

	if !qty.Valid || qty.Float64 <= amount {
		if _, err := tx.ExecContext(ctx, "DELETE FROM pantry_records WHERE id = $1", id); err != nil {
			return res, fmt.Errorf("delete record: %w", err)
		}
		res.Deleted = 1
		if qty.Valid {
			res.Consumed = qty.Float64
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			"UPDATE pantry_records SET quantity = quantity - $1 WHERE id = $2", amount, id); err != nil {
			return res, fmt.Errorf("update record: %w", err)
		}
		res.Updated = 1
		res.Consumed = amount
		res.Remaining = qty.Float64 - amount
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// DeductOldestFirst consumes amount of a named food across the user's
// records in storage order, inside one transaction. Quantities never go
// negative; unmet demand comes back as DeductResult.Remainder.
func (s *Store) DeductOldestFirst(ctx context.Context, owner, name string, amount float64) (DeductResult, error) {
	res := DeductResult{Requested: amount}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM pantry_records WHERE owner = $1 AND name = $2 ORDER BY stored_at, id FOR UPDATE",
		owner, name)
	if err != nil {
		return res, fmt.Errorf("lock records: %w", err)
	}
	records, err := scanRecords(rows)
	rows.Close()
	if err != nil {
		return res, err
	}

	steps, remainder := planDeduction(records, amount)
	for _, st := range steps {
		if st.remove {
			if _, err := tx.ExecContext(ctx, "DELETE FROM pantry_records WHERE id = $1", st.recordID); err != nil {
				return res, fmt.Errorf("delete record %d: %w", st.recordID, err)
			}
			res.Deleted++
		} else {
			if _, err := tx.ExecContext(ctx,
				"UPDATE pantry_records SET quantity = $1 WHERE id = $2", st.newQuantity, st.recordID); err != nil {
				return res, fmt.Errorf("update record %d: %w", st.recordID, err)
			}
			res.Updated++
		}
		res.Consumed += st.consumed
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	res.Remainder = remainder
	return res, nil
}
