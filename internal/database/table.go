package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// table implements store.Repository for one owner-scoped record kind. The
// per-kind files supply the statements and the row codec.
type table[T models.Record] struct {
	svc  *Service
	kind models.RecordKind

	selectAll  string
	upsert     string
	deleteById string
	exists     string

	validate func(T) error
	args     func(row T, owner string) []any
	scan     func(rowScanner) (T, error)
	// prefer picks the survivor when a batch carries the same id twice.
	// Nil keeps the later row.
	prefer func(prev, next T) T
	// beforeWrite and beforeDelete run inside the row transaction.
	beforeWrite  func(ctx context.Context, tx *sql.Tx, row T, owner string) error
	afterWrite   func(ctx context.Context, tx *sql.Tx, row T, owner string) error
	beforeDelete func(ctx context.Context, tx *sql.Tx, id, owner string) error
}

var _ store.Repository[models.PoolEnrollment] = (*table[models.PoolEnrollment])(nil)

func (t *table[T]) GetAll(ctx context.Context, owner string) []T {
	if !t.svc.Available() || owner == "" {
		return nil
	}
	return queryRows(ctx, t.svc.db, t.kind, t.scan, t.selectAll, owner)
}

func (t *table[T]) Upsert(ctx context.Context, row T, owner string) error {
	if !t.svc.Available() {
		return nil
	}
	if err := t.check(row, owner); err != nil {
		return err
	}
	return t.writeRow(ctx, row, owner)
}

// UpsertBatch writes each row independently after collapsing duplicate ids.
// One bad row never blocks the rest of the batch.
func (t *table[T]) UpsertBatch(ctx context.Context, rows []T, owner string) store.BatchResult {
	var result store.BatchResult
	if !t.svc.Available() || len(rows) == 0 {
		return result
	}

	unique, removed := dedupe(rows, t.prefer)
	result.Duplicates = removed
	if removed > 0 {
		zap.L().Info("Removed duplicate rows from batch",
			zap.String("kind", string(t.kind)),
			zap.Int("removed", removed),
			zap.Int("remaining", len(unique)))
	}

	for _, row := range unique {
		if err := t.check(row, owner); err != nil {
			zap.L().Debug("Skipping invalid row",
				zap.String("kind", string(t.kind)),
				zap.String("id", row.RecordId()),
				zap.Error(err))
			result.Failed++
			continue
		}
		if err := t.writeRow(ctx, row, owner); err != nil {
			zap.L().Error("Failed to write row",
				zap.String("kind", string(t.kind)),
				zap.String("id", row.RecordId()),
				zap.Error(err))
			result.Failed++
			continue
		}
		result.Written++
	}

	zap.L().Debug("Batch upsert complete",
		zap.String("kind", string(t.kind)),
		zap.Int("written", result.Written),
		zap.Int("failed", result.Failed))
	return result
}

func (t *table[T]) DeleteById(ctx context.Context, id string, owner string) error {
	return t.DeleteBatch(ctx, []string{id}, owner)
}

// DeleteBatch removes the ids for owner in one transaction. Ids that are not
// present are skipped.
func (t *table[T]) DeleteBatch(ctx context.Context, ids []string, owner string) error {
	if !t.svc.Available() || len(ids) == 0 {
		return nil
	}
	if owner == "" {
		return fmt.Errorf("%w: empty owner", store.ErrInvalidRecord)
	}

	return withTx(ctx, t.svc.db, func(tx *sql.Tx) error {
		for _, id := range ids {
			if t.beforeDelete != nil {
				if err := t.beforeDelete(ctx, tx, id, owner); err != nil {
					return fmt.Errorf("failed to delete dependents of %s: %w", id, err)
				}
			}
			if _, err := tx.ExecContext(ctx, t.deleteById, id, owner); err != nil {
				return fmt.Errorf("failed to delete %s %s: %w", t.kind, id, err)
			}
		}
		return nil
	})
}

func (t *table[T]) Exists(ctx context.Context, id string) bool {
	if !t.svc.Available() || id == "" {
		return false
	}
	var count int
	if err := t.svc.db.QueryRowContext(ctx, t.exists, id).Scan(&count); err != nil {
		zap.L().Debug("Existence check failed", zap.String("kind", string(t.kind)), zap.Error(err))
		return false
	}
	return count > 0
}

func (t *table[T]) check(row T, owner string) error {
	if owner == "" {
		return fmt.Errorf("%w: empty owner", store.ErrInvalidRecord)
	}
	if row.RecordId() == "" {
		return fmt.Errorf("%w: missing id", store.ErrInvalidRecord)
	}
	if t.validate != nil {
		return t.validate(row)
	}
	return nil
}

func (t *table[T]) writeRow(ctx context.Context, row T, owner string) error {
	return withTx(ctx, t.svc.db, func(tx *sql.Tx) error {
		if t.beforeWrite != nil {
			if err := t.beforeWrite(ctx, tx, row, owner); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, t.upsert, t.args(row, owner)...); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", t.kind, err)
		}
		if t.afterWrite != nil {
			return t.afterWrite(ctx, tx, row, owner)
		}
		return nil
	})
}

func dedupe[T models.Record](rows []T, prefer func(prev, next T) T) ([]T, int) {
	index := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		id := row.RecordId()
		if i, ok := index[id]; ok {
			if prefer != nil {
				out[i] = prefer(out[i], row)
			} else {
				out[i] = row
			}
			continue
		}
		index[id] = len(out)
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryRows[T any](ctx context.Context, q querier, kind models.RecordKind, scan func(rowScanner) (T, error), query string, args ...any) []T {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		zap.L().Warn("Failed to query local rows", zap.String("kind", string(kind)), zap.Error(err))
		return nil
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var out []T
	for rows.Next() {
		row, err := scan(rows)
		if err != nil {
			zap.L().Warn("Failed to scan row", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during row iteration", zap.String("kind", string(kind)), zap.Error(err))
	}
	return out
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zap.L().Warn("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ensureInteraction inserts a placeholder parent so child rows never dangle.
// The placeholder is overwritten by the next remote merge of that interaction.
func ensureInteraction(ctx context.Context, tx *sql.Tx, interactionId, owner string) error {
	if interactionId == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, queryInsertStubInteraction, interactionId, owner, formatTime(time.Now())); err != nil {
		return fmt.Errorf("failed to create placeholder interaction %s: %w", interactionId, err)
	}
	return nil
}

// Fixed width so lexical order in SQLite equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func encodeMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		zap.L().Warn("Failed to encode metadata", zap.Error(err))
		return ""
	}
	return string(data)
}

func decodeMetadata(value string) map[string]any {
	if value == "" {
		return nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(value), &metadata); err != nil {
		return nil
	}
	return metadata
}
