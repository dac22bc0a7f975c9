package sqlite

import (
	"context"
	"time"

	"etlrepo/internal/domain"
)

// insertLogEntry appends a row to the repository change log
func insertLogEntry(ctx context.Context, q execer, user string, at time.Time, description string) error {
	id, err := nextID(ctx, q, "r_repository_log", "id_repository_log")
	if err != nil {
		return err
	}
	return exec(ctx, q, "insert log entry",
		"INSERT INTO r_repository_log ("+logColumns+") VALUES (?, ?, ?, ?, ?)",
		id, RepositoryVersion, at, stringToNull(user), stringToNull(description))
}

// ListLog returns the newest change log entries first. A limit of zero or
// less returns the whole log.
func (r *Repository) ListLog(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	query := "SELECT " + logColumns + " FROM r_repository_log ORDER BY id_repository_log DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var rows []logRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.NewBackingStoreError("list log", err)
	}
	entries := make([]domain.LogEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toDomain())
	}
	return entries, nil
}
