package history

import (
	"context"
	stdsql "database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// failSessions marks every session matching where as failed with message,
// then fails their pending and active stages. The status guard is applied
// again on update so a session finishing concurrently is left alone.
func (r *repository) failSessions(ctx context.Context, where *entsql.Predicate, guard []models.SessionStatus, message string) (int, error) {
	var count int
	err := r.inTx(ctx, func(tx *stdsql.Tx) error {
		query, args := r.selectFrom(tableSessions, []string{"session_id"}).Where(where).Query()
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := models.NowUs()
		failed := make([]string, 0, len(ids))
		for _, id := range ids {
			query, args := r.b().Update(tableSessions).
				Set("status", string(models.SessionStatusFailed)).
				Set("error_message", message).
				Set("completed_at_us", now).
				SetNull("pause_metadata").
				Where(entsql.And(
					entsql.EQ("session_id", id),
					entsql.In("status", statusArgs(guard)...),
				)).
				Query()
			n, err := r.exec(ctx, tx, query, args)
			if err != nil {
				return fmt.Errorf("failed to mark session %s failed: %w", id, err)
			}
			if n == 1 {
				failed = append(failed, id)
			}
		}

		if _, err := r.failActiveStages(ctx, tx, failed, message, now); err != nil {
			return fmt.Errorf("failed to fail stages: %w", err)
		}
		count = len(failed)
		return nil
	})
	return count, err
}
