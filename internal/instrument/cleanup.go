package instrument

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"form-engine/internal/store"
)

// CleanupOldEvents deletes events older than retentionDays from the _events table.
func CleanupOldEvents(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int) (int64, error) {
	pb := dialect.NewParamBuilder()
	whereExpr := dialect.IntervalDeleteExpr("created_at", pb, fmt.Sprintf("%d", retentionDays))
	n, err := store.Exec(ctx, db, fmt.Sprintf("DELETE FROM _events WHERE %s", whereExpr), pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("event cleanup: %w", err)
	}
	if n > 0 {
		logrus.WithField("deleted", n).Info("event cleanup")
	}
	return n, nil
}

// RunCleanup deletes expired events once a day until ctx is done.
func RunCleanup(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := CleanupOldEvents(ctx, db, dialect, retentionDays); err != nil {
			logrus.WithError(err).Error("event cleanup")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
