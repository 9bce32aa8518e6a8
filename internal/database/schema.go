package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables used by the confirmation subsystem.  Events
// are owned by lineup management; the table here only carries the
// columns needed for ownership checks and dashboards.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id          VARCHAR(64)  NOT NULL PRIMARY KEY,
		promoter_id VARCHAR(64)  NOT NULL,
		title       VARCHAR(255) NOT NULL DEFAULT '',
		starts_at   DATETIME     NOT NULL,
		INDEX idx_events_promoter (promoter_id, starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS spots (
		id               VARCHAR(64)    NOT NULL PRIMARY KEY,
		event_id         VARCHAR(64)    NOT NULL,
		name             VARCHAR(255)   NOT NULL DEFAULT '',
		duration_minutes INT            NOT NULL DEFAULT 0,
		payment_amount   DECIMAL(12,2)  NOT NULL DEFAULT 0,
		currency         CHAR(3)        NOT NULL DEFAULT 'USD',
		order_index      INT            NOT NULL DEFAULT 0,
		comedian_id      VARCHAR(64)    NULL,
		status           VARCHAR(16)    NOT NULL DEFAULT 'unassigned',
		deadline         DATETIME(6)    NULL,
		responded_at     DATETIME(6)    NULL,
		reminders_sent   JSON           NOT NULL,
		notes            TEXT           NOT NULL,
		version          BIGINT UNSIGNED NOT NULL DEFAULT 1,
		updated_at       DATETIME(6)    NOT NULL,
		INDEX idx_spots_status_deadline (status, deadline),
		INDEX idx_spots_event (event_id, order_index)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS spot_confirmation_history (
		id          CHAR(26)    NOT NULL PRIMARY KEY,
		spot_id     VARCHAR(64) NOT NULL,
		from_status VARCHAR(16) NOT NULL,
		to_status   VARCHAR(16) NOT NULL,
		actor       VARCHAR(16) NOT NULL,
		actor_id    VARCHAR(64) NOT NULL DEFAULT '',
		at          DATETIME(6) NOT NULL,
		deadline    DATETIME(6) NULL,
		notes       TEXT        NOT NULL,
		INDEX idx_history_spot (spot_id, at),
		CONSTRAINT fk_history_spot FOREIGN KEY (spot_id) REFERENCES spots (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates any missing tables.  Statements are idempotent so
// it is safe to call on every start.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
