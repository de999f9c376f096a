package database

import (
	"context"
	"database/sql"
	"fmt"
)

// bookingSchema creates the tables owned by the booking core.  The catalog
// tables (shows, seats, show_seats, users) belong to other services and
// are expected to exist already.
//
// seat_claims has one row per non-free seat.  Its primary key is what
// stops two users from holding the same seat at the same time.
var bookingSchema = []string{
	`CREATE TABLE IF NOT EXISTS seat_claims (
		show_id    BIGINT UNSIGNED NOT NULL,
		seat_row   INT UNSIGNED    NOT NULL,
		seat_col   INT UNSIGNED    NOT NULL,
		state      ENUM('HELD','SOLD') NOT NULL,
		holder_id  BIGINT UNSIGNED NULL,
		held_until DATETIME(3)     NULL,
		grade      VARCHAR(32)     NOT NULL DEFAULT 'STANDARD',
		created_at DATETIME(3)     NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at DATETIME(3)     NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		PRIMARY KEY (show_id, seat_row, seat_col),
		KEY idx_seat_claims_lease (state, held_until),
		KEY idx_seat_claims_holder (holder_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservation_sessions (
		id                 CHAR(36)        NOT NULL,
		user_id            BIGINT UNSIGNED NOT NULL,
		show_id            BIGINT UNSIGNED NOT NULL,
		confirmation_code  VARCHAR(16)     NOT NULL,
		status             ENUM('PENDING','CONFIRMED','CANCELLED','EXPIRED') NOT NULL DEFAULT 'PENDING',
		total_amount_cents INT UNSIGNED    NOT NULL DEFAULT 0,
		max_seats          TINYINT UNSIGNED NOT NULL DEFAULT 4,
		created_at         DATETIME(3)     NOT NULL,
		expires_at         DATETIME(3)     NOT NULL,
		updated_at         DATETIME(3)     NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_reservation_sessions_code (confirmation_code),
		KEY idx_reservation_sessions_owner (user_id, show_id, status),
		KEY idx_reservation_sessions_expiry (status, expires_at),
		CONSTRAINT fk_reservation_sessions_show FOREIGN KEY (show_id) REFERENCES shows (id),
		CONSTRAINT fk_reservation_sessions_user FOREIGN KEY (user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservation_items (
		session_id  CHAR(36)        NOT NULL,
		show_id     BIGINT UNSIGNED NOT NULL,
		seat_row    INT UNSIGNED    NOT NULL,
		seat_col    INT UNSIGNED    NOT NULL,
		grade       VARCHAR(32)     NOT NULL,
		price_cents INT UNSIGNED    NOT NULL,
		PRIMARY KEY (session_id, seat_row, seat_col),
		KEY idx_reservation_items_seat (show_id, seat_row, seat_col),
		CONSTRAINT fk_reservation_items_session FOREIGN KEY (session_id)
			REFERENCES reservation_sessions (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the booking tables when they are missing.  It is safe to
// run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range bookingSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
