package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/seat-booking-core/internal/clock"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// MySQLStore runs units of work against MySQL.  The database must be
// opened with clientFoundRows=true so conditional updates report matched
// rather than changed rows.
type MySQLStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewMySQLStore returns a store bound to db.  clk supplies "now" for every
// expiry comparison so all instances agree with the application clock
// rather than the database server's.
func NewMySQLStore(db *sql.DB, clk clock.Clock) *MySQLStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &MySQLStore{db: db, clock: clk}
}

// Atomic begins a transaction, runs fn and commits.  Any error from fn, or
// a panic, rolls the transaction back.
func (s *MySQLStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(ctx, &mysqlTx{q: sqlTx, clock: s.clock}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Ledger returns a ledger outside any transaction, used for read-only
// snapshots.
func (s *MySQLStore) Ledger() Ledger { return &ClaimRepo{q: s.db, clock: s.clock} }

// Sessions returns a session repository outside any transaction.
func (s *MySQLStore) Sessions() SessionRepository { return &SessionRepo{q: s.db, clock: s.clock} }

type mysqlTx struct {
	q     querier
	clock clock.Clock
}

func (t *mysqlTx) Ledger() Ledger              { return &ClaimRepo{q: t.q, clock: t.clock} }
func (t *mysqlTx) Sessions() SessionRepository { return &SessionRepo{q: t.q, clock: t.clock} }

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
