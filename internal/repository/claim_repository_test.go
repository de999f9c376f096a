package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-booking-core/internal/clock"
	"github.com/iliyamo/seat-booking-core/internal/model"
)

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newMockClaimRepo(t *testing.T) (*ClaimRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewClaimRepo(db, clock.NewFake(testNow)), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var duplicateKey = &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-1-1' for key 'PRIMARY'"}

func TestClaimRepo_HoldInserts(t *testing.T) {
	repo, mock := newMockClaimRepo(t)
	until := testNow.Add(5 * time.Minute)
	mock.ExpectExec(q("INSERT INTO seat_claims")).
		WithArgs(uint64(1), 2, 3, uint64(7), until, "VIP").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Hold(context.Background(), 1, model.Coordinate{Row: 2, Col: 3}, 7, "VIP", until)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepo_HoldLiveClaimIsAlreadyClaimed(t *testing.T) {
	repo, mock := newMockClaimRepo(t)
	mock.ExpectExec(q("INSERT INTO seat_claims")).WillReturnError(duplicateKey)
	mock.ExpectExec(q("DELETE FROM seat_claims")).
		WithArgs(uint64(1), 1, 1, testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Hold(context.Background(), 1, model.Coordinate{Row: 1, Col: 1}, 7, "STANDARD", testNow.Add(time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepo_HoldVacatesElapsedAndRetries(t *testing.T) {
	repo, mock := newMockClaimRepo(t)
	mock.ExpectExec(q("INSERT INTO seat_claims")).WillReturnError(duplicateKey)
	mock.ExpectExec(q("DELETE FROM seat_claims")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO seat_claims")).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Hold(context.Background(), 1, model.Coordinate{Row: 1, Col: 1}, 7, "STANDARD", testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepo_HoldLosesRetryRace(t *testing.T) {
	repo, mock := newMockClaimRepo(t)
	mock.ExpectExec(q("INSERT INTO seat_claims")).WillReturnError(duplicateKey)
	mock.ExpectExec(q("DELETE FROM seat_claims")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO seat_claims")).WillReturnError(duplicateKey)

	err := repo.Hold(context.Background(), 1, model.Coordinate{Row: 1, Col: 1}, 7, "STANDARD", testNow.Add(time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimRepo_HoldPassesOtherErrors(t *testing.T) {
	repo, mock := newMockClaimRepo(t)
	mock.ExpectExec(q("INSERT INTO seat_claims")).WillReturnError(sql.ErrConnDone)

	err := repo.Hold(context.Background(), 1, model.Coordinate{Row: 1, Col: 1}, 7, "STANDARD", testNow)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NotErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimRepo_Extend(t *testing.T) {
	repo, mock := newMockClaimRepo(t)
	until := testNow.Add(3 * time.Minute)
	mock.ExpectExec(q("UPDATE seat_claims SET held_until = ?")).
		WithArgs(until, uint64(1), 1, 2, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE seat_claims SET held_until = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Extend(context.Background(), 1, model.Coordinate{Row: 1, Col: 2}, 7, until))
	assert.ErrorIs(t, repo.Extend(context.Background(), 1, model.Coordinate{Row: 1, Col: 2}, 8, until), ErrNotHeld)
}

func TestClaimRepo_Release(t *testing.T) {
	repo, mock := newMockClaimRepo(t)
	mock.ExpectExec(q("DELETE FROM seat_claims")).
		WithArgs(uint64(1), 1, 2, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM seat_claims")).
		WithArgs(uint64(1), 1, 2, uint64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Release(context.Background(), 1, model.Coordinate{Row: 1, Col: 2}, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Release(context.Background(), 1, model.Coordinate{Row: 1, Col: 2}, 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimRepo_Confirm(t *testing.T) {
	seat := model.Coordinate{Row: 4, Col: 5}

	t.Run("held by caller", func(t *testing.T) {
		repo, mock := newMockClaimRepo(t)
		mock.ExpectQuery(q("SELECT state, holder_id FROM seat_claims")).
			WithArgs(uint64(1), 4, 5).
			WillReturnRows(sqlmock.NewRows([]string{"state", "holder_id"}).AddRow("HELD", 7))
		mock.ExpectExec(q("UPDATE seat_claims SET state = 'SOLD'")).
			WithArgs("VIP", uint64(1), 4, 5).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Confirm(context.Background(), 1, seat, 7, "VIP"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("held by someone else", func(t *testing.T) {
		repo, mock := newMockClaimRepo(t)
		mock.ExpectQuery(q("SELECT state, holder_id FROM seat_claims")).
			WillReturnRows(sqlmock.NewRows([]string{"state", "holder_id"}).AddRow("HELD", 9))

		assert.ErrorIs(t, repo.Confirm(context.Background(), 1, seat, 7, "VIP"), ErrNotHeld)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already sold", func(t *testing.T) {
		repo, mock := newMockClaimRepo(t)
		mock.ExpectQuery(q("SELECT state, holder_id FROM seat_claims")).
			WillReturnRows(sqlmock.NewRows([]string{"state", "holder_id"}).AddRow("SOLD", 7))

		assert.ErrorIs(t, repo.Confirm(context.Background(), 1, seat, 7, "VIP"), ErrNotHeld)
	})

	t.Run("free", func(t *testing.T) {
		repo, mock := newMockClaimRepo(t)
		mock.ExpectQuery(q("SELECT state, holder_id FROM seat_claims")).
			WillReturnRows(sqlmock.NewRows([]string{"state", "holder_id"}))

		assert.ErrorIs(t, repo.Confirm(context.Background(), 1, seat, 7, "VIP"), ErrNotHeld)
	})
}

func TestClaimRepo_ReleaseElapsedUsesClock(t *testing.T) {
	repo, mock := newMockClaimRepo(t)
	mock.ExpectExec(q("DELETE FROM seat_claims")).
		WithArgs(uint64(3), 1, 1, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.ReleaseElapsed(context.Background(), 3, model.Coordinate{Row: 1, Col: 1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepo_Claims(t *testing.T) {
	repo, mock := newMockClaimRepo(t)
	until := testNow.Add(time.Minute)
	mock.ExpectQuery(q("FROM seat_claims")).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"show_id", "seat_row", "seat_col", "state", "holder_id", "held_until", "grade"}).
			AddRow(1, 1, 1, "HELD", 7, until, "STANDARD").
			AddRow(1, 1, 2, "SOLD", 8, nil, "VIP"))

	claims, err := repo.Claims(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, claims, 2)

	assert.Equal(t, model.ClaimHeld, claims[0].State)
	require.NotNil(t, claims[0].HeldUntil)
	assert.True(t, until.Equal(*claims[0].HeldUntil))
	assert.True(t, claims[0].HeldBy(7))

	assert.Equal(t, model.ClaimSold, claims[1].State)
	assert.Nil(t, claims[1].HeldUntil)
	assert.Equal(t, model.Coordinate{Row: 1, Col: 2}, claims[1].Seat)
}

func TestClaimRepo_ElapsedOrphans(t *testing.T) {
	repo, mock := newMockClaimRepo(t)
	mock.ExpectQuery(q("NOT EXISTS")).
		WithArgs(testNow, testNow, 50).
		WillReturnRows(sqlmock.NewRows([]string{"show_id", "seat_row", "seat_col", "state", "holder_id", "held_until", "grade"}).
			AddRow(2, 3, 3, "HELD", 7, testNow.Add(-time.Minute), "STANDARD"))

	claims, err := repo.ElapsedOrphans(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, uint64(2), claims[0].ShowingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
