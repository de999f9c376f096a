package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-booking-core/internal/clock"
	"github.com/iliyamo/seat-booking-core/internal/model"
)

func TestMemoryStore_ExactlyOneHolderWins(t *testing.T) {
	store := NewMemoryStore(clock.NewFake(testNow))
	seat := model.Coordinate{Row: 5, Col: 5}
	const contenders = 64

	var (
		wg      sync.WaitGroup
		wins    atomic.Int32
		losses  atomic.Int32
		winners = make(chan uint64, contenders)
	)
	start := make(chan struct{})
	for i := 1; i <= contenders; i++ {
		wg.Add(1)
		go func(user uint64) {
			defer wg.Done()
			<-start
			err := store.Atomic(context.Background(), func(ctx context.Context, tx Tx) error {
				return tx.Ledger().Hold(ctx, 1, seat, user, "STANDARD", testNow.Add(5*time.Minute))
			})
			switch {
			case err == nil:
				wins.Add(1)
				winners <- user
			case errors.Is(err, ErrAlreadyClaimed):
				losses.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint64(i))
	}
	close(start)
	wg.Wait()
	close(winners)

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(contenders-1), losses.Load())

	claims, err := store.Ledger().Claims(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.True(t, claims[0].HeldBy(<-winners))
}

func TestMemoryStore_AtomicRestoresOnError(t *testing.T) {
	store := NewMemoryStore(clock.NewFake(testNow))
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.Ledger().Hold(ctx, 1, model.Coordinate{Row: 1, Col: 1}, 7, "STANDARD", testNow.Add(time.Minute)))
		require.NoError(t, tx.Sessions().Create(ctx, model.NewSession("s", 7, 1, "C", testNow, time.Minute, 4)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	claims, err := store.Ledger().Claims(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, claims)
	_, err = store.Sessions().Get(ctx, "s")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryLedger_LazyVacate(t *testing.T) {
	clk := clock.NewFake(testNow)
	ledger := NewMemoryStore(clk).Ledger()
	ctx := context.Background()
	seat := model.Coordinate{Row: 1, Col: 1}

	require.NoError(t, ledger.Hold(ctx, 1, seat, 7, "STANDARD", testNow.Add(time.Minute)))
	assert.ErrorIs(t, ledger.Hold(ctx, 1, seat, 8, "STANDARD", testNow.Add(time.Minute)), ErrAlreadyClaimed)

	clk.Advance(time.Minute)
	require.NoError(t, ledger.Hold(ctx, 1, seat, 8, "STANDARD", testNow.Add(2*time.Minute)))

	claims, err := ledger.Claims(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.True(t, claims[0].HeldBy(8))
}

func TestMemoryLedger_ConfirmAndRevoke(t *testing.T) {
	ledger := NewMemoryStore(clock.NewFake(testNow)).Ledger()
	ctx := context.Background()
	seat := model.Coordinate{Row: 2, Col: 3}

	assert.ErrorIs(t, ledger.Confirm(ctx, 1, seat, 7, "VIP"), ErrNotHeld)
	require.NoError(t, ledger.Hold(ctx, 1, seat, 7, "VIP", testNow.Add(time.Minute)))
	assert.ErrorIs(t, ledger.Confirm(ctx, 1, seat, 8, "VIP"), ErrNotHeld)
	require.NoError(t, ledger.Confirm(ctx, 1, seat, 7, "VIP"))

	released, err := ledger.Release(ctx, 1, seat, 7)
	require.NoError(t, err)
	assert.False(t, released, "sold seats are not released")

	ok, err := ledger.ReleaseElapsed(ctx, 1, seat)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ledger.Revoke(ctx, 1, seat, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	claims, err := ledger.Claims(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestMemoryLedger_ExtendOnlyOwnHold(t *testing.T) {
	ledger := NewMemoryStore(clock.NewFake(testNow)).Ledger()
	ctx := context.Background()
	seat := model.Coordinate{Row: 1, Col: 1}
	require.NoError(t, ledger.Hold(ctx, 1, seat, 7, "STANDARD", testNow.Add(time.Minute)))

	assert.ErrorIs(t, ledger.Extend(ctx, 1, seat, 8, testNow.Add(time.Hour)), ErrNotHeld)
	require.NoError(t, ledger.Extend(ctx, 1, seat, 7, testNow.Add(time.Hour)))

	claims, _ := ledger.Claims(ctx, 1)
	require.Len(t, claims, 1)
	assert.True(t, testNow.Add(time.Hour).Equal(*claims[0].HeldUntil))
}

func TestMemoryLedger_ElapsedOrphansSkipsLiveSessions(t *testing.T) {
	clk := clock.NewFake(testNow)
	store := NewMemoryStore(clk)
	ctx := context.Background()

	live := model.NewSession("live", 7, 1, "L", testNow, 10*time.Minute, 4)
	require.NoError(t, live.AddItem(model.LineItem{Seat: model.Coordinate{Row: 1, Col: 1}}, testNow))
	require.NoError(t, store.Sessions().Create(ctx, live))

	ledger := store.Ledger()
	require.NoError(t, ledger.Hold(ctx, 1, model.Coordinate{Row: 1, Col: 1}, 7, "STANDARD", testNow.Add(time.Minute)))
	require.NoError(t, ledger.Hold(ctx, 1, model.Coordinate{Row: 1, Col: 2}, 8, "STANDARD", testNow.Add(time.Minute)))
	require.NoError(t, ledger.Hold(ctx, 1, model.Coordinate{Row: 1, Col: 3}, 9, "STANDARD", testNow.Add(time.Hour)))

	clk.Advance(2 * time.Minute)
	orphans, err := ledger.ElapsedOrphans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, model.Coordinate{Row: 1, Col: 2}, orphans[0].Seat)
}

func TestMemorySessions_PendingAndExpired(t *testing.T) {
	clk := clock.NewFake(testNow)
	repo := NewMemoryStore(clk).Sessions()
	ctx := context.Background()

	a := model.NewSession("a", 7, 1, "A", testNow, time.Minute, 4)
	b := model.NewSession("b", 7, 2, "B", testNow, 10*time.Minute, 4)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	assert.ErrorIs(t, repo.Create(ctx, a), ErrConflict)

	pending, err := repo.PendingFor(ctx, 7, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)

	ids, err := repo.ListExpiredPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	clk.Advance(time.Minute)
	ids, err = repo.ListExpiredPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestMemorySessions_GetReturnsCopy(t *testing.T) {
	repo := NewMemoryStore(clock.NewFake(testNow)).Sessions()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, model.NewSession("a", 7, 1, "A", testNow, time.Minute, 4)))

	s, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	s.Status = model.SessionCancelled

	again, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.SessionPending, again.Status)
}

func TestMemoryCatalog(t *testing.T) {
	cat := NewMemoryCatalog(GridLayout(1, 2, 3, "STANDARD", 1000))
	ctx := context.Background()

	info, err := cat.Seat(ctx, 1, model.Coordinate{Row: 2, Col: 3})
	require.NoError(t, err)
	assert.Equal(t, "B3", info.Label)
	assert.Equal(t, uint32(1000), info.PriceCents)

	_, err = cat.Seat(ctx, 1, model.Coordinate{Row: 3, Col: 1})
	assert.ErrorIs(t, err, ErrSeatNotFound)
	_, err = cat.Seat(ctx, 2, model.Coordinate{Row: 1, Col: 1})
	assert.ErrorIs(t, err, ErrShowingNotFound)

	layout, err := cat.Layout(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, layout.Seats, 6)
	assert.Equal(t, 2, layout.Rows)
	assert.Equal(t, 3, layout.Cols)
}
