package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/seat-booking-core/internal/clock"
	"github.com/iliyamo/seat-booking-core/internal/model"
)

type claimKey struct {
	showingID uint64
	seat      model.Coordinate
}

// MemoryStore keeps claims and sessions in maps guarded by one mutex.  A
// unit of work holds the mutex from start to finish, which makes the store
// behave like a fully serialised database: the first Hold on a seat wins
// and every later one sees the claim.  A failed unit of work restores the
// maps as they were when it began.
type MemoryStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	claims   map[claimKey]model.SeatClaim
	sessions map[string]*model.Session
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryStore{
		clock:    clk,
		claims:   make(map[claimKey]model.SeatClaim),
		sessions: make(map[string]*model.Session),
	}
}

// Atomic runs fn with the store locked.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims := make(map[claimKey]model.SeatClaim, len(s.claims))
	for k, v := range s.claims {
		claims[k] = v
	}
	sessions := make(map[string]*model.Session, len(s.sessions))
	for k, v := range s.sessions {
		sessions[k] = v
	}

	committed := false
	defer func() {
		if !committed {
			s.claims = claims
			s.sessions = sessions
		}
	}()

	if err := fn(ctx, memTx{s: s, locked: true}); err != nil {
		return err
	}
	committed = true
	return nil
}

// Ledger returns a ledger whose calls each lock the store on their own.
func (s *MemoryStore) Ledger() Ledger { return &memLedger{s: s} }

// Sessions returns a session repository whose calls lock the store.
func (s *MemoryStore) Sessions() SessionRepository { return &memSessions{s: s} }

type memTx struct {
	s      *MemoryStore
	locked bool
}

func (t memTx) Ledger() Ledger              { return &memLedger{s: t.s, locked: t.locked} }
func (t memTx) Sessions() SessionRepository { return &memSessions{s: t.s, locked: t.locked} }

func (s *MemoryStore) guard(locked bool) func() {
	if locked {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type memLedger struct {
	s      *MemoryStore
	locked bool
}

func (l *memLedger) Hold(_ context.Context, showingID uint64, seat model.Coordinate, userID uint64, grade string, until time.Time) error {
	defer l.s.guard(l.locked)()
	k := claimKey{showingID, seat}
	if c, ok := l.s.claims[k]; ok {
		if !c.Elapsed(l.s.clock.Now()) {
			return ErrAlreadyClaimed
		}
		delete(l.s.claims, k)
	}
	holder := userID
	u := until.UTC()
	l.s.claims[k] = model.SeatClaim{
		ShowingID: showingID,
		Seat:      seat,
		State:     model.ClaimHeld,
		HolderID:  &holder,
		HeldUntil: &u,
		Grade:     grade,
	}
	return nil
}

func (l *memLedger) Extend(_ context.Context, showingID uint64, seat model.Coordinate, userID uint64, until time.Time) error {
	defer l.s.guard(l.locked)()
	k := claimKey{showingID, seat}
	c, ok := l.s.claims[k]
	if !ok || c.State != model.ClaimHeld || !c.HeldBy(userID) {
		return ErrNotHeld
	}
	u := until.UTC()
	c.HeldUntil = &u
	l.s.claims[k] = c
	return nil
}

func (l *memLedger) Release(_ context.Context, showingID uint64, seat model.Coordinate, userID uint64) (bool, error) {
	defer l.s.guard(l.locked)()
	return l.deleteIf(claimKey{showingID, seat}, func(c model.SeatClaim) bool {
		return c.State == model.ClaimHeld && c.HeldBy(userID)
	}), nil
}

func (l *memLedger) Confirm(_ context.Context, showingID uint64, seat model.Coordinate, userID uint64, grade string) error {
	defer l.s.guard(l.locked)()
	k := claimKey{showingID, seat}
	c, ok := l.s.claims[k]
	if !ok || c.State != model.ClaimHeld || !c.HeldBy(userID) {
		return ErrNotHeld
	}
	c.State = model.ClaimSold
	c.HeldUntil = nil
	c.Grade = grade
	l.s.claims[k] = c
	return nil
}

func (l *memLedger) Revoke(_ context.Context, showingID uint64, seat model.Coordinate, userID uint64) (bool, error) {
	defer l.s.guard(l.locked)()
	return l.deleteIf(claimKey{showingID, seat}, func(c model.SeatClaim) bool {
		return c.State == model.ClaimSold && c.HeldBy(userID)
	}), nil
}

func (l *memLedger) ReleaseElapsed(_ context.Context, showingID uint64, seat model.Coordinate) (bool, error) {
	defer l.s.guard(l.locked)()
	now := l.s.clock.Now()
	return l.deleteIf(claimKey{showingID, seat}, func(c model.SeatClaim) bool {
		return c.Elapsed(now)
	}), nil
}

func (l *memLedger) deleteIf(k claimKey, pred func(model.SeatClaim) bool) bool {
	c, ok := l.s.claims[k]
	if !ok || !pred(c) {
		return false
	}
	delete(l.s.claims, k)
	return true
}

func (l *memLedger) Claims(_ context.Context, showingID uint64) ([]model.SeatClaim, error) {
	defer l.s.guard(l.locked)()
	var out []model.SeatClaim
	for k, c := range l.s.claims {
		if k.showingID == showingID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat.Less(out[j].Seat) })
	return out, nil
}

func (l *memLedger) ElapsedOrphans(_ context.Context, limit int) ([]model.SeatClaim, error) {
	defer l.s.guard(l.locked)()
	now := l.s.clock.Now()
	live := make(map[claimKey]struct{})
	for _, s := range l.s.sessions {
		if s.Status != model.SessionPending || !now.Before(s.ExpiresAt) {
			continue
		}
		for _, it := range s.Items {
			live[claimKey{s.ShowingID, it.Seat}] = struct{}{}
		}
	}
	var out []model.SeatClaim
	for k, c := range l.s.claims {
		if !c.Elapsed(now) {
			continue
		}
		if _, ok := live[k]; ok {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HeldUntil.Before(*out[j].HeldUntil) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memSessions struct {
	s      *MemoryStore
	locked bool
}

func (m *memSessions) Create(_ context.Context, s *model.Session) error {
	defer m.s.guard(m.locked)()
	if _, ok := m.s.sessions[s.ID]; ok {
		return ErrConflict
	}
	m.s.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*model.Session, error) {
	defer m.s.guard(m.locked)()
	s, ok := m.s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// GetForUpdate is Get: the store lock held by Atomic already excludes
// other writers.
func (m *memSessions) GetForUpdate(ctx context.Context, id string) (*model.Session, error) {
	return m.Get(ctx, id)
}

func (m *memSessions) PendingFor(_ context.Context, userID, showingID uint64) ([]*model.Session, error) {
	defer m.s.guard(m.locked)()
	var out []*model.Session
	for _, s := range m.s.sessions {
		if s.OwnerID == userID && s.ShowingID == showingID && s.Status == model.SessionPending {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memSessions) Save(_ context.Context, s *model.Session) error {
	defer m.s.guard(m.locked)()
	if _, ok := m.s.sessions[s.ID]; !ok {
		return ErrConflict
	}
	m.s.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memSessions) ListExpiredPending(_ context.Context, limit int) ([]string, error) {
	defer m.s.guard(m.locked)()
	now := m.s.clock.Now()
	var expired []*model.Session
	for _, s := range m.s.sessions {
		if s.Status == model.SessionPending && !now.Before(s.ExpiresAt) {
			expired = append(expired, s)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		ids = append(ids, s.ID)
	}
	return ids, nil
}
