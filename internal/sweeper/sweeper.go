// Package sweeper reclaims abandoned seat holds.  Holds are also vacated
// lazily when someone else tries to take the seat; the sweeper is the
// backstop that expires forgotten sessions and frees seats nobody asks
// for.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking-core/internal/clock"
	"github.com/iliyamo/seat-booking-core/internal/model"
	"github.com/iliyamo/seat-booking-core/internal/repository"
)

// EventPublisher receives released events after each commit.
type EventPublisher interface {
	Publish(showingID uint64, ev model.SeatEvent)
}

// Config contains configuration for the sweeper.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// BatchSize caps sessions and orphan claims handled per sweep.
	BatchSize int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{Interval: 60 * time.Second, BatchSize: 100}
}

// Result summarises one sweep.
type Result struct {
	SessionsExpired int
	ClaimsReleased  int
	Failures        int
}

// Stats accumulates results since start.
type Stats struct {
	Running         bool      `json:"running"`
	Sweeps          int64     `json:"sweeps"`
	SessionsExpired int64     `json:"sessions_expired"`
	ClaimsReleased  int64     `json:"claims_released"`
	Failures        int64     `json:"failures"`
	LastRun         time.Time `json:"last_run"`
	LastResult      Result    `json:"last_result"`
}

// Sweeper expires PENDING sessions past their deadline and deletes elapsed
// holds that no live session refers to.
type Sweeper struct {
	store  repository.Store
	events EventPublisher
	clock  clock.Clock
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stats   Stats
}

// New creates a sweeper.  events may be nil.
func New(store repository.Store, events EventPublisher, clk clock.Clock, cfg Config, logger *zap.Logger) *Sweeper {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: store, events: events, clock: clk, cfg: cfg, logger: logger}
}

// Start runs a sweep immediately and then every Interval in the background
// until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("sweeper already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("starting lease sweeper", zap.Duration("interval", s.cfg.Interval))
	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)
	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("lease sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass.  Each session and each orphan claim is handled
// in its own unit of work; a failure is logged, counted and skipped.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	var res Result

	ids, err := s.store.Sessions().ListExpiredPending(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("list expired sessions", zap.Error(err))
		res.Failures++
	}
	for _, id := range ids {
		released, expired, err := s.expireSession(ctx, id)
		if err != nil {
			s.logger.Error("expire session", zap.String("session_id", id), zap.Error(err))
			res.Failures++
			continue
		}
		if expired {
			res.SessionsExpired++
		}
		res.ClaimsReleased += released
	}

	orphans, err := s.store.Ledger().ElapsedOrphans(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("list elapsed claims", zap.Error(err))
		res.Failures++
	}
	for _, c := range orphans {
		ok, err := s.releaseOrphan(ctx, c)
		if err != nil {
			s.logger.Error("release elapsed claim",
				zap.Uint64("showing_id", c.ShowingID),
				zap.Stringer("seat", c.Seat),
				zap.Error(err),
			)
			res.Failures++
			continue
		}
		if ok {
			res.ClaimsReleased++
		}
	}

	s.record(res)
	if res.SessionsExpired > 0 || res.ClaimsReleased > 0 || res.Failures > 0 {
		s.logger.Info("sweep finished",
			zap.Int("sessions_expired", res.SessionsExpired),
			zap.Int("claims_released", res.ClaimsReleased),
			zap.Int("failures", res.Failures),
		)
	}
	return res
}

// expireSession re-reads the session under lock: it may have been
// confirmed or cancelled since it was listed, in which case nothing
// happens.
func (s *Sweeper) expireSession(ctx context.Context, id string) (int, bool, error) {
	var (
		released []model.SeatEvent
		expired  bool
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		sess, err := tx.Sessions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if !sess.Expire(now) {
			return nil
		}
		expired = true
		for _, c := range sess.Seats() {
			item, _ := sess.Item(c)
			ok, err := tx.Ledger().ReleaseElapsed(ctx, sess.ShowingID, c)
			if err != nil {
				return err
			}
			if ok {
				released = append(released, model.NewSeatEvent(model.EventReleased, sess.ShowingID, c, item.Grade, now))
			}
		}
		return tx.Sessions().Save(ctx, sess)
	})
	if err != nil {
		return 0, false, err
	}
	s.publish(released)
	return len(released), expired, nil
}

func (s *Sweeper) releaseOrphan(ctx context.Context, c model.SeatClaim) (bool, error) {
	var ok bool
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ok, err = tx.Ledger().ReleaseElapsed(ctx, c.ShowingID, c.Seat)
		return err
	})
	if err != nil {
		return false, err
	}
	if ok {
		s.publish([]model.SeatEvent{model.NewSeatEvent(model.EventReleased, c.ShowingID, c.Seat, c.Grade, s.clock.Now())})
	}
	return ok, nil
}

func (s *Sweeper) publish(events []model.SeatEvent) {
	if s.events == nil {
		return
	}
	for _, ev := range events {
		s.events.Publish(ev.ShowingID, ev)
	}
}

func (s *Sweeper) record(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Sweeps++
	s.stats.SessionsExpired += int64(res.SessionsExpired)
	s.stats.ClaimsReleased += int64(res.ClaimsReleased)
	s.stats.Failures += int64(res.Failures)
	s.stats.LastRun = s.clock.Now()
	s.stats.LastResult = res
}

// Stats returns a copy of the accumulated statistics.
func (s *Sweeper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Running = s.running
	return st
}
