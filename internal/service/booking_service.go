// Package service sequences every booking action: it mutates the seat
// ledger and the reservation session in one unit of work and, once that
// unit has committed, publishes seat events and audit messages.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking-core/internal/clock"
	"github.com/iliyamo/seat-booking-core/internal/model"
	"github.com/iliyamo/seat-booking-core/internal/queue"
	"github.com/iliyamo/seat-booking-core/internal/repository"
)

// EventPublisher receives seat events after the change has committed.
type EventPublisher interface {
	Publish(showingID uint64, ev model.SeatEvent)
}

// AuditPublisher receives booking events.  Failures are logged only.
type AuditPublisher interface {
	PublishBooking(ctx context.Context, ev queue.BookingEvent) error
}

// Config holds the booking tunables.
type Config struct {
	SessionTTL   time.Duration
	MaxSeats     int
	AuditTimeout time.Duration
}

// DefaultConfig is a five minute session with four seats.
func DefaultConfig() Config {
	return Config{SessionTTL: 5 * time.Minute, MaxSeats: model.DefaultMaxSeats, AuditTimeout: 5 * time.Second}
}

// BookingService is the request-facing orchestrator.
type BookingService struct {
	store   repository.Store
	catalog repository.Catalog
	events  EventPublisher
	audit   AuditPublisher
	clock   clock.Clock
	cfg     Config
	logger  *zap.Logger

	auditWG sync.WaitGroup
}

// NewBookingService wires the orchestrator.  events and audit may be nil.
func NewBookingService(store repository.Store, catalog repository.Catalog, events EventPublisher, audit AuditPublisher,
	clk clock.Clock, cfg Config, logger *zap.Logger) *BookingService {
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.MaxSeats <= 0 {
		cfg.MaxSeats = def.MaxSeats
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = def.AuditTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		store:   store,
		catalog: catalog,
		events:  events,
		audit:   audit,
		clock:   clk,
		cfg:     cfg,
		logger:  logger,
	}
}

// ItemView is a line item as shown to the session owner.
type ItemView struct {
	Seat       model.Coordinate `json:"seat"`
	Label      string           `json:"label"`
	Grade      string           `json:"grade"`
	PriceCents uint32           `json:"price_cents"`
}

// SessionView is the client-facing state of a session.
type SessionView struct {
	ID               string              `json:"id"`
	ShowingID        uint64              `json:"showing_id"`
	Status           model.SessionStatus `json:"status"`
	ConfirmationCode string              `json:"confirmation_code"`
	Items            []ItemView          `json:"items"`
	TotalCents       uint32              `json:"total_cents"`
	MaxSeats         int                 `json:"max_seats"`
	CreatedAt        time.Time           `json:"created_at"`
	ExpiresAt        time.Time           `json:"expires_at"`
	RemainingSeconds int                 `json:"remaining_seconds"`
}

func newSessionView(s *model.Session, now time.Time) *SessionView {
	v := &SessionView{
		ID:               s.ID,
		ShowingID:        s.ShowingID,
		Status:           s.Status,
		ConfirmationCode: s.ConfirmationCode,
		Items:            make([]ItemView, 0, len(s.Items)),
		TotalCents:       s.TotalCents,
		MaxSeats:         s.Limit(),
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.ExpiresAt,
		RemainingSeconds: s.RemainingSeconds(now),
	}
	for _, seat := range s.Seats() {
		it, _ := s.Item(seat)
		v.Items = append(v.Items, ItemView{Seat: it.Seat, Label: it.Seat.Label(), Grade: it.Grade, PriceCents: it.PriceCents})
	}
	return v
}

// unit collects what a unit of work wants published once it commits.
type unit struct {
	events []model.SeatEvent
	audits []auditEntry
}

type auditEntry struct {
	kind    string
	session *model.Session
}

func (u *unit) emit(kind model.EventKind, showingID uint64, seat model.Coordinate, grade string, at time.Time) {
	u.events = append(u.events, model.NewSeatEvent(kind, showingID, seat, grade, at))
}

func (u *unit) auditSession(kind string, s *model.Session) {
	u.audits = append(u.audits, auditEntry{kind: kind, session: s.Clone()})
}

// atomic runs fn in one unit of work and publishes its side effects only
// if the unit committed.
func (s *BookingService) atomic(ctx context.Context, fn func(ctx context.Context, tx repository.Tx, u *unit) error) error {
	u := &unit{}
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, tx, u)
	})
	if err != nil {
		return err
	}
	if s.events != nil {
		for _, ev := range u.events {
			s.events.Publish(ev.ShowingID, ev)
		}
	}
	for _, a := range u.audits {
		s.publishAudit(a.kind, a.session)
	}
	return nil
}

// StartSession cancels any PENDING session the user has for the showing,
// releasing its seats, and opens a fresh empty one.
func (s *BookingService) StartSession(ctx context.Context, userID, showingID uint64) (*SessionView, error) {
	if _, err := s.catalog.Layout(ctx, showingID); err != nil {
		return nil, catalogErr(err)
	}
	code, err := newConfirmationCode()
	if err != nil {
		return nil, err
	}

	var created *model.Session
	err = s.atomic(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		now := s.clock.Now()
		prior, err := tx.Sessions().PendingFor(ctx, userID, showingID)
		if err != nil {
			return err
		}
		for _, old := range prior {
			if err := s.cancelPending(ctx, tx, u, old, now); err != nil {
				return err
			}
			if err := tx.Sessions().Save(ctx, old); err != nil {
				return err
			}
			u.auditSession(queue.QueueBookingCancelled, old)
		}

		created = model.NewSession(uuid.NewString(), userID, showingID, code, now, s.cfg.SessionTTL, s.cfg.MaxSeats)
		return tx.Sessions().Create(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session started",
		zap.String("session_id", created.ID),
		zap.Uint64("user_id", userID),
		zap.Uint64("showing_id", showingID),
	)
	return newSessionView(created, s.clock.Now()), nil
}

// SelectSeats adds seats to the session.  Either every requested seat is
// held or none is: a seat lost to another user fails the whole call with
// ErrSeatUnavailable and leaves the session as it was.
func (s *BookingService) SelectSeats(ctx context.Context, userID uint64, sessionID string, seats []model.Coordinate) (*SessionView, error) {
	seats, err := normalize(seats, false)
	if err != nil {
		return nil, err
	}
	var view *SessionView
	err = s.atomic(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		now := s.clock.Now()
		sess, err := s.lockOwned(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		if err := sess.CheckMutable(now); err != nil {
			return err
		}
		var added []model.Coordinate
		for _, c := range seats {
			if !sess.Has(c) {
				added = append(added, c)
			}
		}
		if len(sess.Items)+len(added) > sess.Limit() {
			return model.ErrCapacityExceeded
		}
		if err := s.holdAll(ctx, tx, u, sess, added, now); err != nil {
			return err
		}
		if err := tx.Sessions().Save(ctx, sess); err != nil {
			return err
		}
		view = newSessionView(sess, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ReplaceSeats makes the session hold exactly seats.  Seats no longer
// wanted are released, seats kept have their lease renewed to the
// session's expiry and new seats are held, in that order, in one unit of
// work.
func (s *BookingService) ReplaceSeats(ctx context.Context, userID uint64, sessionID string, seats []model.Coordinate) (*SessionView, error) {
	seats, err := normalize(seats, true)
	if err != nil {
		return nil, err
	}
	var view *SessionView
	err = s.atomic(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		now := s.clock.Now()
		sess, err := s.lockOwned(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		if err := sess.CheckMutable(now); err != nil {
			return err
		}
		if len(seats) > sess.Limit() {
			return model.ErrCapacityExceeded
		}
		removed, kept, added := sess.Diff(seats)

		for _, c := range removed {
			item, _ := sess.Item(c)
			released, err := tx.Ledger().Release(ctx, sess.ShowingID, c, userID)
			if err != nil {
				return err
			}
			if _, err := sess.RemoveItem(c, now); err != nil {
				return err
			}
			if released {
				u.emit(model.EventReleased, sess.ShowingID, c, item.Grade, now)
			}
		}
		for _, c := range kept {
			err := tx.Ledger().Extend(ctx, sess.ShowingID, c, userID, sess.ExpiresAt)
			if errors.Is(err, repository.ErrNotHeld) {
				return fmt.Errorf("%w: %s", model.ErrSeatUnavailable, c.Label())
			}
			if err != nil {
				return err
			}
		}
		if err := s.holdAll(ctx, tx, u, sess, added, now); err != nil {
			return err
		}
		if err := tx.Sessions().Save(ctx, sess); err != nil {
			return err
		}
		view = newSessionView(sess, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// holdAll resolves each seat in the catalog, claims it in the ledger and
// appends it to the session.  The lease of every hold ends with the
// session.
func (s *BookingService) holdAll(ctx context.Context, tx repository.Tx, u *unit, sess *model.Session, seats []model.Coordinate, now time.Time) error {
	for _, c := range seats {
		info, err := s.catalog.Seat(ctx, sess.ShowingID, c)
		if err != nil {
			return catalogErr(err)
		}
		err = tx.Ledger().Hold(ctx, sess.ShowingID, c, sess.OwnerID, info.Grade, sess.ExpiresAt)
		if errors.Is(err, repository.ErrAlreadyClaimed) {
			return fmt.Errorf("%w: %s", model.ErrSeatUnavailable, c.Label())
		}
		if err != nil {
			return err
		}
		if err := sess.AddItem(model.LineItem{Seat: c, Grade: info.Grade, PriceCents: info.PriceCents}, now); err != nil {
			return err
		}
		u.emit(model.EventOccupied, sess.ShowingID, c, info.Grade, now)
	}
	return nil
}

// DeselectSeat releases one seat of the session.  Deselecting a seat the
// session does not hold is a no-op.
func (s *BookingService) DeselectSeat(ctx context.Context, userID uint64, sessionID string, seat model.Coordinate) (*SessionView, error) {
	if !seat.Valid() {
		return nil, model.ErrInvalidSeat
	}
	var view *SessionView
	err := s.atomic(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		now := s.clock.Now()
		sess, err := s.lockOwned(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		if err := sess.CheckMutable(now); err != nil {
			return err
		}
		item, had := sess.Item(seat)
		released, err := tx.Ledger().Release(ctx, sess.ShowingID, seat, userID)
		if err != nil {
			return err
		}
		if had {
			if _, err := sess.RemoveItem(seat, now); err != nil {
				return err
			}
			if err := tx.Sessions().Save(ctx, sess); err != nil {
				return err
			}
		}
		if released {
			u.emit(model.EventReleased, sess.ShowingID, seat, item.Grade, now)
		}
		view = newSessionView(sess, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ConfirmSession turns every held seat into a sale.  Rows are locked in
// coordinate order.  If any seat is no longer held by the user the whole
// confirm fails with ErrSeatUnavailable and the other seats stay HELD.
// Past expiry it fails with ErrExpired and leaves the holds to the sweeper.
func (s *BookingService) ConfirmSession(ctx context.Context, userID uint64, sessionID string) (*SessionView, error) {
	var view *SessionView
	err := s.atomic(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		now := s.clock.Now()
		sess, err := s.lockOwned(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		if err := sess.CheckMutable(now); err != nil {
			return err
		}
		if len(sess.Items) == 0 {
			return fmt.Errorf("%w: no seats selected", model.ErrInvalidState)
		}
		for _, c := range sess.Seats() {
			item, _ := sess.Item(c)
			err := tx.Ledger().Confirm(ctx, sess.ShowingID, c, userID, item.Grade)
			if errors.Is(err, repository.ErrNotHeld) {
				return fmt.Errorf("%w: %s", model.ErrSeatUnavailable, c.Label())
			}
			if err != nil {
				return err
			}
			u.emit(model.EventConfirmed, sess.ShowingID, c, item.Grade, now)
		}
		if err := sess.Confirm(now); err != nil {
			return err
		}
		if err := tx.Sessions().Save(ctx, sess); err != nil {
			return err
		}
		u.auditSession(queue.QueueBookingConfirmed, sess)
		view = newSessionView(sess, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session confirmed",
		zap.String("session_id", view.ID),
		zap.Uint64("user_id", userID),
		zap.Int("seats", len(view.Items)),
		zap.Uint32("total_cents", view.TotalCents),
	)
	return view, nil
}

// CancelSession is always accepted for PENDING and CONFIRMED sessions,
// even past expiry.  Seats of a pending session are released; seats of a
// confirmed one are returned to sale.
func (s *BookingService) CancelSession(ctx context.Context, userID uint64, sessionID string) (*SessionView, error) {
	var view *SessionView
	err := s.atomic(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		now := s.clock.Now()
		sess, err := s.lockOwned(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		switch sess.Status {
		case model.SessionPending:
			if err := s.cancelPending(ctx, tx, u, sess, now); err != nil {
				return err
			}
		case model.SessionConfirmed:
			for _, c := range sess.Seats() {
				item, _ := sess.Item(c)
				freed, err := tx.Ledger().Revoke(ctx, sess.ShowingID, c, userID)
				if err != nil {
					return err
				}
				if freed {
					u.emit(model.EventReleased, sess.ShowingID, c, item.Grade, now)
				}
			}
			if err := sess.Cancel(now); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: session is %s", model.ErrInvalidState, sess.Status)
		}
		if err := tx.Sessions().Save(ctx, sess); err != nil {
			return err
		}
		u.auditSession(queue.QueueBookingCancelled, sess)
		view = newSessionView(sess, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session cancelled", zap.String("session_id", view.ID), zap.Uint64("user_id", userID))
	return view, nil
}

// cancelPending releases the seats of a PENDING session and marks it
// CANCELLED.  A release that fails is logged and skipped: the seat's
// lease ends with the session and the sweeper reclaims it.
func (s *BookingService) cancelPending(ctx context.Context, tx repository.Tx, u *unit, sess *model.Session, now time.Time) error {
	for _, c := range sess.Seats() {
		item, _ := sess.Item(c)
		released, err := tx.Ledger().Release(ctx, sess.ShowingID, c, sess.OwnerID)
		if err != nil {
			s.logger.Warn("release on cancel failed",
				zap.String("session_id", sess.ID),
				zap.Stringer("seat", c),
				zap.Error(err),
			)
			continue
		}
		if released {
			u.emit(model.EventReleased, sess.ShowingID, c, item.Grade, now)
		}
	}
	return sess.Cancel(now)
}

// GetSession returns the owner's view of a session.
func (s *BookingService) GetSession(ctx context.Context, userID uint64, sessionID string) (*SessionView, error) {
	sess, err := s.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, sessionErr(err)
	}
	if sess.OwnerID != userID {
		return nil, model.ErrForbidden
	}
	return newSessionView(sess, s.clock.Now()), nil
}

// RemainingSeconds is the time left before the session expires, rounded
// up to whole seconds; zero once it is no longer PENDING.
func (s *BookingService) RemainingSeconds(ctx context.Context, userID uint64, sessionID string) (int, error) {
	v, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return 0, err
	}
	return v.RemainingSeconds, nil
}

// lockOwned loads the session for update and checks ownership.
func (s *BookingService) lockOwned(ctx context.Context, tx repository.Tx, userID uint64, sessionID string) (*model.Session, error) {
	sess, err := tx.Sessions().GetForUpdate(ctx, sessionID)
	if err != nil {
		return nil, sessionErr(err)
	}
	if sess.OwnerID != userID {
		return nil, model.ErrForbidden
	}
	return sess, nil
}

func (s *BookingService) publishAudit(kind string, sess *model.Session) {
	if s.audit == nil {
		return
	}
	labels := make([]string, 0, len(sess.Items))
	for _, c := range sess.Seats() {
		labels = append(labels, c.Label())
	}
	ev := queue.BookingEvent{
		Type:             kind,
		SessionID:        sess.ID,
		ConfirmationCode: sess.ConfirmationCode,
		UserID:           sess.OwnerID,
		ShowID:           sess.ShowingID,
		SeatLabels:       labels,
		TotalAmountCents: sess.TotalCents,
		OccurredAt:       sess.UpdatedAt,
	}
	s.auditWG.Add(1)
	go func() {
		defer s.auditWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AuditTimeout)
		defer cancel()
		if err := s.audit.PublishBooking(ctx, ev); err != nil {
			s.logger.Warn("audit publish failed",
				zap.String("type", kind),
				zap.String("session_id", ev.SessionID),
				zap.Error(err),
			)
		}
	}()
}

// WaitAudits blocks until in-flight audit publishes have finished.
func (s *BookingService) WaitAudits() { s.auditWG.Wait() }

// normalize validates and de-duplicates requested seats.
func normalize(seats []model.Coordinate, allowEmpty bool) ([]model.Coordinate, error) {
	if len(seats) == 0 && !allowEmpty {
		return nil, fmt.Errorf("%w: no seats given", model.ErrInvalidSeat)
	}
	for _, c := range seats {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: %s", model.ErrInvalidSeat, c)
		}
	}
	out := model.UniqueCoordinates(seats)
	model.SortCoordinates(out)
	return out, nil
}

func sessionErr(err error) error {
	if errors.Is(err, repository.ErrSessionNotFound) {
		return fmt.Errorf("%w: session", model.ErrNotFound)
	}
	return err
}

func catalogErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrShowingNotFound):
		return fmt.Errorf("%w: showing", model.ErrNotFound)
	case errors.Is(err, repository.ErrSeatNotFound):
		return fmt.Errorf("%w: no such seat", model.ErrInvalidSeat)
	}
	return err
}

// newConfirmationCode returns ten upper-case hex characters.
func newConfirmationCode() (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
