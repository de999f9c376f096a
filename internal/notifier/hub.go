// Package notifier fans seat-map changes out to live viewers.  Viewers
// subscribe per showing and receive events on a buffered channel; a slow
// viewer never blocks the publisher.  When a viewer's buffer is full its
// events are dropped and it is sent a resync event as soon as there is
// room again, telling it to refetch the seat map.
package notifier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking-core/internal/clock"
	"github.com/iliyamo/seat-booking-core/internal/model"
)

// Publisher is implemented by Hub and RedisRelay.
type Publisher interface {
	Publish(showingID uint64, ev model.SeatEvent)
}

// Default tuning.
const (
	DefaultBuffer    = 64
	DefaultKeepAlive = 45 * time.Second

	// maxMissedKeepAlives is how many keep-alives in a row a subscriber
	// may fail to accept before the hub considers it dead.
	maxMissedKeepAlives = 2
)

// Config tunes a Hub.
type Config struct {
	Buffer    int
	KeepAlive time.Duration
}

// Hub is the in-process subscriber registry.  It keeps one set of
// subscribers per showing and deletes the set when its last subscriber
// leaves.
type Hub struct {
	mu     sync.Mutex
	rooms  map[uint64]map[*Subscription]struct{}
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger
}

// NewHub returns an empty hub.
func NewHub(cfg Config, clk clock.Clock, logger *zap.Logger) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[uint64]map[*Subscription]struct{}),
		cfg:    cfg,
		clock:  clk,
		logger: logger,
	}
}

// Subscription is one viewer's stream.  Read events from C until Done is
// closed, and call Close when the viewer goes away.
type Subscription struct {
	ShowingID uint64

	ch     chan model.SeatEvent
	done   chan struct{}
	once   sync.Once
	resync atomic.Bool
	missed atomic.Int32
	hub    *Hub
}

// C delivers events in publish order.  It is never closed; select on Done
// as well.
func (s *Subscription) C() <-chan model.SeatEvent { return s.ch }

// Done is closed once the subscription has been removed from the hub.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close unregisters the subscription.  It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

// Subscribe registers a new viewer of showingID.
func (h *Hub) Subscribe(showingID uint64) *Subscription {
	sub := &Subscription{
		ShowingID: showingID,
		ch:        make(chan model.SeatEvent, h.cfg.Buffer),
		done:      make(chan struct{}),
		hub:       h,
	}
	h.mu.Lock()
	room, ok := h.rooms[showingID]
	if !ok {
		room = make(map[*Subscription]struct{})
		h.rooms[showingID] = room
	}
	room[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[sub.ShowingID]
	if !ok {
		return
	}
	delete(room, sub)
	if len(room) == 0 {
		delete(h.rooms, sub.ShowingID)
	}
}

// Publish delivers ev to every current viewer of showingID.  Delivery is
// best effort and never blocks.
func (h *Hub) Publish(showingID uint64, ev model.SeatEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.rooms[showingID] {
		sub.deliver(ev, h.clock.Now())
	}
}

// deliver performs the non-blocking send.  A pending resync goes out
// first; while it cannot, ev is dropped too.
func (s *Subscription) deliver(ev model.SeatEvent, now time.Time) bool {
	if s.resync.Load() {
		select {
		case s.ch <- model.SeatEvent{Kind: model.EventResync, ShowingID: s.ShowingID, At: now}:
			s.resync.Store(false)
		default:
			return false
		}
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.resync.Store(true)
		return false
	}
}

// Subscribers returns the number of viewers of showingID.
func (h *Hub) Subscribers(showingID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[showingID])
}

// Rooms returns the number of showings with at least one viewer.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Run sends keep-alives until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.KeepAlive()
		}
	}
}

// KeepAlive sends one keep-alive to every subscriber and drops the ones
// that have not drained their buffer for maxMissedKeepAlives rounds.
func (h *Hub) KeepAlive() {
	now := h.clock.Now()
	var dead []*Subscription

	h.mu.Lock()
	for showingID, room := range h.rooms {
		ev := model.SeatEvent{Kind: model.EventKeepAlive, ShowingID: showingID, At: now}
		for sub := range room {
			if sub.deliver(ev, now) {
				sub.missed.Store(0)
				continue
			}
			if sub.missed.Add(1) >= maxMissedKeepAlives {
				dead = append(dead, sub)
			}
		}
	}
	h.mu.Unlock()

	for _, sub := range dead {
		h.logger.Info("dropping stalled subscriber", zap.Uint64("showing_id", sub.ShowingID))
		sub.Close()
	}
}
