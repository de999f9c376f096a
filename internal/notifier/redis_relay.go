package notifier

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking-core/internal/model"
)

// ChannelPrefix namespaces the Redis pub/sub channels, one per showing.
const ChannelPrefix = "seats"

// envelope is the wire form of an event on Redis.  Origin lets an
// instance skip its own messages, which it has already delivered locally.
type envelope struct {
	Origin string          `json:"origin"`
	Event  model.SeatEvent `json:"event"`
}

// RedisRelay connects the hubs of several API instances.  Publish
// delivers to the local hub at once and forwards the event over Redis;
// Run receives events published by other instances and hands them to the
// local hub.
type RedisRelay struct {
	rdb     *redis.Client
	hub     *Hub
	origin  string
	logger  *zap.Logger
	timeout time.Duration
	ready   chan struct{}
	once    sync.Once
}

// NewRedisRelay returns a relay feeding hub.
func NewRedisRelay(rdb *redis.Client, hub *Hub, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		rdb:     rdb,
		hub:     hub,
		origin:  uuid.NewString(),
		logger:  logger,
		timeout: 2 * time.Second,
		ready:   make(chan struct{}),
	}
}

func channelFor(showingID uint64) string {
	return ChannelPrefix + ":" + strconv.FormatUint(showingID, 10)
}

// Publish implements Publisher.  A Redis failure only costs remote viewers
// the event; it is logged and otherwise ignored.
func (r *RedisRelay) Publish(showingID uint64, ev model.SeatEvent) {
	r.hub.Publish(showingID, ev)

	payload, err := json.Marshal(envelope{Origin: r.origin, Event: ev})
	if err != nil {
		r.logger.Error("encode seat event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, channelFor(showingID), payload).Err(); err != nil {
		r.logger.Warn("relay seat event",
			zap.Uint64("showing_id", showingID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}

// Ready is closed once Run has first subscribed.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Run pattern-subscribes to every showing channel and forwards remote
// events to the hub until ctx is cancelled.  It may be called again after
// it returns an error.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.rdb.PSubscribe(ctx, ChannelPrefix+":*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	r.once.Do(func() { close(r.ready) })
	r.logger.Info("seat event relay subscribed", zap.String("origin", r.origin))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg)
		}
	}
}

func (r *RedisRelay) handle(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Warn("discarding malformed seat event", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	showingID, err := strconv.ParseUint(strings.TrimPrefix(msg.Channel, ChannelPrefix+":"), 10, 64)
	if err != nil {
		r.logger.Warn("discarding seat event on unknown channel", zap.String("channel", msg.Channel))
		return
	}
	r.hub.Publish(showingID, env.Event)
}
