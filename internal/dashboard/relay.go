package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"helpdesk/backend/internal/logger"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RelayChannel is the Redis pub/sub channel events are shared on.
const RelayChannel = "helpdesk:dashboard"

const relayPublishTimeout = 2 * time.Second

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Relay shares events between processes through Redis pub/sub, so changes made
// by the admin CLI or another instance reach this process's dashboard clients.
// Events published here go to the local publisher directly and to everyone else through Redis.
type Relay struct {
	rdb     *redis.Client
	channel string
	local   Publisher
	origin  string
	log     *logger.Logger
	now     func() time.Time
}

// NewRelay wraps local, which may be nil for processes without dashboard clients.
func NewRelay(rdb *redis.Client, local Publisher, log *logger.Logger) *Relay {
	if local == nil {
		local = Discard
	}
	return &Relay{
		rdb:     rdb,
		channel: RelayChannel,
		local:   local,
		origin:  uuid.NewString(),
		log:     log.With("service", "dashboard_relay"),
		now:     time.Now,
	}
}

func (r *Relay) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = r.now().UTC()
	}
	r.local.Publish(ev)

	payload, err := json.Marshal(envelope{Origin: r.origin, Event: ev})
	if err != nil {
		r.log.Warn("failed to encode dashboard event", "type", ev.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.log.Warn("failed to relay dashboard event", "type", ev.Type, "error", err)
	}
}

// Run forwards events from other processes to the local publisher until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "subscribe to %s", r.channel)
	}
	r.log.Info("dashboard relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("dropping malformed dashboard event", "error", err)
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			r.local.Publish(env.Event)
		}
	}
}
