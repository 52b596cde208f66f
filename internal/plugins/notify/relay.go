package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// relayChannel is the Redis pub/sub channel shared by all instances.
const relayChannel = "syphax:notify"

// publishTimeout bounds a single publish issued from a request path.
const publishTimeout = 2 * time.Second

// relayMessage is the wire format on the relay channel. An empty To means
// broadcast.
type relayMessage struct {
	To    string `json:"to,omitempty"`
	Event Event  `json:"event"`
}

// RedisRelay fans notifications out across instances. Every instance
// publishes to one channel and delivers what it receives to its local hub,
// so a client is reached whichever instance holds its WebSocket.
type RedisRelay struct {
	hub     *Hub
	rdb     *redis.Client
	channel string
}

// NewRedisRelay wraps hub with Redis fan-out. Call Run to start receiving.
func NewRedisRelay(hub *Hub, rdb *redis.Client) *RedisRelay {
	return &RedisRelay{hub: hub, rdb: rdb, channel: relayChannel}
}

// Notify publishes ev for connID.
func (r *RedisRelay) Notify(ctx context.Context, connID string, ev Event) {
	r.publish(ctx, relayMessage{To: connID, Event: ev})
}

// Broadcast publishes ev for every connection on every instance.
func (r *RedisRelay) Broadcast(ctx context.Context, ev Event) {
	r.publish(ctx, relayMessage{Event: ev})
}

// publish sends m in the background. When Redis is unreachable the message
// is delivered to the local hub only.
func (r *RedisRelay) publish(ctx context.Context, m relayMessage) {
	data, err := json.Marshal(m)
	if err != nil {
		slog.Warn("encoding relay message", slog.Any("error", err))
		return
	}

	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := r.rdb.Publish(pctx, r.channel, data).Err(); err != nil {
			slog.Warn("publishing notification, delivering locally",
				slog.String("event", string(m.Event.Kind)),
				slog.Any("error", err),
			)
			r.deliverLocal(pctx, m)
		}
	}()
}

// Run subscribes to the relay channel and feeds the local hub until ctx is
// cancelled. Subscription failures are retried with exponential backoff.
func (r *RedisRelay) Run(ctx context.Context) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := r.receive(ctx, func() { backoff = time.Second })
		if ctx.Err() != nil {
			return
		}

		slog.Warn("notification relay subscriber stopped, retrying",
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// receive runs one subscription until it fails. onMessage is called after
// every successfully received message.
func (r *RedisRelay) receive(ctx context.Context, onMessage func()) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	slog.Info("notification relay subscribed", slog.String("channel", r.channel))

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		onMessage()

		var m relayMessage
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			slog.Warn("decoding relay message", slog.Any("error", err))
			continue
		}
		r.deliverLocal(ctx, m)
	}
}

func (r *RedisRelay) deliverLocal(ctx context.Context, m relayMessage) {
	if m.To == "" {
		r.hub.Broadcast(ctx, m.Event)
		return
	}
	r.hub.Notify(ctx, m.To, m.Event)
}
