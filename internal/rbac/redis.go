package rbac

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel carrying grant change notices.
const DefaultChannel = "rbac:grants"

// RedisNotifier broadcasts grant changes over Redis pub/sub.  Each
// process tags its messages with an origin id and ignores its own, so a
// local write is applied once.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	origin  string
}

// NewRedisNotifier returns a notifier publishing on channel.  origin
// must be unique per process; the request-id generator is a good source.
func NewRedisNotifier(rdb *redis.Client, channel, origin string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{rdb: rdb, channel: channel, origin: origin}
}

// Publish announces a change.
func (n *RedisNotifier) Publish(ctx context.Context) error {
	msg := n.origin + ":" + strconv.FormatInt(time.Now().UnixNano(), 10)
	return n.rdb.Publish(ctx, n.channel, msg).Err()
}

// Subscribe invokes onChange for every change published by another
// process.  It returns when ctx is done or the subscription fails.
func (n *RedisNotifier) Subscribe(ctx context.Context, onChange func()) error {
	sub := n.rdb.Subscribe(ctx, n.channel)
	defer func() { _ = sub.Close() }()

	// Wait for the subscription to be confirmed before consuming.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if isFrom(msg.Payload, n.origin) {
				continue
			}
			onChange()
		}
	}
}

func isFrom(payload, origin string) bool {
	return len(payload) > len(origin) && payload[:len(origin)] == origin && payload[len(origin)] == ':'
}
