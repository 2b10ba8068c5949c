package broadcast

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StartRedisSubscriber escuta o canal Pub/Sub dos eventos de apostas e repassa
// cada envelope ao hub; encerra quando ctx é cancelado
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				if err := hub.Dispatch([]byte(msg.Payload)); err != nil {
					log.Warn("ws subscriber unmarshal error", zap.Error(err))
				}
			}
		}
	}()
}
