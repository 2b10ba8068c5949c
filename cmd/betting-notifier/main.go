package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/broadcast"
	"github.com/radieske/stream-wager-engine/internal/shared/cache"
	"github.com/radieske/stream-wager-engine/internal/shared/config"
	"github.com/radieske/stream-wager-engine/internal/shared/logger"
	"github.com/radieske/stream-wager-engine/internal/shared/metrics"
)

// betting-notifier assina o canal Redis dos eventos de apostas e faz broadcast via WebSocket
func main() {
	cfg := config.Load()

	log, err := logger.New("betting-notifier", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	hub := broadcast.NewHub(func(r *http.Request) bool {
		return cfg.OriginAllowed(r.Header.Get("Origin"))
	}, logger.Component(log, "hub"))
	broadcast.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)
	log.Info("subscribed", zap.String("channel", cfg.RedisPubSubChannel))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	wsSrv := &http.Server{Addr: ":" + cfg.WSPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, nil, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	go func() {
		log.Info("ws listening", zap.String("addr", wsSrv.Addr))
		if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ws srv", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = wsSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("stopped")
}
