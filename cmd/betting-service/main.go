package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/betting"
	wcache "github.com/radieske/stream-wager-engine/internal/cache"
	"github.com/radieske/stream-wager-engine/internal/domain"
	whttp "github.com/radieske/stream-wager-engine/internal/http"
	"github.com/radieske/stream-wager-engine/internal/ledger"
	"github.com/radieske/stream-wager-engine/internal/notify"
	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/internal/rounds"
	"github.com/radieske/stream-wager-engine/internal/settlement"
	"github.com/radieske/stream-wager-engine/internal/shared/cache"
	"github.com/radieske/stream-wager-engine/internal/shared/config"
	"github.com/radieske/stream-wager-engine/internal/shared/db"
	"github.com/radieske/stream-wager-engine/internal/shared/kafka"
	"github.com/radieske/stream-wager-engine/internal/shared/logger"
	"github.com/radieske/stream-wager-engine/internal/shared/metrics"
)

func main() {
	cfg := config.Load()

	// Inicializa logger estruturado
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("driver", cfg.DBDriver), zap.Strings("sinks", cfg.EventSinks))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vig, err := settlement.ParseVig(cfg.VigRate)
	if err != nil {
		log.Fatal("vig rate", zap.Error(err))
	}

	// Banco: Postgres em produção, SQLite no ambiente local
	dialect, err := repo.ParseDialect(cfg.DBDriver)
	if err != nil {
		log.Fatal("db driver", zap.Error(err))
	}
	var sqlDB *sql.DB
	if dialect == repo.Postgres {
		sqlDB, err = db.ConnectPostgres(cfg.PostgresDSN)
	} else {
		sqlDB, err = db.ConnectSQLite(cfg.SQLitePath)
	}
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer sqlDB.Close()

	store := repo.NewStore(sqlDB, dialect)
	if err := store.Migrate(ctx); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	// Métricas em registry próprio + coletores padrão do processo
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollectors(reg)

	// Redis: cache de carteira e Pub/Sub (opcional se nenhum dos dois estiver habilitado)
	var rdb *redis.Client
	if cfg.HasSink("redis") || cfg.WalletCacheTTL > 0 {
		rdb, err = cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Destinos de eventos
	var sinks []notify.Publisher
	if cfg.HasSink("kafka") {
		writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBettingEvents)
		defer writer.Close()
		sinks = append(sinks, notify.NewKafkaPublisher(writer))
	}
	if cfg.HasSink("redis") {
		sinks = append(sinks, notify.NewRedisPublisher(rdb, cfg.RedisPubSubChannel))
	}
	var pub notify.Publisher = notify.Nop{}
	if len(sinks) > 0 {
		pub = notify.NewMultiPublisher(sinks...)
	}
	emitter := notify.NewEmitter(pub, logger.Component(log, "notify"))

	ledgerOpts := []ledger.Option{ledger.WithMetrics(m)}
	if rdb != nil && cfg.WalletCacheTTL > 0 {
		ledgerOpts = append(ledgerOpts, ledger.WithCache(wcache.NewWalletCache(rdb, cfg.WalletCacheTTL)))
	}
	l := ledger.New(store, logger.Component(log, "ledger"), ledgerOpts...)
	roundsSvc := rounds.New(store, l, emitter, logger.Component(log, "rounds"), m)
	bettingSvc := betting.New(store, l, emitter, logger.Component(log, "betting"), m)
	settlementSvc := settlement.New(store, l, emitter, logger.Component(log, "settlement"), m, vig)

	grants := map[domain.Currency]int64{
		domain.CurrencyHard: cfg.InitialBalanceHard,
		domain.CurrencySoft: cfg.InitialBalanceSoft,
	}
	api := whttp.NewServer(logger.Component(log, "http"), l, bettingSvc, roundsSvc, settlementSvc, grants).
		WithCORS(cfg.CORSAllowedOrigins)

	// Servidor HTTP público (API do motor de apostas)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Servidor de métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return err
		}
		if rdb != nil {
			return rdb.Ping(ctx).Err()
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api srv", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics shutdown", zap.Error(err))
	}
}
