package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/commands"
	"github.com/radieske/stream-wager-engine/internal/ledger"
	"github.com/radieske/stream-wager-engine/internal/notify"
	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/internal/rounds"
	"github.com/radieske/stream-wager-engine/internal/settlement"
	"github.com/radieske/stream-wager-engine/internal/shared/config"
	"github.com/radieske/stream-wager-engine/internal/shared/db"
	"github.com/radieske/stream-wager-engine/internal/shared/kafka"
	"github.com/radieske/stream-wager-engine/internal/shared/logger"
	"github.com/radieske/stream-wager-engine/internal/shared/metrics"
)

// round-commands-worker consome comandos administrativos (travar, liquidar, cancelar)
// e aplica no mesmo banco do betting-service
func main() {
	cfg := config.Load()
	log, err := logger.New("round-commands-worker", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vig, err := settlement.ParseVig(cfg.VigRate)
	if err != nil {
		log.Fatal("vig rate", zap.Error(err))
	}

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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollectors(reg)

	// Kafka consumer com commit manual; DLQ opcional para comandos rejeitados
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicRoundCommands, cfg.CommandsGroupID)
	defer reader.Close()

	var dlq kafka.MessageWriter
	if cfg.TopicCommandsDLQ != "" {
		dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCommandsDLQ)
		defer dlqWriter.Close()
		dlq = dlqWriter
	}

	// Eventos resultantes seguem para o mesmo tópico do betting-service
	events := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBettingEvents)
	defer events.Close()
	emitter := notify.NewEmitter(notify.NewKafkaPublisher(events), logger.Component(log, "notify"))

	l := ledger.New(store, logger.Component(log, "ledger"), ledger.WithMetrics(m))
	roundsSvc := rounds.New(store, l, emitter, logger.Component(log, "rounds"), m)
	settlementSvc := settlement.New(store, l, emitter, logger.Component(log, "settlement"), m, vig)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, store.Ping)

	log.Info("round-commands-worker started",
		zap.String("consume", cfg.TopicRoundCommands),
		zap.String("dlq", cfg.TopicCommandsDLQ),
	)

	w := commands.NewWorker(reader, dlq, commands.NewHandler(roundsSvc, settlementSvc), logger.Component(log, "worker"), m)
	if err := w.Run(ctx); err != nil {
		log.Error("worker", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("stopped")
}
