package commands

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/shared/kafka"
	"github.com/radieske/stream-wager-engine/internal/shared/metrics"
	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

// Worker consome round_commands; o offset só é confirmado depois do comando
// aplicado (ou enviado para a DLQ)
type Worker struct {
	reader  kafka.MessageReader
	dlq     kafka.MessageWriter // opcional
	handler *Handler
	log     *zap.Logger
	metrics *metrics.Collectors

	retries int
	backoff time.Duration
}

func NewWorker(reader kafka.MessageReader, dlq kafka.MessageWriter, h *Handler, log *zap.Logger, m *metrics.Collectors) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{reader: reader, dlq: dlq, handler: h, log: log, metrics: m, retries: 3, backoff: 300 * time.Millisecond}
}

// Run processa mensagens até ctx ser cancelado
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("kafka fetch", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		if !w.process(ctx, msg) {
			return nil
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("kafka commit", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

// process retorna false quando ctx foi cancelado antes de concluir (mensagem não confirmada)
func (w *Worker) process(ctx context.Context, msg kafkago.Message) bool {
	var cmd events.RoundCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		w.log.Error("unmarshal round command", zap.Error(err))
		w.metrics.Command("unknown", "dead_letter")
		w.deadLetter(ctx, msg, err)
		return true
	}
	log := w.log.With(zap.String("commandId", cmd.CommandID), zap.String("type", string(cmd.Type)))

	var err error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 && !sleep(ctx, time.Duration(attempt)*w.backoff) {
			return false
		}
		err = w.handler.Handle(ctx, cmd)
		if err == nil || errors.Is(err, ErrDuplicate) || Permanent(err) {
			break
		}
		log.Warn("round command failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	switch {
	case err == nil:
		log.Info("round command applied")
		w.metrics.Command(string(cmd.Type), "applied")
	case errors.Is(err, ErrDuplicate):
		log.Info("round command already applied", zap.Error(err))
		w.metrics.Command(string(cmd.Type), "duplicate")
	default:
		log.Error("round command rejected", zap.Error(err))
		w.metrics.Command(string(cmd.Type), "dead_letter")
		w.deadLetter(ctx, msg, err)
	}
	return true
}

func (w *Worker) deadLetter(ctx context.Context, msg kafkago.Message, cause error) {
	if w.dlq == nil {
		return
	}
	err := w.dlq.WriteMessages(ctx, kafkago.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: []kafkago.Header{{Key: "error", Value: []byte(cause.Error())}},
		Time:    time.Now(),
	})
	if err != nil {
		w.log.Error("dlq write", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
