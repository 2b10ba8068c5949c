// Package notify publica os eventos de domínio depois do commit para o notificador em tempo real
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/shared/kafka"
	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

// Publisher entrega um evento a um destino externo
type Publisher interface {
	Publish(ctx context.Context, ev events.Envelope) error
}

// NewEnvelope preenche id e horário do evento
func NewEnvelope(t events.Type, streamID, roundID string, payload any) events.Envelope {
	return events.Envelope{
		EventID:    uuid.NewString(),
		Type:       t,
		StreamID:   streamID,
		RoundID:    roundID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// KafkaPublisher publica no tópico de eventos de apostas
type KafkaPublisher struct {
	Writer kafka.MessageWriter
}

func NewKafkaPublisher(w kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev events.Envelope) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return kafka.WriteJSON(ctx, p.Writer, ev.RoundID, b)
}

// RedisPublisher publica no canal Pub/Sub consumido pelo broadcaster WebSocket
type RedisPublisher struct {
	Client  redisPublish
	Channel string
}

type redisPublish interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

func NewRedisPublisher(c redisPublish, channel string) *RedisPublisher {
	return &RedisPublisher{Client: c, Channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev events.Envelope) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.Client.Publish(ctx, p.Channel, b).Err()
}

// MultiPublisher entrega o evento a todos os destinos e junta os erros
type MultiPublisher struct {
	sinks []Publisher
}

func NewMultiPublisher(sinks ...Publisher) *MultiPublisher {
	return &MultiPublisher{sinks: sinks}
}

func (m *MultiPublisher) Publish(ctx context.Context, ev events.Envelope) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop descarta eventos
type Nop struct{}

func (Nop) Publish(context.Context, events.Envelope) error { return nil }

// Emitter publica depois do commit; falha de publicação só é logada,
// o efeito financeiro já efetivado nunca é desfeito
type Emitter struct {
	pub     Publisher
	log     *zap.Logger
	timeout time.Duration
}

func NewEmitter(pub Publisher, log *zap.Logger) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{pub: pub, log: log, timeout: 2 * time.Second}
}

func (e *Emitter) Emit(ctx context.Context, ev events.Envelope) {
	if e == nil {
		return
	}
	// o evento sai mesmo se a requisição original já tiver sido cancelada
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if err := e.pub.Publish(ctx, ev); err != nil {
		e.log.Warn("event publish failed",
			zap.String("type", string(ev.Type)),
			zap.String("eventId", ev.EventID),
			zap.String("roundId", ev.RoundID),
			zap.Error(err),
		)
	}
}
