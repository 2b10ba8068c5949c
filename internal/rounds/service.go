// Package rounds governa streams, rounds e opções: canais por moeda,
// travamento de opção e cancelamento de round com estorno.
package rounds

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/ledger"
	"github.com/radieske/stream-wager-engine/internal/notify"
	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/internal/shared/metrics"
	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

type Service struct {
	store   *repo.Store
	ledger  *ledger.Service
	emitter *notify.Emitter
	log     *zap.Logger
	metrics *metrics.Collectors
}

func New(store *repo.Store, l *ledger.Service, emitter *notify.Emitter, log *zap.Logger, m *metrics.Collectors) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, ledger: l, emitter: emitter, log: log, metrics: m}
}

// AcceptsWagers verifica se a opção aceita movimentação de aposta na moeda:
// canal (round, moeda) ativo e opção ainda Active
func AcceptsWagers(r *domain.Round, o *domain.Option, c domain.Currency) error {
	if !c.Valid() {
		return fmt.Errorf("%w: unsupported currency %q", domain.ErrInvalidInput, c)
	}
	if o.Status != domain.OptionActive {
		return fmt.Errorf("%w: option %s is %s", domain.ErrInvalidState, o.ID, o.Status)
	}
	if !r.ChannelOpen(c) {
		return fmt.Errorf("%w: round %s channel %s is %s", domain.ErrInvalidState, r.ID, c, r.Channels[c])
	}
	return nil
}

func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name required", domain.ErrInvalidInput)
	}
	return name, nil
}

// CreateStream registra o evento ao vivo
func (s *Service) CreateStream(ctx context.Context, name string) (*domain.Stream, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	st := &domain.Stream{ID: uuid.NewString(), Name: name, CreatedAt: s.ledger.Now()}
	if err := s.store.WithinTx(ctx, func(tx *repo.Tx) error { return tx.InsertStream(ctx, st) }); err != nil {
		return nil, err
	}
	return st, nil
}

// CreateRound abre um round com todos os canais ativos
func (s *Service) CreateRound(ctx context.Context, streamID, name string) (*domain.Round, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	r := &domain.Round{
		ID:        uuid.NewString(),
		StreamID:  streamID,
		Name:      name,
		Channels:  make(map[domain.Currency]domain.ChannelStatus, len(domain.Currencies)),
		CreatedAt: s.ledger.Now(),
	}
	for _, c := range domain.Currencies {
		r.Channels[c] = domain.ChannelActive
	}
	err = s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		if _, err := tx.GetStream(ctx, streamID); err != nil {
			return err
		}
		return tx.InsertRound(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateOption adiciona uma variável de aposta a um round ainda não resolvido
func (s *Service) CreateOption(ctx context.Context, roundID, name string) (*domain.Option, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	var o *domain.Option
	err = s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		r, err := tx.LockRound(ctx, roundID)
		if err != nil {
			return err
		}
		opts, err := tx.ListOptions(ctx, roundID)
		if err != nil {
			return err
		}
		if resolved(opts) {
			return fmt.Errorf("%w: round %s is already resolved", domain.ErrInvalidState, roundID)
		}
		o = &domain.Option{
			ID:        uuid.NewString(),
			RoundID:   r.ID,
			StreamID:  r.StreamID,
			Name:      name,
			Status:    domain.OptionActive,
			Totals:    map[domain.Currency]int64{},
			Counts:    map[domain.Currency]int64{},
			CreatedAt: s.ledger.Now(),
		}
		return tx.InsertOption(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func resolved(opts []domain.Option) bool {
	for _, o := range opts {
		if o.Status.Resolved() {
			return true
		}
	}
	return false
}

func (s *Service) GetRound(ctx context.Context, roundID string) (*domain.Round, error) {
	var r *domain.Round
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		var err error
		r, err = tx.GetRound(ctx, roundID)
		return err
	})
	return r, err
}

func (s *Service) GetOption(ctx context.Context, optionID string) (*domain.Option, error) {
	var o *domain.Option
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		var err error
		o, err = tx.GetOption(ctx, optionID)
		return err
	})
	return o, err
}

func (s *Service) ListOptions(ctx context.Context, roundID string) ([]domain.Option, error) {
	var out []domain.Option
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		if _, err := tx.GetRound(ctx, roundID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListOptions(ctx, roundID)
		return err
	})
	return out, err
}

// LockOption: Active -> Locked; Locked é no-op; estados resolvidos são rejeitados
func (s *Service) LockOption(ctx context.Context, optionID string) (*domain.Option, error) {
	var (
		o       *domain.Option
		changed bool
	)
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		var err error
		o, err = tx.LockOption(ctx, optionID)
		if err != nil {
			return err
		}
		switch o.Status {
		case domain.OptionLocked:
			return nil
		case domain.OptionActive:
		default:
			return fmt.Errorf("%w: option %s is already %s", domain.ErrInvalidState, o.ID, o.Status)
		}
		if err := tx.UpdateOptionStatus(ctx, o.ID, domain.OptionLocked); err != nil {
			return err
		}
		o.Status = domain.OptionLocked
		changed = true
		return nil
	})
	if err != nil {
		s.metrics.OpError("lock_option", domain.KindOf(err))
		return nil, err
	}

	if changed {
		s.log.Info("option locked", zap.String("optionId", o.ID), zap.String("roundId", o.RoundID))
		s.emitter.Emit(ctx, notify.NewEnvelope(events.TypeOptionLocked, o.StreamID, o.RoundID,
			events.OptionLocked{Option: notify.OptionOf(o)}))
	}
	return o, nil
}

// LockChannel fecha o canal (round, moeda) para novas apostas e cancelamentos
func (s *Service) LockChannel(ctx context.Context, roundID string, c domain.Currency) (*domain.Round, error) {
	return s.setChannel(ctx, roundID, c, domain.ChannelLocked)
}

// OpenChannel reabre o canal; rejeitado depois que o round foi resolvido
func (s *Service) OpenChannel(ctx context.Context, roundID string, c domain.Currency) (*domain.Round, error) {
	return s.setChannel(ctx, roundID, c, domain.ChannelActive)
}

func (s *Service) setChannel(ctx context.Context, roundID string, c domain.Currency, st domain.ChannelStatus) (*domain.Round, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unsupported currency %q", domain.ErrInvalidInput, c)
	}
	var (
		r       *domain.Round
		changed bool
	)
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		var err error
		if r, err = tx.LockRound(ctx, roundID); err != nil {
			return err
		}
		if r.Channels[c] == st {
			return nil
		}
		if st == domain.ChannelActive {
			opts, err := tx.ListOptions(ctx, roundID)
			if err != nil {
				return err
			}
			if resolved(opts) {
				return fmt.Errorf("%w: round %s is already resolved", domain.ErrInvalidState, roundID)
			}
		}
		if err := tx.UpdateRoundChannel(ctx, roundID, c, st); err != nil {
			return err
		}
		r.Channels[c] = st
		changed = true
		return nil
	})
	if err != nil {
		s.metrics.OpError("set_channel", domain.KindOf(err))
		return nil, err
	}

	if changed {
		s.log.Info("round channel updated",
			zap.String("roundId", roundID), zap.String("currency", string(c)), zap.String("status", string(st)))
		s.emitter.Emit(ctx, notify.NewEnvelope(events.TypeRoundChannelUpdated, r.StreamID, r.ID,
			events.RoundChannelUpdated{RoundID: r.ID, Currency: string(c), Status: string(st)}))
	}
	return r, nil
}
