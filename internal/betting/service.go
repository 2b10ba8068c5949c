// Package betting implementa o ciclo de vida da aposta: criar, cancelar e editar,
// sempre movendo dinheiro pelo ledger na mesma transação dos agregados da opção.
package betting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/betting/dto"
	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/ledger"
	"github.com/radieske/stream-wager-engine/internal/notify"
	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/internal/rounds"
	"github.com/radieske/stream-wager-engine/internal/shared/metrics"
	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

// Outcome é a projeção devolvida ao chamador: aposta, agregados e carteira atualizados
type Outcome struct {
	Bet    *domain.Bet    `json:"bet"`
	Option *domain.Option `json:"option"`
	Wallet *domain.Wallet `json:"wallet"`
}

// EditOutcome inclui a aposta substituída
type EditOutcome struct {
	Previous       *domain.Bet    `json:"previous"`
	PreviousOption *domain.Option `json:"previousOption"`
	Outcome
}

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

// PlaceBet debita a carteira, cria a aposta Active e incrementa os agregados da opção
func (s *Service) PlaceBet(ctx context.Context, req dto.PlaceBetRequest) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var (
		out *Outcome
		res *ledger.Result
	)
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		var err error
		out, res, err = s.placeTx(ctx, tx, req.UserID, req.OptionID, req.Amount, domain.Currency(req.Currency))
		return err
	})
	if err != nil {
		s.metrics.OpError("place_bet", domain.KindOf(err))
		return nil, err
	}
	s.ledger.Committed(ctx, res)
	s.metrics.BetPlaced(req.Currency)

	s.log.Info("bet placed",
		zap.String("betId", out.Bet.ID),
		zap.String("userId", out.Bet.UserID),
		zap.String("optionId", out.Bet.OptionID),
		zap.Int64("amount", out.Bet.Amount),
		zap.String("currency", req.Currency),
	)
	s.emitter.Emit(ctx, notify.NewEnvelope(events.TypeBetPlaced, out.Bet.StreamID, out.Bet.RoundID, events.BetPlaced{
		Bet:    notify.BetOf(out.Bet),
		Option: notify.OptionOf(out.Option),
		Wallet: notify.WalletOf(out.Wallet),
	}))
	return out, nil
}

// CancelBet estorna o valor integral de uma aposta ativa do próprio usuário
// Repetir o cancelamento de uma aposta já cancelada é no-op
func (s *Service) CancelBet(ctx context.Context, req dto.CancelBetRequest) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var (
		out  *Outcome
		res  *ledger.Result
		noop bool
	)
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		var err error
		out, res, noop, err = s.cancelTx(ctx, tx, req.UserID, req.BetID, domain.Currency(req.Currency))
		return err
	})
	if err != nil {
		s.metrics.OpError("cancel_bet", domain.KindOf(err))
		return nil, err
	}
	if noop {
		return out, nil
	}
	s.ledger.Committed(ctx, res)
	s.metrics.BetCancelled(string(out.Bet.Currency))
	s.metrics.Refund(string(out.Bet.Currency), "bet_cancelled", out.Bet.Amount)

	s.log.Info("bet cancelled",
		zap.String("betId", out.Bet.ID),
		zap.String("userId", out.Bet.UserID),
		zap.Int64("refunded", out.Bet.Amount),
	)
	s.emitter.Emit(ctx, notify.NewEnvelope(events.TypeBetCancelled, out.Bet.StreamID, out.Bet.RoundID, events.BetCancelled{
		Bet:    notify.BetOf(out.Bet),
		Option: notify.OptionOf(out.Option),
		Wallet: notify.WalletOf(out.Wallet),
	}))
	return out, nil
}

// EditBet cancela e recria a aposta na mesma transação: se a nova aposta falhar,
// o cancelamento também é desfeito
func (s *Service) EditBet(ctx context.Context, req dto.EditBetRequest) (*EditOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var (
		out     *EditOutcome
		results []*ledger.Result
	)
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		if err := lockEditScope(ctx, tx, req.UserID, req.BetID, req.NewOptionID); err != nil {
			return err
		}
		prev, refund, noop, err := s.cancelTx(ctx, tx, req.UserID, req.BetID, "")
		if err != nil {
			return err
		}
		if noop {
			return fmt.Errorf("%w: bet %s is already cancelled", domain.ErrInvalidState, req.BetID)
		}
		next, debit, err := s.placeTx(ctx, tx, req.UserID, req.NewOptionID, req.NewAmount, domain.Currency(req.NewCurrency))
		if err != nil {
			return err
		}
		results = []*ledger.Result{refund, debit}
		out = &EditOutcome{Previous: prev.Bet, PreviousOption: prev.Option, Outcome: *next}
		// a opção antiga pode ser a mesma da nova aposta
		if prev.Option.ID == next.Option.ID {
			out.PreviousOption = next.Option
		}
		return nil
	})
	if err != nil {
		s.metrics.OpError("edit_bet", domain.KindOf(err))
		return nil, err
	}
	s.ledger.Committed(ctx, results...)
	s.metrics.BetEdited()

	s.log.Info("bet edited",
		zap.String("previousBetId", out.Previous.ID),
		zap.String("betId", out.Bet.ID),
		zap.String("userId", out.Bet.UserID),
		zap.Int64("amount", out.Bet.Amount),
	)
	s.emitter.Emit(ctx, notify.NewEnvelope(events.TypeBetEdited, out.Bet.StreamID, out.Bet.RoundID, events.BetEdited{
		Previous:       notify.BetOf(out.Previous),
		PreviousOption: notify.OptionOf(out.PreviousOption),
		Bet:            notify.BetOf(out.Bet),
		Option:         notify.OptionOf(out.Option),
		Wallet:         notify.WalletOf(out.Wallet),
	}))
	return out, nil
}

// lockEditScope trava os rounds e opções da aposta antiga e da nova, ordenados por id,
// antes de qualquer carteira; cancelTx e placeTx reaproveitam esses locks
func lockEditScope(ctx context.Context, tx *repo.Tx, userID, betID, newOptionID string) error {
	b, err := tx.GetBet(ctx, betID)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return fmt.Errorf("%w: bet %s does not belong to user %s", domain.ErrForbidden, betID, userID)
	}
	o, err := tx.GetOption(ctx, newOptionID)
	if err != nil {
		return err
	}
	for _, id := range repo.SortedUnique([]string{b.RoundID, o.RoundID}) {
		if _, err := tx.LockRound(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range repo.SortedUnique([]string{b.OptionID, o.ID}) {
		if _, err := tx.LockOption(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// placeTx segue a ordem global de locks: round, opção, carteira
func (s *Service) placeTx(ctx context.Context, tx *repo.Tx, userID, optionID string, amount int64, c domain.Currency) (*Outcome, *ledger.Result, error) {
	o, err := tx.GetOption(ctx, optionID)
	if err != nil {
		return nil, nil, err
	}
	r, err := tx.LockRound(ctx, o.RoundID)
	if err != nil {
		return nil, nil, err
	}
	if o, err = tx.LockOption(ctx, optionID); err != nil {
		return nil, nil, err
	}
	if err := rounds.AcceptsWagers(r, o, c); err != nil {
		return nil, nil, err
	}

	if _, err := tx.LockWallet(ctx, userID); err != nil {
		return nil, nil, err
	}
	existing, err := tx.FindActiveBet(ctx, userID, r.ID, c)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, fmt.Errorf("%w: user %s already has active bet %s in round %s (%s)",
			domain.ErrConflict, userID, existing.ID, r.ID, c)
	}

	now := s.ledger.Now()
	b := &domain.Bet{
		ID:        uuid.NewString(),
		UserID:    userID,
		OptionID:  o.ID,
		RoundID:   r.ID,
		StreamID:  r.StreamID,
		Amount:    amount,
		Currency:  c,
		Status:    domain.BetActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := s.ledger.ApplyTx(ctx, tx, ledger.Entry{
		UserID:      userID,
		Amount:      -amount,
		Currency:    c,
		Type:        domain.TxBetPlacement,
		Description: fmt.Sprintf("bet on option %s", o.Name),
		Key:         domain.BetKey(b.ID),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := tx.InsertBet(ctx, b); err != nil {
		return nil, nil, err
	}
	if err := tx.AdjustOptionAggregate(ctx, o.ID, c, amount, 1); err != nil {
		return nil, nil, err
	}
	if o, err = tx.GetOption(ctx, o.ID); err != nil {
		return nil, nil, err
	}
	return &Outcome{Bet: b, Option: o, Wallet: res.Wallet}, res, nil
}

// cancelTx devolve noop=true quando a aposta já estava cancelada
func (s *Service) cancelTx(ctx context.Context, tx *repo.Tx, userID, betID string, c domain.Currency) (*Outcome, *ledger.Result, bool, error) {
	b, err := tx.GetBet(ctx, betID)
	if err != nil {
		return nil, nil, false, err
	}
	if b.UserID != userID {
		return nil, nil, false, fmt.Errorf("%w: bet %s does not belong to user %s", domain.ErrForbidden, betID, userID)
	}
	if c == "" {
		c = b.Currency
	}
	if c != b.Currency {
		return nil, nil, false, fmt.Errorf("%w: bet %s was placed in %s, not %s", domain.ErrInvalidInput, betID, b.Currency, c)
	}

	r, err := tx.LockRound(ctx, b.RoundID)
	if err != nil {
		return nil, nil, false, err
	}
	o, err := tx.LockOption(ctx, b.OptionID)
	if err != nil {
		return nil, nil, false, err
	}
	if b, err = tx.LockBet(ctx, betID); err != nil {
		return nil, nil, false, err
	}

	switch b.Status {
	case domain.BetActive:
	case domain.BetCancelled:
		w, err := tx.GetWallet(ctx, userID)
		if err != nil {
			return nil, nil, false, err
		}
		return &Outcome{Bet: b, Option: o, Wallet: w}, nil, true, nil
	default:
		return nil, nil, false, fmt.Errorf("%w: bet %s is %s", domain.ErrInvalidState, betID, b.Status)
	}
	if err := rounds.AcceptsWagers(r, o, c); err != nil {
		return nil, nil, false, err
	}

	res, err := rounds.RefundBetTx(ctx, s.ledger, tx, b, domain.BetCancelled, "refund bet "+b.ID)
	if err != nil {
		return nil, nil, false, err
	}
	if o, err = tx.GetOption(ctx, o.ID); err != nil {
		return nil, nil, false, err
	}
	return &Outcome{Bet: b, Option: o, Wallet: res.Wallet}, res, false, nil
}

func (s *Service) GetBet(ctx context.Context, betID string) (*domain.Bet, error) {
	var b *domain.Bet
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		var err error
		b, err = tx.GetBet(ctx, betID)
		return err
	})
	return b, err
}

// ListUserBets lista as apostas do usuário; roundID vazio lista todas
func (s *Service) ListUserBets(ctx context.Context, userID, roundID string) ([]domain.Bet, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", domain.ErrInvalidInput)
	}
	var out []domain.Bet
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		var err error
		out, err = tx.ListUserBets(ctx, userID, roundID)
		return err
	})
	return out, err
}
