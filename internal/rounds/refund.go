package rounds

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/ledger"
	"github.com/radieske/stream-wager-engine/internal/notify"
	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

// RefundBetTx devolve o valor integral de uma aposta ativa dentro da transação do chamador:
// crédito refund (chave = id da aposta), status final e decremento dos agregados da opção.
// O chamador já deve ter travado a opção; a carteira é travada pelo ledger.
func RefundBetTx(ctx context.Context, l *ledger.Service, tx *repo.Tx, b *domain.Bet, status domain.BetStatus, description string) (*ledger.Result, error) {
	if b.Status != domain.BetActive {
		return nil, fmt.Errorf("%w: bet %s is %s", domain.ErrInvalidState, b.ID, b.Status)
	}
	if status != domain.BetCancelled && status != domain.BetRefunded {
		return nil, fmt.Errorf("refund to unsupported status %s", status)
	}

	res, err := l.ApplyTx(ctx, tx, ledger.Entry{
		UserID:      b.UserID,
		Amount:      b.Amount,
		Currency:    b.Currency,
		Type:        domain.TxRefund,
		Description: description,
		Key:         domain.BetKey(b.ID),
	})
	if err != nil {
		return nil, err
	}

	now := l.Now()
	b.Status = status
	b.PayoutAmount = 0
	if status == domain.BetRefunded {
		b.PayoutAmount = b.Amount
	}
	b.IsProcessed = true
	b.ProcessedAt = &now
	b.UpdatedAt = now
	if err := tx.UpdateBetOutcome(ctx, b); err != nil {
		return nil, err
	}
	if err := tx.AdjustOptionAggregate(ctx, b.OptionID, b.Currency, -b.Amount, -1); err != nil {
		return nil, err
	}
	return res, nil
}

// RoundRefund é o resultado do cancelamento de um round
type RoundRefund struct {
	Round   *domain.Round             `json:"round"`
	Options []domain.Option           `json:"options"`
	Bets    []domain.Bet              `json:"bets"`
	Wallets map[string]*domain.Wallet `json:"wallets"` // saldo final por usuário estornado
}

// CancelRoundAndRefund estorna todas as apostas ativas do round, cancela as opções
// não resolvidas e trava todos os canais. Repetir a chamada é no-op.
func (s *Service) CancelRoundAndRefund(ctx context.Context, roundID string) (*RoundRefund, error) {
	out := &RoundRefund{Wallets: map[string]*domain.Wallet{}}
	var (
		results []*ledger.Result
		changed bool
	)

	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		r, err := tx.LockRound(ctx, roundID)
		if err != nil {
			return err
		}
		opts, err := tx.LockRoundOptions(ctx, roundID)
		if err != nil {
			return err
		}
		for _, o := range opts {
			if o.Status == domain.OptionWinner {
				return fmt.Errorf("%w: round %s already settled", domain.ErrInvalidState, roundID)
			}
		}

		bets, err := tx.ListActiveBetsByRound(ctx, roundID)
		if err != nil {
			return err
		}
		users := make([]string, 0, len(bets))
		for _, b := range bets {
			users = append(users, b.UserID)
		}
		if _, err := tx.LockWallets(ctx, users); err != nil {
			return err
		}

		for i := range bets {
			b := &bets[i]
			res, err := RefundBetTx(ctx, s.ledger, tx, b, domain.BetCancelled, "round cancelled: refund bet "+b.ID)
			if err != nil {
				return err
			}
			results = append(results, res)
			out.Wallets[b.UserID] = res.Wallet
		}
		out.Bets = bets

		changed = len(bets) > 0
		for _, o := range opts {
			if o.Status.Resolved() {
				continue
			}
			if err := tx.UpdateOptionStatus(ctx, o.ID, domain.OptionCancelled); err != nil {
				return err
			}
			changed = true
		}
		for _, c := range domain.Currencies {
			if !r.ChannelOpen(c) {
				continue
			}
			if err := tx.UpdateRoundChannel(ctx, roundID, c, domain.ChannelLocked); err != nil {
				return err
			}
			r.Channels[c] = domain.ChannelLocked
			changed = true
		}
		out.Round = r

		out.Options, err = tx.ListOptions(ctx, roundID)
		return err
	})
	if err != nil {
		s.metrics.OpError("cancel_round", domain.KindOf(err))
		return nil, err
	}
	s.ledger.Committed(ctx, results...)
	if !changed {
		return out, nil
	}

	s.metrics.Settlement("round_cancelled")
	var refunded int64
	for _, b := range out.Bets {
		s.metrics.Refund(string(b.Currency), "round_cancelled", b.Amount)
		refunded += b.Amount
	}
	s.log.Info("round cancelled and refunded",
		zap.String("roundId", roundID),
		zap.Int("bets", len(out.Bets)),
		zap.Int64("refunded", refunded),
	)

	s.emitter.Emit(ctx, notify.NewEnvelope(events.TypeRoundRefunded, out.Round.StreamID, roundID, events.RoundRefunded{
		RoundID: roundID,
		Options: notify.OptionsOf(out.Options),
		Results: notify.BetResultsOf(out.Bets, out.Wallets),
	}))
	return out, nil
}
