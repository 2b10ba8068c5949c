// Package settlement declara o vencedor de um round e distribui o pool parimutuel
// de cada moeda, pagando cada aposta vencedora exatamente uma vez.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/ledger"
	"github.com/radieske/stream-wager-engine/internal/notify"
	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/internal/rounds"
	"github.com/radieske/stream-wager-engine/internal/shared/metrics"
	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

// Result é o desfecho completo de uma liquidação
type Result struct {
	Round   *domain.Round             `json:"round"`
	Winner  *domain.Option            `json:"winner"`
	Options []domain.Option           `json:"options"`
	Pools   []Pool                    `json:"pools"`
	Bets    []domain.Bet              `json:"bets"`
	Wallets map[string]*domain.Wallet `json:"wallets"` // saldo final dos usuários creditados
}

type Service struct {
	store   *repo.Store
	ledger  *ledger.Service
	emitter *notify.Emitter
	log     *zap.Logger
	metrics *metrics.Collectors
	vig     decimal.Decimal
}

func New(store *repo.Store, l *ledger.Service, emitter *notify.Emitter, log *zap.Logger, m *metrics.Collectors, vig decimal.Decimal) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, ledger: l, emitter: emitter, log: log, metrics: m, vig: vig}
}

// DeclareWinner finaliza o round numa única transação:
//  1. opção alvo (Locked) vira Winner, irmãs Active/Locked viram Loser
//  2. apostas ativas são agrupadas por moeda em vencedoras e perdedoras
//  3. vencedoras recebem bet_won (chave = id da aposta); perdedoras viram Lost
//  4. moeda sem stake vencedor estorna as perdedoras (Refunded)
//  5. todos os canais do round são travados
func (s *Service) DeclareWinner(ctx context.Context, optionID string) (*Result, error) {
	out := &Result{Wallets: map[string]*domain.Wallet{}}
	var results []*ledger.Result

	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		target, err := tx.GetOption(ctx, optionID)
		if err != nil {
			return err
		}
		r, err := tx.LockRound(ctx, target.RoundID)
		if err != nil {
			return err
		}
		opts, err := tx.LockRoundOptions(ctx, r.ID)
		if err != nil {
			return err
		}
		if err := finalizeOptions(ctx, tx, opts, optionID); err != nil {
			return err
		}

		bets, err := tx.ListActiveBetsByRound(ctx, r.ID)
		if err != nil {
			return err
		}
		groups := groupByCurrency(bets, optionID)

		// carteiras creditadas, travadas em ordem de user_id antes de qualquer crédito
		var credited []string
		for _, g := range groups {
			paid := g.winning
			if g.winningStake() == 0 {
				paid = g.losing
			}
			for _, b := range paid {
				credited = append(credited, b.UserID)
			}
		}
		if _, err := tx.LockWallets(ctx, credited); err != nil {
			return err
		}

		for _, g := range groups {
			pool, res, err := s.settlePool(ctx, tx, g)
			if err != nil {
				return err
			}
			out.Pools = append(out.Pools, pool)
			for _, lr := range res {
				results = append(results, lr)
				out.Wallets[lr.Wallet.UserID] = lr.Wallet
			}
			out.Bets = append(out.Bets, derefAll(g.winning)...)
			out.Bets = append(out.Bets, derefAll(g.losing)...)
		}

		for _, c := range domain.Currencies {
			if !r.ChannelOpen(c) {
				continue
			}
			if err := tx.UpdateRoundChannel(ctx, r.ID, c, domain.ChannelLocked); err != nil {
				return err
			}
			r.Channels[c] = domain.ChannelLocked
		}
		out.Round = r

		if out.Options, err = tx.ListOptions(ctx, r.ID); err != nil {
			return err
		}
		for i := range out.Options {
			if out.Options[i].ID == optionID {
				out.Winner = &out.Options[i]
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.OpError("declare_winner", domain.KindOf(err))
		return nil, err
	}
	s.ledger.Committed(ctx, results...)
	s.record(out)

	s.emitter.Emit(ctx, notify.NewEnvelope(events.TypeWinnerDeclared, out.Round.StreamID, out.Round.ID, events.WinnerDeclared{
		Winner:  notify.OptionOf(out.Winner),
		Options: notify.OptionsOf(out.Options),
		Pools:   poolsOf(out.Pools),
		Results: notify.BetResultsOf(out.Bets, out.Wallets),
	}))
	return out, nil
}

// finalizeOptions exige a opção alvo Locked; Winner já declarado é Conflict
func finalizeOptions(ctx context.Context, tx *repo.Tx, opts []domain.Option, winnerID string) error {
	var found bool
	for _, o := range opts {
		if o.ID != winnerID {
			continue
		}
		found = true
		switch o.Status {
		case domain.OptionLocked:
		case domain.OptionWinner:
			return fmt.Errorf("%w: option %s already declared winner", domain.ErrConflict, o.ID)
		default:
			return fmt.Errorf("%w: option %s is %s, must be locked", domain.ErrInvalidState, o.ID, o.Status)
		}
	}
	if !found {
		return fmt.Errorf("%w: option %s", domain.ErrNotFound, winnerID)
	}

	for _, o := range opts {
		next := domain.OptionLoser
		switch {
		case o.ID == winnerID:
			next = domain.OptionWinner
		case o.Status.Resolved():
			continue
		}
		if err := tx.UpdateOptionStatus(ctx, o.ID, next); err != nil {
			return err
		}
	}
	return nil
}

type group struct {
	currency domain.Currency
	winning  []*domain.Bet
	losing   []*domain.Bet
}

func (g *group) winningStake() int64 {
	var sum int64
	for _, b := range g.winning {
		sum += b.Amount
	}
	return sum
}

// groupByCurrency separa as apostas em pools por moeda, na ordem de domain.Currencies
func groupByCurrency(bets []domain.Bet, winnerID string) []*group {
	byCur := map[domain.Currency]*group{}
	for i := range bets {
		b := &bets[i]
		g, ok := byCur[b.Currency]
		if !ok {
			g = &group{currency: b.Currency}
			byCur[b.Currency] = g
		}
		if b.OptionID == winnerID {
			g.winning = append(g.winning, b)
		} else {
			g.losing = append(g.losing, b)
		}
	}
	out := make([]*group, 0, len(byCur))
	for _, c := range domain.Currencies {
		if g, ok := byCur[c]; ok {
			out = append(out, g)
		}
	}
	return out
}

func (s *Service) settlePool(ctx context.Context, tx *repo.Tx, g *group) (Pool, []*ledger.Result, error) {
	var losing int64
	for _, b := range g.losing {
		losing += b.Amount
	}

	stakes := make([]int64, len(g.winning))
	for i, b := range g.winning {
		stakes[i] = b.Amount
	}
	pool := Distribute(g.currency, s.vig, stakes, losing)

	var results []*ledger.Result
	if pool.TotalWinningStake == 0 {
		pool.Refunded = true
		for _, b := range g.losing {
			res, err := rounds.RefundBetTx(ctx, s.ledger, tx, b, domain.BetRefunded, "no winning stake: refund bet "+b.ID)
			if err != nil {
				return pool, nil, err
			}
			results = append(results, res)
			pool.TotalPaid += b.Amount
		}
		return pool, results, nil
	}

	now := s.ledger.Now()
	for i, b := range g.winning {
		res, err := s.ledger.ApplyTx(ctx, tx, ledger.Entry{
			UserID:      b.UserID,
			Amount:      pool.Payouts[i],
			Currency:    b.Currency,
			Type:        domain.TxBetWon,
			Description: "payout bet " + b.ID,
			Key:         domain.BetKey(b.ID),
		})
		if err != nil {
			return pool, nil, err
		}
		results = append(results, res)
		markProcessed(b, domain.BetWon, pool.Payouts[i], now)
		if err := tx.UpdateBetOutcome(ctx, b); err != nil {
			return pool, nil, err
		}
	}
	for _, b := range g.losing {
		markProcessed(b, domain.BetLost, 0, now)
		if err := tx.UpdateBetOutcome(ctx, b); err != nil {
			return pool, nil, err
		}
	}
	return pool, results, nil
}

func markProcessed(b *domain.Bet, st domain.BetStatus, payout int64, now time.Time) {
	b.Status = st
	b.PayoutAmount = payout
	b.IsProcessed = true
	b.ProcessedAt = &now
	b.UpdatedAt = now
}

func derefAll(bets []*domain.Bet) []domain.Bet {
	out := make([]domain.Bet, 0, len(bets))
	for _, b := range bets {
		out = append(out, *b)
	}
	return out
}

func (s *Service) record(out *Result) {
	s.metrics.Settlement("winner_declared")
	for _, p := range out.Pools {
		if p.Refunded {
			s.metrics.Refund(string(p.Currency), "no_winning_stake", p.TotalPaid)
		} else {
			s.metrics.Payout(string(p.Currency), p.TotalPaid)
			s.metrics.Fee(string(p.Currency), p.PlatformFee)
		}
		s.log.Info("pool settled",
			zap.String("roundId", out.Round.ID),
			zap.String("winnerId", out.Winner.ID),
			zap.String("currency", string(p.Currency)),
			zap.Int64("winning", p.TotalWinningStake),
			zap.Int64("losing", p.TotalLosingStake),
			zap.Int64("fee", p.PlatformFee),
			zap.Int64("paid", p.TotalPaid),
			zap.Int64("remainder", p.Remainder),
			zap.Bool("refunded", p.Refunded),
		)
	}
	s.log.Info("winner declared",
		zap.String("roundId", out.Round.ID),
		zap.String("winnerId", out.Winner.ID),
		zap.Int("bets", len(out.Bets)),
	)
}

func poolsOf(pools []Pool) []events.Pool {
	out := make([]events.Pool, 0, len(pools))
	for _, p := range pools {
		out = append(out, events.Pool{
			Currency:          string(p.Currency),
			TotalWinningStake: p.TotalWinningStake,
			TotalLosingStake:  p.TotalLosingStake,
			PlatformFee:       p.PlatformFee,
			DistributablePot:  p.DistributablePot,
			TotalPaid:         p.TotalPaid,
			Remainder:         p.Remainder,
			Refunded:          p.Refunded,
		})
	}
	return out
}
