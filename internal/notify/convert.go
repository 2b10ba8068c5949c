package notify

import (
	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

func BetOf(b *domain.Bet) events.Bet {
	return events.Bet{
		BetID:        b.ID,
		UserID:       b.UserID,
		OptionID:     b.OptionID,
		RoundID:      b.RoundID,
		StreamID:     b.StreamID,
		Amount:       b.Amount,
		Currency:     string(b.Currency),
		Status:       string(b.Status),
		PayoutAmount: b.PayoutAmount,
		ProcessedAt:  b.ProcessedAt,
	}
}

func OptionOf(o *domain.Option) events.Option {
	return events.Option{
		OptionID: o.ID,
		RoundID:  o.RoundID,
		Name:     o.Name,
		Status:   string(o.Status),
		Totals:   byCurrency(o.Totals),
		Counts:   byCurrency(o.Counts),
	}
}

func OptionsOf(opts []domain.Option) []events.Option {
	out := make([]events.Option, 0, len(opts))
	for i := range opts {
		out = append(out, OptionOf(&opts[i]))
	}
	return out
}

func WalletOf(w *domain.Wallet) events.Wallet {
	return events.Wallet{UserID: w.UserID, Balances: byCurrency(w.Balances)}
}

// BetResultsOf monta o desfecho por aposta com o saldo final do dono, quando creditado
func BetResultsOf(bets []domain.Bet, wallets map[string]*domain.Wallet) []events.BetResult {
	out := make([]events.BetResult, 0, len(bets))
	for i := range bets {
		r := events.BetResult{Bet: BetOf(&bets[i])}
		if w, ok := wallets[bets[i].UserID]; ok {
			ew := WalletOf(w)
			r.Wallet = &ew
		}
		out = append(out, r)
	}
	return out
}

func byCurrency(m map[domain.Currency]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for c, v := range m {
		out[string(c)] = v
	}
	return out
}
