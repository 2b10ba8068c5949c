package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/stream-wager-engine/internal/domain"
)

// DefaultVig é a taxa retida do pool perdedor
var DefaultVig = decimal.RequireFromString("0.15")

// ParseVig aceita taxas no intervalo [0, 1)
func ParseVig(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: vig rate %q: %v", domain.ErrInvalidInput, s, err)
	}
	if v.IsNegative() || v.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%w: vig rate %s out of range [0,1)", domain.ErrInvalidInput, v)
	}
	return v, nil
}

// Pool é a distribuição parimutuel de uma moeda
// Payouts[i] corresponde a stakes[i] passado para Distribute
type Pool struct {
	Currency          domain.Currency `json:"currency"`
	TotalWinningStake int64           `json:"total_winning_stake"`
	TotalLosingStake  int64           `json:"total_losing_stake"`
	PlatformFee       int64           `json:"platform_fee"`
	DistributablePot  int64           `json:"distributable_pot"`
	TotalPaid         int64           `json:"total_paid"`
	Remainder         int64           `json:"remainder"` // sobra do arredondamento, fica com a plataforma
	Refunded          bool            `json:"refunded"`
	Payouts           []int64         `json:"-"`
}

// Distribute calcula fee = floor(perdedor × vig) e, para cada aposta vencedora,
// payout = floor(pot × stake / totalVencedor) + stake
// Sem stake vencedor não há distribuição; o chamador aplica a política de estorno
func Distribute(c domain.Currency, vig decimal.Decimal, stakes []int64, totalLosing int64) Pool {
	p := Pool{Currency: c, TotalLosingStake: totalLosing, Payouts: make([]int64, len(stakes))}
	for _, s := range stakes {
		p.TotalWinningStake += s
	}
	if p.TotalWinningStake == 0 {
		return p
	}

	p.PlatformFee = decimal.NewFromInt(totalLosing).Mul(vig).Floor().IntPart()
	p.DistributablePot = totalLosing - p.PlatformFee

	pot := decimal.NewFromInt(p.DistributablePot)
	winning := decimal.NewFromInt(p.TotalWinningStake)
	var shares int64
	for i, s := range stakes {
		q, _ := pot.Mul(decimal.NewFromInt(s)).QuoRem(winning, 0)
		share := q.IntPart()
		shares += share
		p.Payouts[i] = share + s
		p.TotalPaid += p.Payouts[i]
	}
	p.Remainder = p.DistributablePot - shares
	return p
}
