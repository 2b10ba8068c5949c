package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors agrupa os contadores do motor de apostas e liquidação
// Métodos aceitam receptor nil (serviços sem métricas nos testes)
type Collectors struct {
	BetsPlaced      *prometheus.CounterVec
	BetsCancelled   *prometheus.CounterVec
	BetsEdited      prometheus.Counter
	LedgerEntries   *prometheus.CounterVec
	LedgerReplays   prometheus.Counter
	Settlements     *prometheus.CounterVec
	PayoutVolume    *prometheus.CounterVec
	PlatformFee     *prometheus.CounterVec
	RefundVolume    *prometheus.CounterVec
	OperationErrors *prometheus.CounterVec
	Commands        *prometheus.CounterVec
}

// NewCollectors cria e registra os contadores no registerer informado
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		BetsPlaced:      prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_bets_placed_total", Help: "apostas criadas"}, []string{"currency"}),
		BetsCancelled:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_bets_cancelled_total", Help: "apostas canceladas pelo usuário"}, []string{"currency"}),
		BetsEdited:      prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_bets_edited_total", Help: "apostas editadas (cancel+recreate)"}),
		LedgerEntries:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_ledger_entries_total", Help: "lançamentos aplicados no ledger"}, []string{"type", "currency"}),
		LedgerReplays:   prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_ledger_idempotent_replays_total", Help: "lançamentos ignorados por chave de idempotência já consumida"}),
		Settlements:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_settlements_total", Help: "liquidações por resultado"}, []string{"outcome"}),
		PayoutVolume:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_payout_volume_total", Help: "valor pago aos vencedores"}, []string{"currency"}),
		PlatformFee:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_platform_fee_total", Help: "taxa retida do pool perdedor"}, []string{"currency"}),
		RefundVolume:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_refund_volume_total", Help: "valor estornado"}, []string{"currency", "reason"}),
		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_operation_errors_total", Help: "erros por operação e tipo"}, []string{"op", "kind"}),
		Commands:        prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_round_commands_total", Help: "comandos de round consumidos por resultado"}, []string{"type", "result"}),
	}
	if reg != nil {
		reg.MustRegister(c.BetsPlaced, c.BetsCancelled, c.BetsEdited, c.LedgerEntries, c.LedgerReplays,
			c.Settlements, c.PayoutVolume, c.PlatformFee, c.RefundVolume, c.OperationErrors, c.Commands)
	}
	return c
}

func (c *Collectors) BetPlaced(currency string) {
	if c != nil {
		c.BetsPlaced.WithLabelValues(currency).Inc()
	}
}

func (c *Collectors) BetCancelled(currency string) {
	if c != nil {
		c.BetsCancelled.WithLabelValues(currency).Inc()
	}
}

func (c *Collectors) BetEdited() {
	if c != nil {
		c.BetsEdited.Inc()
	}
}

func (c *Collectors) LedgerEntry(typ, currency string) {
	if c != nil {
		c.LedgerEntries.WithLabelValues(typ, currency).Inc()
	}
}

func (c *Collectors) LedgerReplay() {
	if c != nil {
		c.LedgerReplays.Inc()
	}
}

func (c *Collectors) Settlement(outcome string) {
	if c != nil {
		c.Settlements.WithLabelValues(outcome).Inc()
	}
}

func (c *Collectors) Payout(currency string, amount int64) {
	if c != nil && amount > 0 {
		c.PayoutVolume.WithLabelValues(currency).Add(float64(amount))
	}
}

func (c *Collectors) Fee(currency string, amount int64) {
	if c != nil && amount > 0 {
		c.PlatformFee.WithLabelValues(currency).Add(float64(amount))
	}
}

func (c *Collectors) Refund(currency, reason string, amount int64) {
	if c != nil && amount > 0 {
		c.RefundVolume.WithLabelValues(currency, reason).Add(float64(amount))
	}
}

func (c *Collectors) OpError(op, kind string) {
	if c != nil {
		c.OperationErrors.WithLabelValues(op, kind).Inc()
	}
}

func (c *Collectors) Command(typ, result string) {
	if c != nil {
		c.Commands.WithLabelValues(typ, result).Inc()
	}
}
