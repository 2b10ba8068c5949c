package testsupport

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/betting"
	"github.com/radieske/stream-wager-engine/internal/betting/dto"
	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/ledger"
	"github.com/radieske/stream-wager-engine/internal/notify"
	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/internal/rounds"
	"github.com/radieske/stream-wager-engine/internal/settlement"
	"github.com/radieske/stream-wager-engine/internal/shared/metrics"
)

// Engine liga todos os serviços sobre um SQLite em memória
type Engine struct {
	Store      *repo.Store
	Ledger     *ledger.Service
	Rounds     *rounds.Service
	Betting    *betting.Service
	Settlement *settlement.Service
	Events     *Recorder
	Metrics    *metrics.Collectors
	Registry   *prometheus.Registry
}

func NewEngine(t testing.TB) *Engine {
	t.Helper()
	return NewEngineOn(t, NewStore(t))
}

// NewEngineOn liga os serviços sobre um store já migrado (ex: NewPostgresStore)
func NewEngineOn(t testing.TB, store *repo.Store) *Engine {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewCollectors(reg)
	rec := &Recorder{}
	log := zap.NewNop()
	emitter := notify.NewEmitter(rec, log)

	l := ledger.New(store, log, ledger.WithMetrics(m))
	return &Engine{
		Store:      store,
		Ledger:     l,
		Rounds:     rounds.New(store, l, emitter, log, m),
		Betting:    betting.New(store, l, emitter, log, m),
		Settlement: settlement.New(store, l, emitter, log, m, settlement.DefaultVig),
		Events:     rec,
		Metrics:    m,
		Registry:   reg,
	}
}

// OpenWallet cria a carteira com saldo hard (e soft opcional)
func (e *Engine) OpenWallet(t testing.TB, userID string, hard int64, soft ...int64) {
	t.Helper()
	grants := map[domain.Currency]int64{domain.CurrencyHard: hard}
	if len(soft) > 0 {
		grants[domain.CurrencySoft] = soft[0]
	}
	if _, err := e.Ledger.OpenWallet(context.Background(), userID, grants); err != nil {
		t.Fatalf("Failed to open wallet %s: %v", userID, err)
	}
}

// NewRound cria stream, round e as opções nomeadas
func (e *Engine) NewRound(t testing.TB, options ...string) (*domain.Round, []*domain.Option) {
	t.Helper()
	ctx := context.Background()
	st, err := e.Rounds.CreateStream(ctx, "live")
	if err != nil {
		t.Fatalf("Failed to create stream: %v", err)
	}
	r, err := e.Rounds.CreateRound(ctx, st.ID, "round 1")
	if err != nil {
		t.Fatalf("Failed to create round: %v", err)
	}
	out := make([]*domain.Option, 0, len(options))
	for _, name := range options {
		o, err := e.Rounds.CreateOption(ctx, r.ID, name)
		if err != nil {
			t.Fatalf("Failed to create option %s: %v", name, err)
		}
		out = append(out, o)
	}
	return r, out
}

// Place aposta e falha o teste em caso de erro
func (e *Engine) Place(t testing.TB, userID, optionID string, amount int64, c domain.Currency) *betting.Outcome {
	t.Helper()
	out, err := e.Betting.PlaceBet(context.Background(), dto.PlaceBetRequest{
		UserID: userID, OptionID: optionID, Amount: amount, Currency: string(c),
	})
	if err != nil {
		t.Fatalf("PlaceBet(%s, %d %s) failed: %v", userID, amount, c, err)
	}
	return out
}

func (e *Engine) Lock(t testing.TB, optionIDs ...string) {
	t.Helper()
	for _, id := range optionIDs {
		if _, err := e.Rounds.LockOption(context.Background(), id); err != nil {
			t.Fatalf("LockOption(%s) failed: %v", id, err)
		}
	}
}

func (e *Engine) Balance(t testing.TB, userID string, c domain.Currency) int64 {
	t.Helper()
	w, err := e.Ledger.Wallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to read wallet %s: %v", userID, err)
	}
	return w.Balance(c)
}

func (e *Engine) Option(t testing.TB, optionID string) *domain.Option {
	t.Helper()
	o, err := e.Rounds.GetOption(context.Background(), optionID)
	if err != nil {
		t.Fatalf("Failed to read option %s: %v", optionID, err)
	}
	return o
}

func (e *Engine) CountTx(t testing.TB, userID string, typ domain.TxType) int {
	t.Helper()
	var n int
	err := e.Store.WithinTx(context.Background(), func(tx *repo.Tx) error {
		var err error
		n, err = tx.CountTransactions(context.Background(), userID, typ)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to count transactions: %v", err)
	}
	return n
}

// AssertReplay confere saldo == soma dos lançamentos para cada usuário
func (e *Engine) AssertReplay(t testing.TB, userIDs ...string) {
	t.Helper()
	for _, id := range userIDs {
		rec, err := e.Ledger.Reconcile(context.Background(), id)
		if err != nil {
			t.Fatalf("Reconcile(%s) failed: %v", id, err)
		}
		if !rec.Consistent {
			t.Errorf("Ledger replay mismatch for %s: balances=%v replayed=%v", id, rec.Balances, rec.Replayed)
		}
	}
}

// AssertAggregates confere totais/contagens da opção contra as apostas que a compõem
func (e *Engine) AssertAggregates(t testing.TB, optionID string) {
	t.Helper()
	o := e.Option(t, optionID)
	var bets []domain.Bet
	err := e.Store.WithinTx(context.Background(), func(tx *repo.Tx) error {
		var err error
		bets, err = tx.ListBetsByOption(context.Background(), optionID)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to list bets: %v", err)
	}
	totals := map[domain.Currency]int64{}
	counts := map[domain.Currency]int64{}
	for _, b := range bets {
		if b.Status.CountsInAggregate() {
			totals[b.Currency] += b.Amount
			counts[b.Currency]++
		}
	}
	for _, c := range domain.Currencies {
		if o.Totals[c] != totals[c] || o.Counts[c] != counts[c] {
			t.Errorf("Option %s aggregates for %s = %d/%d, bets sum to %d/%d",
				optionID, c, o.Totals[c], o.Counts[c], totals[c], counts[c])
		}
	}
}
