package betting_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/radieske/stream-wager-engine/internal/betting/dto"
	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/testsupport"
	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

const hard = domain.CurrencyHard

func TestPlaceBetDebitsWalletAndAggregates(t *testing.T) {
	e := testsupport.NewEngine(t)
	e.OpenWallet(t, "alice", 1000)
	_, opts := e.NewRound(t, "X", "Y")

	out := e.Place(t, "alice", opts[0].ID, 200, hard)

	if out.Wallet.Balance(hard) != 800 {
		t.Errorf("Expected wallet 800, got %d", out.Wallet.Balance(hard))
	}
	if out.Option.Totals[hard] != 200 || out.Option.Counts[hard] != 1 {
		t.Errorf("Expected option total=200 count=1, got %d/%d", out.Option.Totals[hard], out.Option.Counts[hard])
	}
	if out.Bet.Status != domain.BetActive {
		t.Errorf("Expected active bet, got %s", out.Bet.Status)
	}

	history, err := e.Ledger.History(context.Background(), "alice", hard, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	var last domain.Transaction
	for _, tr := range history {
		if tr.Type == domain.TxBetPlacement {
			last = tr
		}
	}
	if last.Amount != -200 || last.BalanceAfter != 800 {
		t.Errorf("Expected bet_placement -200 -> 800, got %d -> %d", last.Amount, last.BalanceAfter)
	}
	if last.RelatedEntityID != out.Bet.ID || last.RelatedEntityType != domain.EntityBet {
		t.Errorf("Expected ledger entry keyed by bet id, got %s/%s", last.RelatedEntityID, last.RelatedEntityType)
	}
	if n := e.CountTx(t, "alice", domain.TxBetPlacement); n != 1 {
		t.Errorf("Expected 1 bet_placement, got %d", n)
	}

	ev, ok := e.Events.Last(events.TypeBetPlaced)
	if !ok {
		t.Fatal("Expected BetPlaced event")
	}
	p := ev.Payload.(events.BetPlaced)
	if p.Wallet.Balances["hard"] != 800 || p.Option.Totals["hard"] != 200 {
		t.Errorf("Unexpected event payload: %+v", p)
	}
	if got := testutil.ToFloat64(e.Metrics.BetsPlaced.WithLabelValues("hard")); got != 1 {
		t.Errorf("Expected 1 bet placed metric, got %v", got)
	}
	e.AssertAggregates(t, opts[0].ID)
}

func TestPlaceBetRejections(t *testing.T) {
	e := testsupport.NewEngine(t)
	ctx := context.Background()
	e.OpenWallet(t, "alice", 100)
	_, opts := e.NewRound(t, "X", "Y")
	e.Lock(t, opts[1].ID)

	cases := []struct {
		name string
		req  dto.PlaceBetRequest
		want error
	}{
		{"zero amount", dto.PlaceBetRequest{UserID: "alice", OptionID: opts[0].ID, Amount: 0, Currency: "hard"}, domain.ErrInvalidInput},
		{"unknown currency", dto.PlaceBetRequest{UserID: "alice", OptionID: opts[0].ID, Amount: 10, Currency: "gold"}, domain.ErrInvalidInput},
		{"missing option", dto.PlaceBetRequest{UserID: "alice", OptionID: "nope", Amount: 10, Currency: "hard"}, domain.ErrNotFound},
		{"missing wallet", dto.PlaceBetRequest{UserID: "ghost", OptionID: opts[0].ID, Amount: 10, Currency: "hard"}, domain.ErrNotFound},
		{"locked option", dto.PlaceBetRequest{UserID: "alice", OptionID: opts[1].ID, Amount: 10, Currency: "hard"}, domain.ErrInvalidState},
		{"overdraft", dto.PlaceBetRequest{UserID: "alice", OptionID: opts[0].ID, Amount: 101, Currency: "hard"}, domain.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Betting.PlaceBet(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}

	if got := e.Balance(t, "alice", hard); got != 100 {
		t.Errorf("Expected untouched balance 100, got %d", got)
	}
	if n := e.CountTx(t, "alice", domain.TxBetPlacement); n != 0 {
		t.Errorf("Expected no bet_placement entries, got %d", n)
	}
	e.AssertAggregates(t, opts[0].ID)
}

func TestDuplicateActiveBetInRoundIsConflict(t *testing.T) {
	e := testsupport.NewEngine(t)
	ctx := context.Background()
	e.OpenWallet(t, "alice", 1000, 1000)
	_, opts := e.NewRound(t, "X", "Y")
	e.Place(t, "alice", opts[0].ID, 100, hard)

	_, err := e.Betting.PlaceBet(ctx, dto.PlaceBetRequest{UserID: "alice", OptionID: opts[1].ID, Amount: 100, Currency: "hard"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected conflict for second hard bet in round, got %v", err)
	}
	// outro canal de moeda é outro escopo
	e.Place(t, "alice", opts[1].ID, 100, domain.CurrencySoft)

	if got := e.Balance(t, "alice", hard); got != 900 {
		t.Errorf("Expected 900, got %d", got)
	}
}

func TestPlaceThenCancelRestoresState(t *testing.T) {
	e := testsupport.NewEngine(t)
	ctx := context.Background()
	e.OpenWallet(t, "alice", 1000)
	e.OpenWallet(t, "bob", 1000)
	_, opts := e.NewRound(t, "X")
	e.Place(t, "bob", opts[0].ID, 300, hard)
	before := e.Option(t, opts[0].ID)

	placed := e.Place(t, "alice", opts[0].ID, 250, hard)
	out, err := e.Betting.CancelBet(ctx, dto.CancelBetRequest{UserID: "alice", BetID: placed.Bet.ID, Currency: "hard"})
	if err != nil {
		t.Fatalf("CancelBet failed: %v", err)
	}

	if out.Bet.Status != domain.BetCancelled {
		t.Errorf("Expected cancelled, got %s", out.Bet.Status)
	}
	if out.Wallet.Balance(hard) != 1000 {
		t.Errorf("Expected wallet restored to 1000, got %d", out.Wallet.Balance(hard))
	}
	if out.Option.Totals[hard] != before.Totals[hard] || out.Option.Counts[hard] != before.Counts[hard] {
		t.Errorf("Expected aggregates %d/%d, got %d/%d",
			before.Totals[hard], before.Counts[hard], out.Option.Totals[hard], out.Option.Counts[hard])
	}
	if n := e.CountTx(t, "alice", domain.TxRefund); n != 1 {
		t.Errorf("Expected 1 refund, got %d", n)
	}

	// repetir o cancelamento é no-op
	again, err := e.Betting.CancelBet(ctx, dto.CancelBetRequest{UserID: "alice", BetID: placed.Bet.ID})
	if err != nil {
		t.Fatalf("Repeated cancel failed: %v", err)
	}
	if again.Wallet.Balance(hard) != 1000 {
		t.Errorf("Expected 1000 after repeated cancel, got %d", again.Wallet.Balance(hard))
	}
	if n := e.CountTx(t, "alice", domain.TxRefund); n != 1 {
		t.Errorf("Expected still 1 refund, got %d", n)
	}
	e.AssertAggregates(t, opts[0].ID)
	e.AssertReplay(t, "alice", "bob")
}

func TestCancelOnLockedChannelIsRejected(t *testing.T) {
	e := testsupport.NewEngine(t)
	ctx := context.Background()
	e.OpenWallet(t, "alice", 1000)
	r, opts := e.NewRound(t, "X")
	placed := e.Place(t, "alice", opts[0].ID, 200, hard)

	if _, err := e.Rounds.LockChannel(ctx, r.ID, hard); err != nil {
		t.Fatalf("LockChannel failed: %v", err)
	}
	_, err := e.Betting.CancelBet(ctx, dto.CancelBetRequest{UserID: "alice", BetID: placed.Bet.ID, Currency: "hard"})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("Expected invalid state, got %v", err)
	}

	if got := e.Balance(t, "alice", hard); got != 800 {
		t.Errorf("Expected wallet unchanged at 800, got %d", got)
	}
	o := e.Option(t, opts[0].ID)
	if o.Totals[hard] != 200 || o.Counts[hard] != 1 {
		t.Errorf("Expected aggregates unchanged 200/1, got %d/%d", o.Totals[hard], o.Counts[hard])
	}
}

func TestCancelBetOwnershipAndState(t *testing.T) {
	e := testsupport.NewEngine(t)
	ctx := context.Background()
	e.OpenWallet(t, "alice", 1000)
	_, opts := e.NewRound(t, "X")
	placed := e.Place(t, "alice", opts[0].ID, 200, hard)

	if _, err := e.Betting.CancelBet(ctx, dto.CancelBetRequest{UserID: "mallory", BetID: placed.Bet.ID}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Expected forbidden, got %v", err)
	}
	if _, err := e.Betting.CancelBet(ctx, dto.CancelBetRequest{UserID: "alice", BetID: placed.Bet.ID, Currency: "soft"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected invalid input for currency mismatch, got %v", err)
	}
	if _, err := e.Betting.CancelBet(ctx, dto.CancelBetRequest{UserID: "alice", BetID: "nope"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}

	e.Lock(t, opts[0].ID)
	if _, err := e.Settlement.DeclareWinner(ctx, opts[0].ID); err != nil {
		t.Fatalf("DeclareWinner failed: %v", err)
	}
	if _, err := e.Betting.CancelBet(ctx, dto.CancelBetRequest{UserID: "alice", BetID: placed.Bet.ID}); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("Expected invalid state cancelling a won bet, got %v", err)
	}
}

func TestEditBetMovesStake(t *testing.T) {
	e := testsupport.NewEngine(t)
	ctx := context.Background()
	e.OpenWallet(t, "alice", 1000)
	_, opts := e.NewRound(t, "X", "Y")
	placed := e.Place(t, "alice", opts[0].ID, 200, hard)

	out, err := e.Betting.EditBet(ctx, dto.EditBetRequest{
		UserID: "alice", BetID: placed.Bet.ID, NewOptionID: opts[1].ID, NewAmount: 500, NewCurrency: "hard",
	})
	if err != nil {
		t.Fatalf("EditBet failed: %v", err)
	}

	if out.Previous.Status != domain.BetCancelled {
		t.Errorf("Expected previous bet cancelled, got %s", out.Previous.Status)
	}
	if out.Bet.ID == placed.Bet.ID || out.Bet.OptionID != opts[1].ID || out.Bet.Amount != 500 {
		t.Errorf("Unexpected replacement bet %+v", out.Bet)
	}
	if out.Wallet.Balance(hard) != 500 {
		t.Errorf("Expected wallet 500, got %d", out.Wallet.Balance(hard))
	}
	if out.PreviousOption.Totals[hard] != 0 || out.Option.Totals[hard] != 500 {
		t.Errorf("Expected aggregates 0 and 500, got %d and %d", out.PreviousOption.Totals[hard], out.Option.Totals[hard])
	}
	if _, ok := e.Events.Last(events.TypeBetEdited); !ok {
		t.Error("Expected BetEdited event")
	}
	e.AssertAggregates(t, opts[0].ID)
	e.AssertAggregates(t, opts[1].ID)
	e.AssertReplay(t, "alice")
}

func TestEditBetRollsBackCancelOnFailedPlacement(t *testing.T) {
	e := testsupport.NewEngine(t)
	ctx := context.Background()
	e.OpenWallet(t, "alice", 1000)
	_, opts := e.NewRound(t, "X", "Y")
	placed := e.Place(t, "alice", opts[0].ID, 200, hard)

	_, err := e.Betting.EditBet(ctx, dto.EditBetRequest{
		UserID: "alice", BetID: placed.Bet.ID, NewOptionID: opts[1].ID, NewAmount: 5000, NewCurrency: "hard",
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Expected insufficient funds, got %v", err)
	}

	b, err := e.Betting.GetBet(ctx, placed.Bet.ID)
	if err != nil {
		t.Fatalf("GetBet failed: %v", err)
	}
	if b.Status != domain.BetActive {
		t.Errorf("Expected original bet still active, got %s", b.Status)
	}
	if got := e.Balance(t, "alice", hard); got != 800 {
		t.Errorf("Expected 800, got %d", got)
	}
	if n := e.CountTx(t, "alice", domain.TxRefund); n != 0 {
		t.Errorf("Expected no refund entry, got %d", n)
	}
	e.AssertAggregates(t, opts[0].ID)
	e.AssertAggregates(t, opts[1].ID)
	if _, ok := e.Events.Last(events.TypeBetEdited); ok {
		t.Error("Expected no BetEdited event after rollback")
	}
}

func TestEditBetMovesStakeAcrossRounds(t *testing.T) {
	e := testsupport.NewEngine(t)
	ctx := context.Background()
	e.OpenWallet(t, "alice", 1000)
	_, first := e.NewRound(t, "X")
	second, other := e.NewRound(t, "Z")
	placed := e.Place(t, "alice", first[0].ID, 200, hard)

	out, err := e.Betting.EditBet(ctx, dto.EditBetRequest{
		UserID: "alice", BetID: placed.Bet.ID, NewOptionID: other[0].ID, NewAmount: 300, NewCurrency: "hard",
	})
	if err != nil {
		t.Fatalf("EditBet failed: %v", err)
	}
	if out.Bet.RoundID != second.ID {
		t.Errorf("Expected replacement in round %s, got %s", second.ID, out.Bet.RoundID)
	}
	if got := e.Balance(t, "alice", hard); got != 700 {
		t.Errorf("Expected 700, got %d", got)
	}
	e.AssertAggregates(t, first[0].ID)
	e.AssertAggregates(t, other[0].ID)
	e.AssertReplay(t, "alice")
}

func TestListUserBets(t *testing.T) {
	e := testsupport.NewEngine(t)
	ctx := context.Background()
	e.OpenWallet(t, "alice", 1000)
	r, opts := e.NewRound(t, "X")
	_, other := e.NewRound(t, "Z")
	e.Place(t, "alice", opts[0].ID, 100, hard)
	e.Place(t, "alice", other[0].ID, 100, hard)

	all, err := e.Betting.ListUserBets(ctx, "alice", "")
	if err != nil {
		t.Fatalf("ListUserBets failed: %v", err)
	}
	inRound, err := e.Betting.ListUserBets(ctx, "alice", r.ID)
	if err != nil {
		t.Fatalf("ListUserBets failed: %v", err)
	}
	if len(all) != 2 || len(inRound) != 1 {
		t.Errorf("Expected 2 bets total and 1 in round, got %d and %d", len(all), len(inRound))
	}
}

func TestConcurrentPlacementsNeverOverdraw(t *testing.T) {
	e := testsupport.NewEngine(t)
	ctx := context.Background()
	e.OpenWallet(t, "alice", 1000)

	// uma rodada por aposta: o limite vem do saldo, não do escopo de aposta ativa
	var optionIDs []string
	for i := 0; i < 10; i++ {
		_, opts := e.NewRound(t, "X")
		optionIDs = append(optionIDs, opts[0].ID)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, insufficient := 0, 0
	for _, id := range optionIDs {
		wg.Add(1)
		go func(optionID string) {
			defer wg.Done()
			_, err := e.Betting.PlaceBet(ctx, dto.PlaceBetRequest{UserID: "alice", OptionID: optionID, Amount: 300, Currency: "hard"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if ok != 3 || insufficient != 7 {
		t.Errorf("Expected 3 placements and 7 rejections, got %d and %d", ok, insufficient)
	}
	if got := e.Balance(t, "alice", hard); got != 100 {
		t.Errorf("Expected 100 left, got %d", got)
	}
	e.AssertReplay(t, "alice")
}
