package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/internal/testsupport"
)

func TestSortedUnique(t *testing.T) {
	got := repo.SortedUnique([]string{"u3", "u1", "u3", "u2", "u1"})
	want := []string{"u1", "u2", "u3"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}
}

func TestParseDialect(t *testing.T) {
	if d, err := repo.ParseDialect("sqlite"); err != nil || d != repo.SQLite {
		t.Errorf("Expected sqlite dialect, got %v (%v)", d, err)
	}
	if d, err := repo.ParseDialect("postgres"); err != nil || d != repo.Postgres {
		t.Errorf("Expected postgres dialect, got %v (%v)", d, err)
	}
	if _, err := repo.ParseDialect("mysql"); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	store := testsupport.NewStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx *repo.Tx) error {
		if err := tx.InsertWallet(ctx, "u1", now); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	err = store.WithinTx(ctx, func(tx *repo.Tx) error {
		_, err := tx.GetWallet(ctx, "u1")
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected wallet to be rolled back, got %v", err)
	}
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	store := testsupport.NewStore(t)
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = store.WithinTx(ctx, func(tx *repo.Tx) error {
			_ = tx.InsertWallet(ctx, "u1", time.Now().UTC())
			panic("unexpected")
		})
	}()

	err := store.WithinTx(ctx, func(tx *repo.Tx) error {
		_, err := tx.GetWallet(ctx, "u1")
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected wallet to be rolled back after panic, got %v", err)
	}
}

func TestWalletBalanceCannotGoNegative(t *testing.T) {
	store := testsupport.NewStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.WithinTx(ctx, func(tx *repo.Tx) error {
		if err := tx.InsertWallet(ctx, "u1", now); err != nil {
			return err
		}
		return tx.UpdateWalletBalance(ctx, "u1", domain.CurrencyHard, -1, now)
	})
	if err == nil {
		t.Fatal("Expected CHECK constraint to reject a negative balance")
	}
}

func TestIdempotencyIndexRejectsDuplicateEffect(t *testing.T) {
	store := testsupport.NewStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tr := func(id string) *domain.Transaction {
		return &domain.Transaction{
			ID: id, UserID: "u1", Type: domain.TxRefund, Currency: domain.CurrencyHard,
			Amount: 10, BalanceAfter: 10, RelatedEntityID: "bet-1", RelatedEntityType: domain.EntityBet,
			CreatedAt: now,
		}
	}

	err := store.WithinTx(ctx, func(tx *repo.Tx) error {
		if err := tx.InsertWallet(ctx, "u1", now); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, tr("t1"))
	})
	if err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err = store.WithinTx(ctx, func(tx *repo.Tx) error {
		return tx.InsertTransaction(ctx, tr("t2"))
	})
	if err == nil {
		t.Fatal("Expected unique index to reject second effect with same key")
	}

	err = store.WithinTx(ctx, func(tx *repo.Tx) error {
		found, err := tx.FindByIdempotencyKey(ctx, *domain.BetKey("bet-1"), domain.TxRefund, domain.CurrencyHard)
		if err != nil {
			return err
		}
		if found == nil || found.ID != "t1" {
			t.Errorf("Expected to find t1, got %+v", found)
		}
		other, err := tx.FindByIdempotencyKey(ctx, *domain.BetKey("bet-1"), domain.TxBetWon, domain.CurrencyHard)
		if err != nil {
			return err
		}
		if other != nil {
			t.Errorf("Expected no bet_won entry, got %+v", other)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
}

func TestUnsupportedCurrencyColumn(t *testing.T) {
	store := testsupport.NewStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx *repo.Tx) error {
		return tx.UpdateWalletBalance(ctx, "u1", domain.Currency("doge; DROP TABLE wallets"), 1, time.Now().UTC())
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected invalid input, got %v", err)
	}
}
