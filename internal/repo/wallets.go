package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/radieske/stream-wager-engine/internal/domain"
)

const walletColumns = `user_id, balance_hard, balance_soft, version, created_at, updated_at`

func scanWallet(s scanner) (*domain.Wallet, error) {
	var w domain.Wallet
	var hard, soft int64
	if err := s.Scan(&w.UserID, &hard, &soft, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Balances = map[domain.Currency]int64{
		domain.CurrencyHard: hard,
		domain.CurrencySoft: soft,
	}
	return &w, nil
}

// InsertWallet cria a carteira com saldos zerados
// Saldos iniciais entram pelo ledger (initial_credit) para manter o replay consistente
func (t *Tx) InsertWallet(ctx context.Context, userID string, now time.Time) error {
	if _, err := t.exec(ctx,
		`INSERT INTO wallets(user_id, balance_hard, balance_soft, version, created_at, updated_at) VALUES(?,0,0,1,?,?)`,
		userID, now, now); err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetWallet lê a carteira sem lock
func (t *Tx) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	w, err := scanWallet(t.queryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id=?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: wallet %s", domain.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// LockWallet lê a carteira com lock pessimista (SELECT ... FOR UPDATE)
// Serializa toda movimentação de saldo do usuário até o fim da transação
func (t *Tx) LockWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	w, err := scanWallet(t.queryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id=?`+t.d.forUpdate(), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: wallet %s", domain.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return w, nil
}

// LockWallets trava várias carteiras em ordem crescente de user_id
// A ordem determinística evita deadlock entre liquidações concorrentes
func (t *Tx) LockWallets(ctx context.Context, userIDs []string) (map[string]*domain.Wallet, error) {
	ids := SortedUnique(userIDs)
	out := make(map[string]*domain.Wallet, len(ids))
	for _, id := range ids {
		w, err := t.LockWallet(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

// UpdateWalletBalance grava o novo saldo de uma moeda e incrementa a versão
func (t *Tx) UpdateWalletBalance(ctx context.Context, userID string, c domain.Currency, balance int64, now time.Time) error {
	col, err := currencyColumn("balance", c)
	if err != nil {
		return err
	}
	res, err := t.exec(ctx,
		`UPDATE wallets SET `+col+`=?, version=version+1, updated_at=? WHERE user_id=?`,
		balance, now, userID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: wallet %s", domain.ErrNotFound, userID)
	}
	return nil
}

// SortedUnique ordena e remove duplicados (ordem global de aquisição de locks)
func SortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
