package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/radieske/stream-wager-engine/internal/domain"
)

const transactionColumns = `id, user_id, type, currency, amount, balance_after, description,
	related_entity_id, related_entity_type, created_at`

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var tr domain.Transaction
	var relID, relType sql.NullString
	if err := s.Scan(&tr.ID, &tr.UserID, &tr.Type, &tr.Currency, &tr.Amount, &tr.BalanceAfter,
		&tr.Description, &relID, &relType, &tr.CreatedAt); err != nil {
		return nil, err
	}
	tr.RelatedEntityID = relID.String
	tr.RelatedEntityType = relType.String
	return &tr, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertTransaction grava um lançamento imutável do ledger
func (t *Tx) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	if _, err := t.exec(ctx, `
		INSERT INTO transactions(id, user_id, type, currency, amount, balance_after, description,
			related_entity_id, related_entity_type, created_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		tr.ID, tr.UserID, string(tr.Type), string(tr.Currency), tr.Amount, tr.BalanceAfter, tr.Description,
		nullable(tr.RelatedEntityID), nullable(tr.RelatedEntityType), tr.CreatedAt); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// FindByIdempotencyKey procura o lançamento já aplicado para a chave
// Retorna (nil, nil) quando não existe
func (t *Tx) FindByIdempotencyKey(ctx context.Context, key domain.IdempotencyKey, typ domain.TxType, c domain.Currency) (*domain.Transaction, error) {
	tr, err := scanTransaction(t.queryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE related_entity_id=? AND related_entity_type=? AND type=? AND currency=?`,
		key.EntityID, key.EntityType, string(typ), string(c)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction by key: %w", err)
	}
	return tr, nil
}

// ListTransactions retorna o histórico do usuário, mais recente primeiro
// currency vazio retorna todas as moedas
func (t *Tx) ListTransactions(ctx context.Context, userID string, c domain.Currency, limit int) ([]domain.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id=?`
	args := []any{userID}
	if c != "" {
		q += ` AND currency=?`
		args = append(args, string(c))
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := t.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

// SumTransactions soma os lançamentos por moeda (replay do ledger)
func (t *Tx) SumTransactions(ctx context.Context, userID string) (map[domain.Currency]int64, error) {
	rows, err := t.query(ctx,
		`SELECT currency, COALESCE(SUM(amount),0) FROM transactions WHERE user_id=? GROUP BY currency`, userID)
	if err != nil {
		return nil, fmt.Errorf("sum transactions: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Currency]int64)
	for rows.Next() {
		var c string
		var sum int64
		if err := rows.Scan(&c, &sum); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		out[domain.Currency(c)] = sum
	}
	return out, rows.Err()
}

// CountTransactions conta lançamentos de um tipo para o usuário
func (t *Tx) CountTransactions(ctx context.Context, userID string, typ domain.TxType) (int, error) {
	var n int
	if err := t.queryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id=? AND type=?`, userID, string(typ)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}
