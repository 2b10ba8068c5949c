package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/radieske/stream-wager-engine/internal/domain"
)

const betColumns = `id, user_id, option_id, round_id, stream_id, amount, currency, status,
	payout_amount, is_processed, processed_at, created_at, updated_at`

func scanBet(s scanner) (*domain.Bet, error) {
	var b domain.Bet
	var processedAt sql.NullTime
	if err := s.Scan(&b.ID, &b.UserID, &b.OptionID, &b.RoundID, &b.StreamID, &b.Amount, &b.Currency,
		&b.Status, &b.PayoutAmount, &b.IsProcessed, &processedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		ts := processedAt.Time
		b.ProcessedAt = &ts
	}
	return &b, nil
}

func scanBets(rows *sql.Rows) ([]domain.Bet, error) {
	defer rows.Close()
	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (t *Tx) InsertBet(ctx context.Context, b *domain.Bet) error {
	if _, err := t.exec(ctx, `
		INSERT INTO bets(id, user_id, option_id, round_id, stream_id, amount, currency, status,
			payout_amount, is_processed, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.UserID, b.OptionID, b.RoundID, b.StreamID, b.Amount, string(b.Currency), string(b.Status),
		b.PayoutAmount, b.IsProcessed, b.CreatedAt, b.UpdatedAt); err != nil {
		return fmt.Errorf("insert bet: %w", err)
	}
	return nil
}

func (t *Tx) getBet(ctx context.Context, id string, lock bool) (*domain.Bet, error) {
	q := `SELECT ` + betColumns + ` FROM bets WHERE id=?`
	if lock {
		q += t.d.forUpdate()
	}
	b, err := scanBet(t.queryRow(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: bet %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bet: %w", err)
	}
	return b, nil
}

func (t *Tx) GetBet(ctx context.Context, id string) (*domain.Bet, error) {
	return t.getBet(ctx, id, false)
}

func (t *Tx) LockBet(ctx context.Context, id string) (*domain.Bet, error) {
	return t.getBet(ctx, id, true)
}

// FindActiveBet retorna a aposta ativa do usuário no escopo (round, moeda), ou nil
func (t *Tx) FindActiveBet(ctx context.Context, userID, roundID string, c domain.Currency) (*domain.Bet, error) {
	b, err := scanBet(t.queryRow(ctx,
		`SELECT `+betColumns+` FROM bets WHERE user_id=? AND round_id=? AND currency=? AND status=?`,
		userID, roundID, string(c), string(domain.BetActive)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active bet: %w", err)
	}
	return b, nil
}

// ListActiveBetsByRound carrega as apostas ativas do grupo de liquidação
func (t *Tx) ListActiveBetsByRound(ctx context.Context, roundID string) ([]domain.Bet, error) {
	rows, err := t.query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE round_id=? AND status=? ORDER BY created_at, id`+t.d.forUpdate(),
		roundID, string(domain.BetActive))
	if err != nil {
		return nil, fmt.Errorf("list active bets: %w", err)
	}
	return scanBets(rows)
}

func (t *Tx) ListBetsByOption(ctx context.Context, optionID string) ([]domain.Bet, error) {
	rows, err := t.query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE option_id=? ORDER BY created_at, id`, optionID)
	if err != nil {
		return nil, fmt.Errorf("list option bets: %w", err)
	}
	return scanBets(rows)
}

// ListUserBets lista as apostas do usuário; roundID vazio lista todas
func (t *Tx) ListUserBets(ctx context.Context, userID, roundID string) ([]domain.Bet, error) {
	q := `SELECT ` + betColumns + ` FROM bets WHERE user_id=?`
	args := []any{userID}
	if roundID != "" {
		q += ` AND round_id=?`
		args = append(args, roundID)
	}
	rows, err := t.query(ctx, q+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list user bets: %w", err)
	}
	return scanBets(rows)
}

// UpdateBetOutcome grava status, payout e marcação de processamento
func (t *Tx) UpdateBetOutcome(ctx context.Context, b *domain.Bet) error {
	var processedAt sql.NullTime
	if b.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *b.ProcessedAt, Valid: true}
	}
	res, err := t.exec(ctx, `
		UPDATE bets SET status=?, payout_amount=?, is_processed=?, processed_at=?, updated_at=?
		WHERE id=?`,
		string(b.Status), b.PayoutAmount, b.IsProcessed, processedAt, b.UpdatedAt, b.ID)
	if err != nil {
		return fmt.Errorf("update bet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: bet %s", domain.ErrNotFound, b.ID)
	}
	return nil
}
