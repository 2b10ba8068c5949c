package repo

import (
	"context"
	"fmt"
	"strings"
)

// schemaStatements gera o DDL do dialeto; só o tipo de timestamp varia entre os bancos
func schemaStatements(d Dialect) []string {
	ts := "TIMESTAMPTZ"
	if d == SQLite {
		ts = "DATETIME"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id      TEXT PRIMARY KEY,
			balance_hard BIGINT NOT NULL DEFAULT 0 CHECK (balance_hard >= 0),
			balance_soft BIGINT NOT NULL DEFAULT 0 CHECK (balance_soft >= 0),
			version      BIGINT NOT NULL DEFAULT 1,
			created_at   {ts} NOT NULL,
			updated_at   {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL REFERENCES wallets(user_id),
			type                TEXT NOT NULL,
			currency            TEXT NOT NULL,
			amount              BIGINT NOT NULL,
			balance_after       BIGINT NOT NULL,
			description         TEXT NOT NULL DEFAULT '',
			related_entity_id   TEXT,
			related_entity_type TEXT,
			created_at          {ts} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, currency, created_at)`,
		// chave de idempotência: um efeito por (entidade, tipo, moeda)
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_idempotency
			ON transactions(related_entity_id, related_entity_type, type, currency)
			WHERE related_entity_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS streams (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			id           TEXT PRIMARY KEY,
			stream_id    TEXT NOT NULL REFERENCES streams(id),
			name         TEXT NOT NULL,
			channel_hard TEXT NOT NULL DEFAULT 'active',
			channel_soft TEXT NOT NULL DEFAULT 'active',
			created_at   {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS options (
			id         TEXT PRIMARY KEY,
			round_id   TEXT NOT NULL REFERENCES rounds(id),
			stream_id  TEXT NOT NULL REFERENCES streams(id),
			name       TEXT NOT NULL,
			status     TEXT NOT NULL,
			total_hard BIGINT NOT NULL DEFAULT 0,
			total_soft BIGINT NOT NULL DEFAULT 0,
			count_hard BIGINT NOT NULL DEFAULT 0,
			count_soft BIGINT NOT NULL DEFAULT 0,
			created_at {ts} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_options_round ON options(round_id)`,
		`CREATE TABLE IF NOT EXISTS bets (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL REFERENCES wallets(user_id),
			option_id     TEXT NOT NULL REFERENCES options(id),
			round_id      TEXT NOT NULL REFERENCES rounds(id),
			stream_id     TEXT NOT NULL REFERENCES streams(id),
			amount        BIGINT NOT NULL CHECK (amount > 0),
			currency      TEXT NOT NULL,
			status        TEXT NOT NULL,
			payout_amount BIGINT NOT NULL DEFAULT 0,
			is_processed  BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at  {ts},
			created_at    {ts} NOT NULL,
			updated_at    {ts} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_round_status ON bets(round_id, status)`,
		// uma aposta ativa por (usuário, round, moeda)
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_bets_active_scope
			ON bets(user_id, round_id, currency)
			WHERE status = 'active'`,
	}
	r := strings.NewReplacer("{ts}", ts)
	for i, s := range stmts {
		stmts[i] = r.Replace(s)
	}
	return stmts
}

// Migrate cria as tabelas e índices se ainda não existirem
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
