package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/radieske/stream-wager-engine/internal/domain"
)

// Streams

func (t *Tx) InsertStream(ctx context.Context, s *domain.Stream) error {
	if _, err := t.exec(ctx, `INSERT INTO streams(id, name, created_at) VALUES(?,?,?)`,
		s.ID, s.Name, s.CreatedAt); err != nil {
		return fmt.Errorf("insert stream: %w", err)
	}
	return nil
}

func (t *Tx) GetStream(ctx context.Context, id string) (*domain.Stream, error) {
	var s domain.Stream
	err := t.queryRow(ctx, `SELECT id, name, created_at FROM streams WHERE id=?`, id).
		Scan(&s.ID, &s.Name, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: stream %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}
	return &s, nil
}

// Rounds

const roundColumns = `id, stream_id, name, channel_hard, channel_soft, created_at`

func scanRound(s scanner) (*domain.Round, error) {
	var r domain.Round
	var hard, soft string
	if err := s.Scan(&r.ID, &r.StreamID, &r.Name, &hard, &soft, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Channels = map[domain.Currency]domain.ChannelStatus{
		domain.CurrencyHard: domain.ChannelStatus(hard),
		domain.CurrencySoft: domain.ChannelStatus(soft),
	}
	return &r, nil
}

func (t *Tx) InsertRound(ctx context.Context, r *domain.Round) error {
	if _, err := t.exec(ctx, `
		INSERT INTO rounds(id, stream_id, name, channel_hard, channel_soft, created_at)
		VALUES(?,?,?,?,?,?)`,
		r.ID, r.StreamID, r.Name,
		string(r.Channels[domain.CurrencyHard]), string(r.Channels[domain.CurrencySoft]),
		r.CreatedAt); err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

func (t *Tx) getRound(ctx context.Context, id string, lock bool) (*domain.Round, error) {
	q := `SELECT ` + roundColumns + ` FROM rounds WHERE id=?`
	if lock {
		q += t.d.forUpdate()
	}
	r, err := scanRound(t.queryRow(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: round %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get round: %w", err)
	}
	return r, nil
}

func (t *Tx) GetRound(ctx context.Context, id string) (*domain.Round, error) {
	return t.getRound(ctx, id, false)
}

// LockRound trava a linha do round (transições de canal)
func (t *Tx) LockRound(ctx context.Context, id string) (*domain.Round, error) {
	return t.getRound(ctx, id, true)
}

func (t *Tx) UpdateRoundChannel(ctx context.Context, roundID string, c domain.Currency, st domain.ChannelStatus) error {
	col, err := currencyColumn("channel", c)
	if err != nil {
		return err
	}
	if _, err := t.exec(ctx, `UPDATE rounds SET `+col+`=? WHERE id=?`, string(st), roundID); err != nil {
		return fmt.Errorf("update round channel: %w", err)
	}
	return nil
}

// Options

const optionColumns = `id, round_id, stream_id, name, status, total_hard, total_soft, count_hard, count_soft, created_at`

func scanOption(s scanner) (*domain.Option, error) {
	var o domain.Option
	var totalHard, totalSoft, countHard, countSoft int64
	if err := s.Scan(&o.ID, &o.RoundID, &o.StreamID, &o.Name, &o.Status,
		&totalHard, &totalSoft, &countHard, &countSoft, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Totals = map[domain.Currency]int64{domain.CurrencyHard: totalHard, domain.CurrencySoft: totalSoft}
	o.Counts = map[domain.Currency]int64{domain.CurrencyHard: countHard, domain.CurrencySoft: countSoft}
	return &o, nil
}

func (t *Tx) InsertOption(ctx context.Context, o *domain.Option) error {
	if _, err := t.exec(ctx, `
		INSERT INTO options(id, round_id, stream_id, name, status, created_at)
		VALUES(?,?,?,?,?,?)`,
		o.ID, o.RoundID, o.StreamID, o.Name, string(o.Status), o.CreatedAt); err != nil {
		return fmt.Errorf("insert option: %w", err)
	}
	return nil
}

func (t *Tx) getOption(ctx context.Context, id string, lock bool) (*domain.Option, error) {
	q := `SELECT ` + optionColumns + ` FROM options WHERE id=?`
	if lock {
		q += t.d.forUpdate()
	}
	o, err := scanOption(t.queryRow(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: option %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get option: %w", err)
	}
	return o, nil
}

func (t *Tx) GetOption(ctx context.Context, id string) (*domain.Option, error) {
	return t.getOption(ctx, id, false)
}

// LockOption trava a linha da opção (status e agregados)
// Ordem global: opções antes de carteiras
func (t *Tx) LockOption(ctx context.Context, id string) (*domain.Option, error) {
	return t.getOption(ctx, id, true)
}

func (t *Tx) listOptions(ctx context.Context, roundID string, lock bool) ([]domain.Option, error) {
	q := `SELECT ` + optionColumns + ` FROM options WHERE round_id=? ORDER BY id`
	if lock {
		q += t.d.forUpdate()
	}
	rows, err := t.query(ctx, q, roundID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	var out []domain.Option
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (t *Tx) ListOptions(ctx context.Context, roundID string) ([]domain.Option, error) {
	return t.listOptions(ctx, roundID, false)
}

// LockRoundOptions trava todas as opções do round em ordem de id
func (t *Tx) LockRoundOptions(ctx context.Context, roundID string) ([]domain.Option, error) {
	return t.listOptions(ctx, roundID, true)
}

func (t *Tx) UpdateOptionStatus(ctx context.Context, id string, st domain.OptionStatus) error {
	if _, err := t.exec(ctx, `UPDATE options SET status=? WHERE id=?`, string(st), id); err != nil {
		return fmt.Errorf("update option status: %w", err)
	}
	return nil
}

// AdjustOptionAggregate soma deltas ao total apostado e à contagem da moeda
func (t *Tx) AdjustOptionAggregate(ctx context.Context, id string, c domain.Currency, amountDelta, countDelta int64) error {
	total, err := currencyColumn("total", c)
	if err != nil {
		return err
	}
	count, _ := currencyColumn("count", c)
	res, err := t.exec(ctx,
		`UPDATE options SET `+total+`=`+total+`+?, `+count+`=`+count+`+? WHERE id=?`,
		amountDelta, countDelta, id)
	if err != nil {
		return fmt.Errorf("adjust option aggregate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: option %s", domain.ErrNotFound, id)
	}
	return nil
}
