package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/radieske/stream-wager-engine/internal/domain"
)

// Dialect separa as diferenças de SQL entre Postgres e SQLite
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// ParseDialect converte o nome do driver da configuração
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "":
		return Postgres, nil
	case "sqlite":
		return SQLite, nil
	}
	return 0, fmt.Errorf("unsupported db driver %q", driver)
}

// rebind troca "?" por "$n" no Postgres
func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// forUpdate devolve o sufixo de lock pessimista
// No SQLite a escrita já é serializada pelo lock do banco (pool com uma conexão)
func (d Dialect) forUpdate() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// Store é a unidade de trabalho sobre um banco transacional
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func NewStore(db *sql.DB, d Dialect) *Store { return &Store{db: db, dialect: d} }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

// Ping verifica a conexão (health check)
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// WithinTx executa fn numa transação: commit se fn retornar nil, rollback em qualquer erro ou panic
// Locks adquiridos dentro de fn só são liberados no fim da transação
func (s *Store) WithinTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&Tx{tx: sqlTx, d: s.dialect}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Tx expõe as consultas do repositório dentro de uma transação
type Tx struct {
	tx *sql.Tx
	d  Dialect
}

func (t *Tx) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.d.rebind(q), args...)
}

func (t *Tx) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.d.rebind(q), args...)
}

func (t *Tx) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.d.rebind(q), args...)
}

// currencyColumn monta o nome da coluna por moeda a partir de uma lista fechada
func currencyColumn(prefix string, c domain.Currency) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("%w: unsupported currency %q", domain.ErrInvalidInput, c)
	}
	return prefix + "_" + string(c), nil
}

type scanner interface {
	Scan(dest ...any) error
}
