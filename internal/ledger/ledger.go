// Package ledger é o único dono dos saldos: toda movimentação passa por ApplyTx,
// que grava o novo saldo e o lançamento imutável na mesma transação.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/internal/shared/metrics"
)

// Entry é um lançamento com sinal: positivo credita, negativo debita
type Entry struct {
	UserID      string
	Amount      int64
	Currency    domain.Currency
	Type        domain.TxType
	Description string
	Key         *domain.IdempotencyKey // opcional
}

// Result descreve o efeito de um lançamento
// Applied=false indica chave de idempotência já consumida (nenhum efeito)
type Result struct {
	Wallet      *domain.Wallet
	Transaction *domain.Transaction
	Applied     bool
}

// WalletCache é o cache de leitura da projeção da carteira
// Set deve ignorar projeções com versão menor ou igual à que já está em cache
type WalletCache interface {
	Get(ctx context.Context, userID string) (*domain.Wallet, bool, error)
	Set(ctx context.Context, w *domain.Wallet) (bool, error)
	Invalidate(ctx context.Context, userIDs ...string) error
}

type Service struct {
	store   *repo.Store
	log     *zap.Logger
	metrics *metrics.Collectors
	cache   WalletCache
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Collectors) Option { return func(s *Service) { s.metrics = m } }

func WithCache(c WalletCache) Option { return func(s *Service) { s.cache = c } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(store *repo.Store, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Now expõe o relógio do ledger para os serviços que compõem transações com ele
func (s *Service) Now() time.Time { return s.now() }

// signOf diz o sinal exigido pelo tipo: +1 crédito, -1 débito, 0 qualquer
func signOf(t domain.TxType) int {
	switch t {
	case domain.TxDeposit, domain.TxBetWon, domain.TxRefund, domain.TxAdminCredit, domain.TxInitialCredit:
		return 1
	case domain.TxWithdrawal, domain.TxBetPlacement, domain.TxPurchase, domain.TxAdminDebit:
		return -1
	}
	return 0
}

func validate(e Entry) error {
	switch {
	case e.UserID == "":
		return fmt.Errorf("%w: user id required", domain.ErrInvalidInput)
	case !e.Currency.Valid():
		return fmt.Errorf("%w: unsupported currency %q", domain.ErrInvalidInput, e.Currency)
	case !e.Type.Valid():
		return fmt.Errorf("%w: unsupported transaction type %q", domain.ErrInvalidInput, e.Type)
	case e.Amount == 0:
		return fmt.Errorf("%w: amount must be non-zero", domain.ErrInvalidInput)
	}
	if sign := signOf(e.Type); (sign > 0 && e.Amount < 0) || (sign < 0 && e.Amount > 0) {
		return fmt.Errorf("%w: amount sign does not match %s", domain.ErrInvalidInput, e.Type)
	}
	return nil
}

// ApplyTx aplica o lançamento dentro da transação do chamador:
//  1. trava a carteira (FOR UPDATE)
//  2. se a chave de idempotência já foi usada, devolve a carteira sem efeito
//  3. rejeita saldo negativo com ErrInsufficientFunds
//  4. grava saldo + lançamento com balance_after
func (s *Service) ApplyTx(ctx context.Context, tx *repo.Tx, e Entry) (*Result, error) {
	if err := validate(e); err != nil {
		return nil, err
	}

	w, err := tx.LockWallet(ctx, e.UserID)
	if err != nil {
		return nil, err
	}

	if !e.Key.Empty() {
		existing, err := tx.FindByIdempotencyKey(ctx, *e.Key, e.Type, e.Currency)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &Result{Wallet: w, Transaction: existing, Applied: false}, nil
		}
	}

	newBalance := w.Balance(e.Currency) + e.Amount
	if newBalance < 0 {
		return nil, fmt.Errorf("%w: user %s has %d %s, needs %d",
			domain.ErrInsufficientFunds, e.UserID, w.Balance(e.Currency), e.Currency, -e.Amount)
	}

	now := s.now()
	if err := tx.UpdateWalletBalance(ctx, e.UserID, e.Currency, newBalance, now); err != nil {
		return nil, err
	}

	tr := &domain.Transaction{
		ID:           uuid.NewString(),
		UserID:       e.UserID,
		Type:         e.Type,
		Currency:     e.Currency,
		Amount:       e.Amount,
		BalanceAfter: newBalance,
		Description:  e.Description,
		CreatedAt:    now,
	}
	if !e.Key.Empty() {
		tr.RelatedEntityID = e.Key.EntityID
		tr.RelatedEntityType = e.Key.EntityType
	}
	if err := tx.InsertTransaction(ctx, tr); err != nil {
		return nil, err
	}

	w.Balances[e.Currency] = newBalance
	w.Version++
	w.UpdatedAt = now
	return &Result{Wallet: w, Transaction: tr, Applied: true}, nil
}

// Committed registra métricas e grava no cache a carteira efetivada (versão mais recente)
// Deve ser chamado apenas com resultados de transações efetivadas
func (s *Service) Committed(ctx context.Context, results ...*Result) {
	latest := make(map[string]*domain.Wallet, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		if !r.Applied {
			s.metrics.LedgerReplay()
			continue
		}
		s.metrics.LedgerEntry(string(r.Transaction.Type), string(r.Transaction.Currency))
		if cur, ok := latest[r.Wallet.UserID]; !ok || r.Wallet.Version > cur.Version {
			latest[r.Wallet.UserID] = r.Wallet
		}
	}
	if s.cache == nil {
		return
	}
	for _, w := range latest {
		if _, err := s.cache.Set(ctx, w); err != nil {
			s.log.Warn("wallet cache write-through failed", zap.String("userId", w.UserID), zap.Error(err))
			if err := s.cache.Invalidate(ctx, w.UserID); err != nil {
				s.log.Warn("wallet cache invalidate failed", zap.String("userId", w.UserID), zap.Error(err))
			}
		}
	}
}

// Apply executa um lançamento na sua própria transação (depósito, saque, compra, ajustes)
func (s *Service) Apply(ctx context.Context, e Entry) (*Result, error) {
	var res *Result
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		var err error
		res, err = s.ApplyTx(ctx, tx, e)
		return err
	})
	if err != nil {
		s.metrics.OpError("ledger_apply", domain.KindOf(err))
		return nil, err
	}
	s.Committed(ctx, res)

	if res.Applied {
		s.log.Info("ledger entry applied",
			zap.String("userId", e.UserID),
			zap.String("type", string(e.Type)),
			zap.String("currency", string(e.Currency)),
			zap.Int64("amount", e.Amount),
			zap.Int64("balance_after", res.Transaction.BalanceAfter),
		)
	}
	return res, nil
}

// Credit credita um valor positivo
func (s *Service) Credit(ctx context.Context, userID string, amount int64, c domain.Currency, t domain.TxType, description string, key *domain.IdempotencyKey) (*Result, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", domain.ErrInvalidInput)
	}
	return s.Apply(ctx, Entry{UserID: userID, Amount: amount, Currency: c, Type: t, Description: description, Key: key})
}

// Debit debita um valor positivo (gravado com sinal negativo)
func (s *Service) Debit(ctx context.Context, userID string, amount int64, c domain.Currency, t domain.TxType, description string, key *domain.IdempotencyKey) (*Result, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: debit amount must be positive", domain.ErrInvalidInput)
	}
	return s.Apply(ctx, Entry{UserID: userID, Amount: -amount, Currency: c, Type: t, Description: description, Key: key})
}
