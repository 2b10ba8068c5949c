package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/repo"
)

const entityAdmin = "admin"

// OpenWallet cria a carteira no cadastro do usuário com os saldos iniciais
// Cada saldo inicial vira um lançamento initial_credit (chave = user id)
func (s *Service) OpenWallet(ctx context.Context, userID string, grants map[domain.Currency]int64) (*domain.Wallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", domain.ErrInvalidInput)
	}
	for c, amount := range grants {
		if !c.Valid() || amount < 0 {
			return nil, fmt.Errorf("%w: invalid initial grant %d %s", domain.ErrInvalidInput, amount, c)
		}
	}

	var (
		wallet  *domain.Wallet
		results []*Result
	)
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		if _, err := tx.GetWallet(ctx, userID); err == nil {
			return fmt.Errorf("%w: wallet %s already exists", domain.ErrConflict, userID)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if err := tx.InsertWallet(ctx, userID, s.now()); err != nil {
			return err
		}

		for _, c := range domain.Currencies {
			amount := grants[c]
			if amount == 0 {
				continue
			}
			res, err := s.ApplyTx(ctx, tx, Entry{
				UserID:      userID,
				Amount:      amount,
				Currency:    c,
				Type:        domain.TxInitialCredit,
				Description: "initial balance",
				Key:         &domain.IdempotencyKey{EntityID: userID, EntityType: domain.EntityWallet},
			})
			if err != nil {
				return err
			}
			results = append(results, res)
		}

		var err error
		wallet, err = tx.GetWallet(ctx, userID)
		return err
	})
	if err != nil {
		s.metrics.OpError("open_wallet", domain.KindOf(err))
		return nil, err
	}
	s.Committed(ctx, results...)

	s.log.Info("wallet opened", zap.String("userId", userID), zap.Any("balances", wallet.Balances))
	return wallet, nil
}

// AdminAdjust aplica crédito (amount>0) ou débito (amount<0) administrativo
// ref opcional torna o ajuste idempotente (ex: id do ticket de suporte)
func (s *Service) AdminAdjust(ctx context.Context, userID string, amount int64, c domain.Currency, reason, ref string) (*Result, error) {
	typ := domain.TxAdminCredit
	if amount < 0 {
		typ = domain.TxAdminDebit
	}
	var key *domain.IdempotencyKey
	if ref != "" {
		key = &domain.IdempotencyKey{EntityID: ref, EntityType: entityAdmin}
	}
	return s.Apply(ctx, Entry{UserID: userID, Amount: amount, Currency: c, Type: typ, Description: reason, Key: key})
}

// Wallet devolve a projeção da carteira, lendo do cache quando possível
func (s *Service) Wallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if s.cache != nil {
		w, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.log.Warn("wallet cache get failed", zap.String("userId", userID), zap.Error(err))
		} else if ok {
			return w, nil
		}
	}

	var w *domain.Wallet
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		var err error
		w, err = tx.GetWallet(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if _, err := s.cache.Set(ctx, w); err != nil {
			s.log.Warn("wallet cache set failed", zap.String("userId", userID), zap.Error(err))
		}
	}
	return w, nil
}

// History lista os lançamentos do usuário, mais recente primeiro
func (s *Service) History(ctx context.Context, userID string, c domain.Currency, limit int) ([]domain.Transaction, error) {
	if c != "" && !c.Valid() {
		return nil, fmt.Errorf("%w: unsupported currency %q", domain.ErrInvalidInput, c)
	}
	var out []domain.Transaction
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		if _, err := tx.GetWallet(ctx, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListTransactions(ctx, userID, c, limit)
		return err
	})
	return out, err
}

// Reconciliation compara o saldo gravado com o replay do ledger
type Reconciliation struct {
	UserID     string                    `json:"userId"`
	Balances   map[domain.Currency]int64 `json:"balances"`
	Replayed   map[domain.Currency]int64 `json:"replayed"`
	Consistent bool                      `json:"consistent"`
}

// Reconcile refaz a soma dos lançamentos e confere com a carteira
func (s *Service) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	rec := &Reconciliation{UserID: userID, Consistent: true}
	err := s.store.WithinTx(ctx, func(tx *repo.Tx) error {
		w, err := tx.LockWallet(ctx, userID)
		if err != nil {
			return err
		}
		sums, err := tx.SumTransactions(ctx, userID)
		if err != nil {
			return err
		}
		rec.Balances = w.Balances
		rec.Replayed = make(map[domain.Currency]int64, len(domain.Currencies))
		for _, c := range domain.Currencies {
			rec.Replayed[c] = sums[c]
			if sums[c] != w.Balance(c) {
				rec.Consistent = false
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !rec.Consistent {
		s.log.Error("ledger replay mismatch",
			zap.String("userId", userID),
			zap.Any("balances", rec.Balances),
			zap.Any("replayed", rec.Replayed),
		)
	}
	return rec, nil
}
