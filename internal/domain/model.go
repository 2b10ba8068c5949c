package domain

import "time"

// Currency identifica um dos saldos da carteira
type Currency string

const (
	CurrencyHard Currency = "hard" // moeda principal
	CurrencySoft Currency = "soft" // moeda promocional
)

// Currencies lista as moedas suportadas, em ordem estável
var Currencies = []Currency{CurrencyHard, CurrencySoft}

func (c Currency) Valid() bool {
	return c == CurrencyHard || c == CurrencySoft
}

// Wallet é a projeção dos saldos de um usuário (uma por usuário)
type Wallet struct {
	UserID    string             `json:"userId"`
	Balances  map[Currency]int64 `json:"balances"`
	Version   int64              `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Balance retorna o saldo da moeda (zero se ausente)
func (w *Wallet) Balance(c Currency) int64 {
	if w == nil || w.Balances == nil {
		return 0
	}
	return w.Balances[c]
}

// TxType é o tipo de lançamento no ledger
type TxType string

const (
	TxDeposit       TxType = "deposit"
	TxWithdrawal    TxType = "withdrawal"
	TxBetPlacement  TxType = "bet_placement"
	TxBetWon        TxType = "bet_won"
	TxBetLost       TxType = "bet_lost"
	TxRefund        TxType = "refund"
	TxPurchase      TxType = "purchase"
	TxAdminCredit   TxType = "admin_credit"
	TxAdminDebit    TxType = "admin_debit"
	TxInitialCredit TxType = "initial_credit"
)

func (t TxType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxBetPlacement, TxBetWon, TxBetLost,
		TxRefund, TxPurchase, TxAdminCredit, TxAdminDebit, TxInitialCredit:
		return true
	}
	return false
}

// Tipos de entidade usados na chave de idempotência
const (
	EntityBet    = "bet"
	EntityWallet = "wallet"
)

// Transaction é um lançamento imutável do ledger
type Transaction struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Type              TxType    `json:"type"`
	Currency          Currency  `json:"currency"`
	Amount            int64     `json:"amount"` // com sinal
	BalanceAfter      int64     `json:"balance_after"`
	Description       string    `json:"description"`
	RelatedEntityID   string    `json:"related_entity_id,omitempty"`
	RelatedEntityType string    `json:"related_entity_type,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// IdempotencyKey identifica um efeito financeiro que só pode acontecer uma vez
type IdempotencyKey struct {
	EntityID   string
	EntityType string
}

func (k *IdempotencyKey) Empty() bool {
	return k == nil || k.EntityID == ""
}

// BetKey é a chave de idempotência padrão baseada no id da aposta
func BetKey(betID string) *IdempotencyKey {
	return &IdempotencyKey{EntityID: betID, EntityType: EntityBet}
}

// Stream é o evento ao vivo que agrupa rounds
type Stream struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelStatus é o estado de um canal (round, moeda)
type ChannelStatus string

const (
	ChannelActive ChannelStatus = "active"
	ChannelLocked ChannelStatus = "locked"
)

// Round pertence a um Stream e tem um canal por moeda
type Round struct {
	ID        string                     `json:"id"`
	StreamID  string                     `json:"streamId"`
	Name      string                     `json:"name"`
	Channels  map[Currency]ChannelStatus `json:"channels"`
	CreatedAt time.Time                  `json:"created_at"`
}

// ChannelOpen indica se o round aceita apostas na moeda
func (r *Round) ChannelOpen(c Currency) bool {
	return r.Channels[c] == ChannelActive
}

// OptionStatus é o estado de resultado de uma opção
type OptionStatus string

const (
	OptionActive    OptionStatus = "active"
	OptionLocked    OptionStatus = "locked"
	OptionWinner    OptionStatus = "winner"
	OptionLoser     OptionStatus = "loser"
	OptionCancelled OptionStatus = "cancelled"
)

// Resolved indica estados finais (não voltam para Active/Locked)
func (s OptionStatus) Resolved() bool {
	return s == OptionWinner || s == OptionLoser || s == OptionCancelled
}

// Option (variável de aposta) pertence a um Round
type Option struct {
	ID        string             `json:"id"`
	RoundID   string             `json:"roundId"`
	StreamID  string             `json:"streamId"`
	Name      string             `json:"name"`
	Status    OptionStatus       `json:"status"`
	Totals    map[Currency]int64 `json:"totals"`
	Counts    map[Currency]int64 `json:"counts"`
	CreatedAt time.Time          `json:"created_at"`
}

// BetStatus é o estado de uma aposta
type BetStatus string

const (
	BetActive    BetStatus = "active"
	BetWon       BetStatus = "won"
	BetLost      BetStatus = "lost"
	BetCancelled BetStatus = "cancelled"
	BetRefunded  BetStatus = "refunded"
)

func (s BetStatus) Terminal() bool {
	return s != BetActive
}

// CountsInAggregate indica se a aposta compõe os totais da opção
func (s BetStatus) CountsInAggregate() bool {
	return s == BetActive || s == BetWon || s == BetLost
}

// Bet é a aposta de um usuário numa opção
type Bet struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	OptionID     string     `json:"optionId"`
	RoundID      string     `json:"roundId"`
	StreamID     string     `json:"streamId"`
	Amount       int64      `json:"amount"`
	Currency     Currency   `json:"currency"`
	Status       BetStatus  `json:"status"`
	PayoutAmount int64      `json:"payout_amount"`
	IsProcessed  bool       `json:"is_processed"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
