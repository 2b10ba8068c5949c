package events

import "time"

// Bet é a projeção pública de uma aposta
type Bet struct {
	BetID        string     `json:"bet_id"`
	UserID       string     `json:"user_id"`
	OptionID     string     `json:"option_id"`
	RoundID      string     `json:"round_id"`
	StreamID     string     `json:"stream_id"`
	Amount       int64      `json:"amount"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	PayoutAmount int64      `json:"payout_amount"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// Option carrega os agregados por moeda da opção
type Option struct {
	OptionID string           `json:"option_id"`
	RoundID  string           `json:"round_id"`
	Name     string           `json:"name"`
	Status   string           `json:"status"`
	Totals   map[string]int64 `json:"totals"`
	Counts   map[string]int64 `json:"counts"`
}

// Wallet são os saldos do usuário afetado
type Wallet struct {
	UserID   string           `json:"user_id"`
	Balances map[string]int64 `json:"balances"`
}

type BetPlaced struct {
	Bet    Bet    `json:"bet"`
	Option Option `json:"option"`
	Wallet Wallet `json:"wallet"`
}

type BetCancelled struct {
	Bet    Bet    `json:"bet"`
	Option Option `json:"option"`
	Wallet Wallet `json:"wallet"`
}

type BetEdited struct {
	Previous       Bet    `json:"previous"`
	PreviousOption Option `json:"previous_option"`
	Bet            Bet    `json:"bet"`
	Option         Option `json:"option"`
	Wallet         Wallet `json:"wallet"`
}

type OptionLocked struct {
	Option Option `json:"option"`
}

type RoundChannelUpdated struct {
	RoundID  string `json:"round_id"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Pool resume a distribuição parimutuel de uma moeda
type Pool struct {
	Currency          string `json:"currency"`
	TotalWinningStake int64  `json:"total_winning_stake"`
	TotalLosingStake  int64  `json:"total_losing_stake"`
	PlatformFee       int64  `json:"platform_fee"`
	DistributablePot  int64  `json:"distributable_pot"`
	TotalPaid         int64  `json:"total_paid"`
	Remainder         int64  `json:"remainder"`
	Refunded          bool   `json:"refunded"`
}

// BetResult é o desfecho de uma aposta com o saldo resultante do dono
type BetResult struct {
	Bet    Bet     `json:"bet"`
	Wallet *Wallet `json:"wallet,omitempty"`
}

type WinnerDeclared struct {
	Winner  Option      `json:"winner"`
	Options []Option    `json:"options"`
	Pools   []Pool      `json:"pools"`
	Results []BetResult `json:"results"`
}

type RoundRefunded struct {
	RoundID string      `json:"round_id"`
	Options []Option    `json:"options"`
	Results []BetResult `json:"results"`
}
