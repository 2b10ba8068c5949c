package events

import "time"

// Type identifica o evento de domínio publicado após o commit
type Type string

const (
	TypeBetPlaced           Type = "BetPlaced"
	TypeBetCancelled        Type = "BetCancelled"
	TypeBetEdited           Type = "BetEdited"
	TypeOptionLocked        Type = "OptionLocked"
	TypeRoundChannelUpdated Type = "RoundChannelUpdated"
	TypeWinnerDeclared      Type = "WinnerDeclared"
	TypeRoundRefunded       Type = "RoundRefunded"
)

// Envelope é a mensagem publicada no Kafka e no Redis Pub/Sub
// RoundID é usado como chave de partição (ordem por round)
type Envelope struct {
	EventID    string    `json:"event_id"`
	Type       Type      `json:"type"`
	StreamID   string    `json:"stream_id"`
	RoundID    string    `json:"round_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}
