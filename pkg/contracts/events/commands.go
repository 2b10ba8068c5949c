package events

// CommandType identifica um comando administrativo de round
type CommandType string

const (
	CmdLockOption    CommandType = "lock_option"
	CmdLockChannel   CommandType = "lock_channel"
	CmdOpenChannel   CommandType = "open_channel"
	CmdDeclareWinner CommandType = "declare_winner"
	CmdCancelRound   CommandType = "cancel_round"
)

// RoundCommand chega pelo tópico round_commands; a autorização já foi feita pelo produtor
type RoundCommand struct {
	CommandID string      `json:"command_id"`
	Type      CommandType `json:"type"`
	RoundID   string      `json:"round_id,omitempty"`
	OptionID  string      `json:"option_id,omitempty"`
	Currency  string      `json:"currency,omitempty"`
}
