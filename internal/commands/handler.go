// Package commands aplica comandos administrativos de round vindos do Kafka.
// A entrega é at-least-once: reexecutar um comando já aplicado não tem efeito.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/rounds"
	"github.com/radieske/stream-wager-engine/internal/settlement"
	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

type Rounds interface {
	LockOption(ctx context.Context, optionID string) (*domain.Option, error)
	LockChannel(ctx context.Context, roundID string, c domain.Currency) (*domain.Round, error)
	OpenChannel(ctx context.Context, roundID string, c domain.Currency) (*domain.Round, error)
	CancelRoundAndRefund(ctx context.Context, roundID string) (*rounds.RoundRefund, error)
}

type Settlements interface {
	DeclareWinner(ctx context.Context, optionID string) (*settlement.Result, error)
}

// ErrDuplicate indica comando já aplicado anteriormente (confirmar sem reprocessar)
var ErrDuplicate = errors.New("command already applied")

type Handler struct {
	rounds Rounds
	settle Settlements
}

func NewHandler(r Rounds, s Settlements) *Handler { return &Handler{rounds: r, settle: s} }

// Handle executa o comando; Conflict na declaração de vencedor é tratado como duplicata
func (h *Handler) Handle(ctx context.Context, cmd events.RoundCommand) error {
	var err error
	switch cmd.Type {
	case events.CmdLockOption:
		_, err = h.rounds.LockOption(ctx, cmd.OptionID)
	case events.CmdLockChannel:
		_, err = h.rounds.LockChannel(ctx, cmd.RoundID, domain.Currency(cmd.Currency))
	case events.CmdOpenChannel:
		_, err = h.rounds.OpenChannel(ctx, cmd.RoundID, domain.Currency(cmd.Currency))
	case events.CmdCancelRound:
		_, err = h.rounds.CancelRoundAndRefund(ctx, cmd.RoundID)
	case events.CmdDeclareWinner:
		_, err = h.settle.DeclareWinner(ctx, cmd.OptionID)
		if errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
	default:
		return fmt.Errorf("%w: unknown command type %q", domain.ErrInvalidInput, cmd.Type)
	}
	return err
}

// Permanent indica erro que não melhora com retry (vai direto para a DLQ)
func Permanent(err error) bool {
	switch domain.KindOf(err) {
	case "not_found", "invalid_state", "invalid_input", "forbidden", "insufficient_funds":
		return true
	}
	return false
}
