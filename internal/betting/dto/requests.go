package dto

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/radieske/stream-wager-engine/internal/domain"
)

var validate = validator.New()

func check(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

type PlaceBetRequest struct {
	UserID   string `json:"userId" validate:"required"`
	OptionID string `json:"optionId" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Currency string `json:"currency" validate:"required,oneof=hard soft"`
}

func (r *PlaceBetRequest) Validate() error { return check(r) }

// CancelBetRequest: currency vazia assume a moeda da aposta
type CancelBetRequest struct {
	UserID   string `json:"userId" validate:"required"`
	BetID    string `json:"betId" validate:"required"`
	Currency string `json:"currency" validate:"omitempty,oneof=hard soft"`
}

func (r *CancelBetRequest) Validate() error { return check(r) }

type EditBetRequest struct {
	UserID      string `json:"userId" validate:"required"`
	BetID       string `json:"betId" validate:"required"`
	NewOptionID string `json:"newOptionId" validate:"required"`
	NewAmount   int64  `json:"newAmount" validate:"required,gt=0"`
	NewCurrency string `json:"newCurrency" validate:"required,oneof=hard soft"`
}

func (r *EditBetRequest) Validate() error { return check(r) }
