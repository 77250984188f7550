package payment

import (
	"context"
	"errors"
	"strings"

	"cleanpay/internal/models"
)

// InlineGateway prepares parameters for the browser-hosted checkout widget.
// The charge itself happens between the browser and the processor; its
// callback and close events come back through the HTTP surface.
type InlineGateway struct {
	publicKey string
}

// NewInlineGateway returns a gateway bound to the processor's public key.
func NewInlineGateway(publicKey string) (*InlineGateway, error) {
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return nil, errors.New("payment public key required")
	}
	return &InlineGateway{publicKey: publicKey}, nil
}

func (g *InlineGateway) Checkout(_ context.Context, email string, amount int64, currency models.Currency) (*models.Checkout, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("checkout email required")
	}
	if amount <= 0 {
		return nil, errors.New("checkout amount must be positive")
	}
	return &models.Checkout{
		Key:      g.publicKey,
		Email:    email,
		Amount:   amount,
		Currency: currency,
	}, nil
}
