// Package broker executes orders. The paper broker fills every order
// instantly at the submitted price; it stands in for a real execution venue
// while keeping the trade lifecycle identical.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
)

// Order is one filled paper order.
type Order struct {
	ID       string           `json:"id"`
	Symbol   string           `json:"symbol"`
	Side     domain.TradeSide `json:"side"`
	Quantity float64          `json:"quantity"`
	Price    float64          `json:"price"`
	FilledAt time.Time        `json:"filled_at"`
}

// Paper is an in-memory paper trading broker.
type Paper struct {
	mu     sync.Mutex
	orders []Order
	log    zerolog.Logger
}

// NewPaper creates a new paper broker.
func NewPaper(log zerolog.Logger) *Paper {
	return &Paper{
		log: log.With().Str("client", "paper-broker").Logger(),
	}
}

// SubmitOrder fills a market order immediately and returns its order ID.
func (p *Paper) SubmitOrder(ctx context.Context, symbol string, side domain.TradeSide, quantity, price float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if symbol == "" {
		return "", fmt.Errorf("symbol is required")
	}
	if quantity <= 0 {
		return "", fmt.Errorf("quantity must be positive, got %v", quantity)
	}
	if price <= 0 {
		return "", fmt.Errorf("price must be positive, got %v", price)
	}

	order := Order{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		FilledAt: time.Now().UTC(),
	}

	p.mu.Lock()
	p.orders = append(p.orders, order)
	p.mu.Unlock()

	p.log.Info().
		Str("order_id", order.ID).
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("quantity", quantity).
		Float64("price", price).
		Msg("Paper order filled")

	return order.ID, nil
}

// Orders returns a copy of the fill history.
func (p *Paper) Orders() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Order, len(p.orders))
	copy(out, p.orders)
	return out
}
