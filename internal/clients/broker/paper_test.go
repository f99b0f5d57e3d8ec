package broker

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quantfolio/internal/domain"
)

func TestSubmitOrder(t *testing.T) {
	p := NewPaper(zerolog.New(nil).Level(zerolog.Disabled))

	id, err := p.SubmitOrder(context.Background(), "AAPL", domain.TradeSideBuy, 5, 150)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	orders := p.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].ID)
	assert.Equal(t, "AAPL", orders[0].Symbol)
	assert.Equal(t, domain.TradeSideBuy, orders[0].Side)
	assert.Equal(t, 5.0, orders[0].Quantity)
	assert.False(t, orders[0].FilledAt.IsZero())
}

func TestSubmitOrderValidation(t *testing.T) {
	p := NewPaper(zerolog.New(nil).Level(zerolog.Disabled))
	ctx := context.Background()

	_, err := p.SubmitOrder(ctx, "", domain.TradeSideBuy, 1, 100)
	assert.Error(t, err)

	_, err = p.SubmitOrder(ctx, "AAPL", domain.TradeSideBuy, 0, 100)
	assert.Error(t, err)

	_, err = p.SubmitOrder(ctx, "AAPL", domain.TradeSideSell, 1, -5)
	assert.Error(t, err)

	assert.Empty(t, p.Orders())
}

func TestSubmitOrderCancelledContext(t *testing.T) {
	p := NewPaper(zerolog.New(nil).Level(zerolog.Disabled))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.SubmitOrder(ctx, "AAPL", domain.TradeSideBuy, 1, 100)
	assert.ErrorIs(t, err, context.Canceled)
}
