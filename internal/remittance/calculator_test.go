package remittance

import (
	"testing"

	"remit_mall/internal/apperr"
	"remit_mall/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func percentType() model.RemittanceType {
	return model.RemittanceType{
		Name:             "USD-PHP 常规",
		SourceCurrency:   "USD",
		DeliveryCurrency: "PHP",
		MinAmount:        decimal.NewFromInt(10),
		MaxAmount:        decimal.NewFromInt(5000),
		CommissionType:   model.CommissionPercentage,
		CommissionValue:  decimal.NewFromInt(2),
		ExchangeRate:     decimal.NewFromInt(24),
	}
}

func TestCalculatePercentage(t *testing.T) {
	q, err := Calculate(percentType(), decimal.NewFromInt(100))
	require.NoError(t, err)

	// 2% 手续费：100 -> 2，总扣 102，按 24 汇率到账 2448
	assert.True(t, q.Commission.Equal(decimal.NewFromInt(2)), "commission=%s", q.Commission)
	assert.True(t, q.TotalCharged.Equal(decimal.NewFromInt(102)), "total=%s", q.TotalCharged)
	assert.True(t, q.DeliveryAmount.Equal(decimal.NewFromInt(2448)), "delivery=%s", q.DeliveryAmount)
	assert.Equal(t, "PHP", q.DeliveryCurrency)
}

func TestCalculateFixed(t *testing.T) {
	typ := percentType()
	typ.CommissionType = model.CommissionFixed
	typ.CommissionValue = decimal.RequireFromString("4.50")

	q, err := Calculate(typ, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, q.Commission.Equal(decimal.RequireFromString("4.50")))
	assert.True(t, q.TotalCharged.Equal(decimal.RequireFromString("104.50")))
	assert.True(t, q.DeliveryAmount.Equal(decimal.NewFromInt(2508)))
}

func TestCalculateBounds(t *testing.T) {
	typ := percentType()

	for _, amount := range []decimal.Decimal{
		decimal.NewFromInt(9),
		decimal.NewFromInt(5001),
	} {
		_, err := Calculate(typ, amount)
		require.Error(t, err, "amount=%s", amount)
		assert.Equal(t, apperr.CodeValidation, apperr.From(err).Code)
	}

	// 边界值本身是合法的
	_, err := Calculate(typ, typ.MinAmount)
	assert.NoError(t, err)
	_, err = Calculate(typ, typ.MaxAmount)
	assert.NoError(t, err)
}

func TestCalculateRejectsNonPositive(t *testing.T) {
	_, err := Calculate(percentType(), decimal.Zero)
	require.Error(t, err)
	_, err = Calculate(percentType(), decimal.NewFromInt(-5))
	require.Error(t, err)
}

func TestCalculateRejectsUnknownCommissionType(t *testing.T) {
	typ := percentType()
	typ.CommissionType = "tiered"
	_, err := Calculate(typ, decimal.NewFromInt(100))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.From(err).Code)
}

func TestCalculateIsDeterministic(t *testing.T) {
	typ := percentType()
	amount := decimal.RequireFromString("123.45")
	q1, err := Calculate(typ, amount)
	require.NoError(t, err)
	q2, err := Calculate(typ, amount)
	require.NoError(t, err)
	assert.True(t, q1.TotalCharged.Equal(q2.TotalCharged))
	assert.True(t, q1.DeliveryAmount.Equal(q2.DeliveryAmount))
}
