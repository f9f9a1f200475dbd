package remittance

import (
	"remit_mall/internal/apperr"
	"remit_mall/internal/model"

	"github.com/shopspring/decimal"
)

// Quote 一次试算结果。
type Quote struct {
	Amount           decimal.Decimal `json:"amount"`
	Commission       decimal.Decimal `json:"commission"`
	TotalCharged     decimal.Decimal `json:"total_charged"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	DeliveryAmount   decimal.Decimal `json:"delivery_amount"`
	DeliveryCurrency string          `json:"delivery_currency"`
}

var percentBase = decimal.NewFromInt(100)

// Calculate 按通道配置试算手续费与到账金额。纯函数，无任何副作用：
// 前台试算与建单落库用的是同一份口径，相同输入必得相同输出。
//
//	commission   = fixed 值，或 amount * (rate/100)
//	totalCharged = amount + commission
//	delivery     = totalCharged * exchangeRate
func Calculate(t model.RemittanceType, amount decimal.Decimal) (Quote, error) {
	if !amount.IsPositive() {
		return Quote{}, apperr.Validation("汇款金额必须大于 0")
	}
	if amount.LessThan(t.MinAmount) || amount.GreaterThan(t.MaxAmount) {
		return Quote{}, apperr.Validation("汇款金额必须在 %s 到 %s 之间",
			t.MinAmount.String(), t.MaxAmount.String())
	}

	var commission decimal.Decimal
	switch t.CommissionType {
	case model.CommissionFixed:
		commission = t.CommissionValue
	case model.CommissionPercentage:
		commission = amount.Mul(t.CommissionValue).Div(percentBase)
	default:
		return Quote{}, apperr.Validation("未知的手续费模型 %q", t.CommissionType)
	}

	total := amount.Add(commission)
	return Quote{
		Amount:           amount,
		Commission:       commission,
		TotalCharged:     total,
		ExchangeRate:     t.ExchangeRate,
		DeliveryAmount:   total.Mul(t.ExchangeRate),
		DeliveryCurrency: t.DeliveryCurrency,
	}, nil
}
