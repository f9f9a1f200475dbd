package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionType 手续费模型：固定金额或按比例。
type CommissionType string

const (
	CommissionFixed      CommissionType = "fixed"
	CommissionPercentage CommissionType = "percentage"
)

// DeliveryMethod 到账方式。
type DeliveryMethod string

const (
	DeliveryCash         DeliveryMethod = "cash"
	DeliveryBankTransfer DeliveryMethod = "bank_transfer"
	DeliveryCard         DeliveryMethod = "card"
)

// RemittanceType 汇款通道配置：币种对、额度边界、手续费模型、汇率、
// 允许的到账方式。后台维护，引擎只读。
type RemittanceType struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name             string          `gorm:"size:128;not null" json:"name"`
	SourceCurrency   string          `gorm:"size:8;not null" json:"source_currency"`
	DeliveryCurrency string          `gorm:"size:8;not null" json:"delivery_currency"`
	MinAmount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"min_amount"`
	MaxAmount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"max_amount"`
	CommissionType   CommissionType  `gorm:"size:16;not null" json:"commission_type"`
	CommissionValue  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"commission_value"` // fixed: 金额；percentage: 百分比
	ExchangeRate     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"exchange_rate"`

	// 逗号分隔，如 "cash,bank_transfer"。空串视为全部允许。
	AllowedMethods string `gorm:"size:64" json:"allowed_methods"`
}

func (RemittanceType) TableName() string { return "remittance_types" }

// MethodAllowed 判断到账方式是否在通道白名单内。
func (t RemittanceType) MethodAllowed(m DeliveryMethod) bool {
	if strings.TrimSpace(t.AllowedMethods) == "" {
		return true
	}
	for _, part := range strings.Split(t.AllowedMethods, ",") {
		if DeliveryMethod(strings.TrimSpace(part)) == m {
			return true
		}
	}
	return false
}

// Remittance 汇款单。付款与交付是顺序子阶段（不同于订单的正交双轴）：
// 钱没确认之前不允许进入交付准备，所以只有一条状态链。
// 金额字段全部由服务端按通道配置重算，绝不信任客户端。
type Remittance struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RemitNo          string `gorm:"size:64;uniqueIndex;not null" json:"remit_no"`
	SenderID         uint   `gorm:"not null;index" json:"sender_id"`
	RemittanceTypeID uint   `gorm:"not null;index" json:"remittance_type_id"`

	Status RemittanceStatus `gorm:"size:40;not null;index" json:"status"`

	Amount           decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Commission       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"commission"`
	TotalCharged     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"total_charged"`
	ExchangeRate     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"exchange_rate"`
	DeliveryAmount   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"delivery_amount"`
	DeliveryCurrency string          `gorm:"size:8;not null" json:"delivery_currency"`

	DeliveryMethod DeliveryMethod `gorm:"size:16;not null" json:"delivery_method"`
	RecipientName  string         `gorm:"size:128;not null" json:"recipient_name"`
	// RecipientUserID 指定的收款侧用户，可自助确认送达。
	RecipientUserID      *uint  `gorm:"index" json:"recipient_user_id,omitempty"`
	RecipientBankAccount string `gorm:"size:128" json:"recipient_bank_account"`

	PaymentProofRef  string `gorm:"size:128" json:"payment_proof_ref"`
	DeliveryProofRef string `gorm:"size:128" json:"delivery_proof_ref"`

	PaymentRejectReason string     `gorm:"size:255" json:"payment_reject_reason"`
	CancelReason        string     `gorm:"size:255" json:"cancel_reason"`
	CancelledBy         string     `gorm:"size:64" json:"cancelled_by"`
	CancelledAt         *time.Time `json:"cancelled_at"`

	ValidatedAt *time.Time `json:"validated_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (Remittance) TableName() string { return "remittances" }
