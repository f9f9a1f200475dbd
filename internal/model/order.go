package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 订单主档。履约状态与付款状态是两条正交轴：
// order_status 只有在 payment_status=VALIDATED 后才允许离开 PENDING
//（取消除外），该交叉不变量在每次迁移时强制检查。
// 订单永不物理删除，取消只是状态。
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderNo string `gorm:"size:64;uniqueIndex;not null" json:"order_no"`
	UserID  uint   `gorm:"not null;index" json:"user_id"`

	OrderStatus   OrderStatus   `gorm:"size:32;not null;index" json:"order_status"`
	PaymentStatus PaymentStatus `gorm:"size:32;not null;index" json:"payment_status"`

	Subtotal    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"subtotal"`
	Discount    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"discount"`
	ShippingFee decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"shipping_fee"`
	Total       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"total"`
	Currency    string          `gorm:"size:8;not null" json:"currency"`

	ShippingZone      string `gorm:"size:64" json:"shipping_zone"`
	PaymentAccountRef string `gorm:"size:128" json:"payment_account_ref"`

	// 凭证只存外部文件库返回的引用，不存字节。
	PaymentProofRef  string `gorm:"size:128" json:"payment_proof_ref"`
	DeliveryProofRef string `gorm:"size:128" json:"delivery_proof_ref"`
	TrackingInfo     string `gorm:"size:255" json:"tracking_info"`
	Notes            string `gorm:"size:255" json:"notes"`

	PaymentRejectReason string `gorm:"size:255" json:"payment_reject_reason"`

	CancelReason string     `gorm:"size:255" json:"cancel_reason"`
	CancelledBy  string     `gorm:"size:64" json:"cancelled_by"`
	CancelledAt  *time.Time `json:"cancelled_at"`

	ValidatedAt *time.Time `json:"validated_at"`
	ShippedAt   *time.Time `json:"shipped_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	CompletedAt *time.Time `json:"completed_at"`

	Items []OrderItem `json:"items"`
}

func (Order) TableName() string { return "orders" }

// OrderItemType 订单行类型：商品 / 组合 / 汇款服务。
type OrderItemType string

const (
	ItemProduct    OrderItemType = "product"
	ItemCombo      OrderItemType = "combo"
	ItemRemittance OrderItemType = "remittance"
)

// OrderItem 订单行。建单后不可修改，单价是下单时刻的快照；
// InventoryID 记录直接商品行预占的库存台账（组合行的扇出不回填）。
type OrderItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderID          uint          `gorm:"not null;index" json:"order_id"`
	ItemType         OrderItemType `gorm:"size:16;not null" json:"item_type"`
	ProductID        *uint         `gorm:"index" json:"product_id,omitempty"`
	ComboID          *uint         `gorm:"index" json:"combo_id,omitempty"`
	RemittanceTypeID *uint         `json:"remittance_type_id,omitempty"`
	InventoryID      *uint         `json:"inventory_id,omitempty"`

	Quantity  int64           `gorm:"not null;default:1" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"line_total"`
}

func (OrderItem) TableName() string { return "order_items" }
