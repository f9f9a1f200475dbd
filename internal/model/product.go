package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product 商城商品。库存数据独立存放在 InventoryRecord，
// Trackable=false 的商品（虚拟服务类）不做库存预占。
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name      string          `gorm:"size:128;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`
	// 不带 default 标签：gorm 对带默认值的字段会跳过零值写入，
	// Trackable=false 会被悄悄存成 true。创建路径自行给定取值。
	Trackable bool            `gorm:"not null" json:"trackable"`
}

func (Product) TableName() string { return "products" }

// Combo 固定搭配的商品组合，售价独立于成员商品之和。
type Combo struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name  string          `gorm:"size:128;not null" json:"name"`
	Price decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`
	Items []ComboItem     `json:"items"`
}

func (Combo) TableName() string { return "combos" }

// ComboItem 组合的成员明细：买一份组合要消耗每个成员商品 Quantity 件库存。
type ComboItem struct {
	ID        uint  `gorm:"primarykey" json:"id"`
	ComboID   uint  `gorm:"not null;index" json:"combo_id"`
	ProductID uint  `gorm:"not null;index" json:"product_id"`
	Quantity  int64 `gorm:"not null;default:1" json:"quantity"`
}

func (ComboItem) TableName() string { return "combo_items" }
