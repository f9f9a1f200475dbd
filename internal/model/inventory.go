package model

import "time"

// InventoryRecord 每个商品一行的库存台账。
// 不变量：0 <= reserved_quantity <= on_hand_quantity，由预占管理器的条件更新保证。
// 可用量永远是推导值，不单独落库。
type InventoryRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProductID        uint  `gorm:"not null;uniqueIndex" json:"product_id"`
	OnHandQuantity   int64 `gorm:"not null;default:0" json:"on_hand_quantity"`
	ReservedQuantity int64 `gorm:"not null;default:0" json:"reserved_quantity"`
}

func (InventoryRecord) TableName() string { return "inventory_records" }

// Available 可用库存 = 在库 - 已预占，每次现算。
func (r InventoryRecord) Available() int64 {
	return r.OnHandQuantity - r.ReservedQuantity
}

// MovementKind 库存流水类型。
type MovementKind string

const (
	MovementReserve MovementKind = "reserve" // 预占：reserved +q
	MovementRelease MovementKind = "release" // 释放：reserved -q（下限 0）
	MovementCommit  MovementKind = "commit"  // 消耗：on_hand 与 reserved 同减 q
	MovementRestock MovementKind = "restock" // 入库：on_hand +q
)

// InventoryMovement 只追加的库存审计流水。
// 写入失败只记日志，绝不回滚主流程（非关键审计路径）。
type InventoryMovement struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ProductID     uint         `gorm:"not null;index" json:"product_id"`
	Kind          MovementKind `gorm:"size:16;not null" json:"kind"`
	QuantityDelta int64        `gorm:"not null" json:"quantity_delta"` // 带符号
	RefKind       string       `gorm:"size:16;index:idx_movement_ref" json:"ref_kind"`
	RefID         uint         `gorm:"index:idx_movement_ref" json:"ref_id"`
}

func (InventoryMovement) TableName() string { return "inventory_movements" }
