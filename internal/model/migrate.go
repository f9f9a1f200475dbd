package model

import "gorm.io/gorm"

// AutoMigrate 建全部表，服务启动与测试共用。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Product{},
		&Combo{},
		&ComboItem{},
		&InventoryRecord{},
		&InventoryMovement{},
		&Order{},
		&OrderItem{},
		&RemittanceType{},
		&Remittance{},
		&BankTransferRecord{},
		&ActivityLog{},
	)
}
