package model

import "time"

// BankTransferStatus 银行转账子台账的独立小状态机。
type BankTransferStatus string

const (
	TransferPending    BankTransferStatus = "pending"
	TransferProcessing BankTransferStatus = "processing"
	TransferCompleted  BankTransferStatus = "completed"
	TransferFailed     BankTransferStatus = "failed"
)

// BankTransferRecord 非现金汇款的转账子台账，每次状态更新都盖上操作人与时间。
type BankTransferRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RemittanceID uint               `gorm:"not null;index" json:"remittance_id"`
	Status       BankTransferStatus `gorm:"size:16;not null;default:pending" json:"status"`
	ReferenceNo  string             `gorm:"size:128" json:"reference_no"`

	UpdatedByID   uint       `json:"updated_by_id"`
	UpdatedByName string     `gorm:"size:64" json:"updated_by_name"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
}

func (BankTransferRecord) TableName() string { return "bank_transfer_records" }
