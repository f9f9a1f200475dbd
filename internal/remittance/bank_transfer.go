package remittance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remit_mall/internal/apperr"
	"remit_mall/internal/lifecycle"
	"remit_mall/internal/model"

	"gorm.io/gorm"
)

// 银行转账子台账：非现金汇款进入交付准备后的出金跟踪，
// 独立小状态机 pending -> processing -> {completed|failed}，
// 每次更新盖操作人与时间。

// CreateBankTransfer 为进入交付准备的非现金汇款开转账子台账，一单一条。
func (e *Engine) CreateBankTransfer(ctx context.Context, actor model.Actor, remittanceID uint) (*model.BankTransferRecord, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var bt model.BankTransferRecord
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r model.Remittance
		err := tx.First(&r, remittanceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("汇款单")
		}
		if err != nil {
			return apperr.Internal(err)
		}
		if r.DeliveryMethod == model.DeliveryCash {
			return apperr.Validation("现金到账的汇款单不需要转账子台账")
		}
		if r.Status != model.RemitProcessing {
			return apperr.StateTransition("汇款", string(r.Status), string(model.RemitProcessing))
		}

		var exists int64
		if err := tx.Model(&model.BankTransferRecord{}).
			Where("remittance_id = ?", remittanceID).Count(&exists).Error; err != nil {
			return apperr.Internal(err)
		}
		if exists > 0 {
			return apperr.Validation("该汇款单已有转账子台账")
		}

		bt = model.BankTransferRecord{
			RemittanceID:  remittanceID,
			Status:        model.TransferPending,
			UpdatedByID:   actor.ID,
			UpdatedByName: actor.Name,
		}
		if err := tx.Create(&bt).Error; err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.From(err)
	}

	e.acts.Record(ctx, entityRemittance, remittanceID, "create_bank_transfer",
		fmt.Sprintf("汇款单转账子台账已建立（#%d）", bt.ID), actor)
	return &bt, nil
}

// UpdateBankTransferStatus 推进转账状态；referenceNo 随 completed 一起落库。
func (e *Engine) UpdateBankTransferStatus(ctx context.Context, actor model.Actor, transferID uint, next model.BankTransferStatus, referenceNo string) (*model.BankTransferRecord, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var bt model.BankTransferRecord
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&bt, transferID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("转账记录")
		}
		if err != nil {
			return apperr.Internal(err)
		}
		if err := lifecycle.Check("银行转账", model.BankTransferFlow, string(bt.Status), string(next)); err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]any{
			"status":          next,
			"updated_by_id":   actor.ID,
			"updated_by_name": actor.Name,
		}
		if next == model.TransferProcessing {
			updates["started_at"] = now
		}
		if next == model.TransferCompleted || next == model.TransferFailed {
			updates["finished_at"] = now
		}
		if referenceNo != "" {
			updates["reference_no"] = referenceNo
		}

		res := tx.Model(&model.BankTransferRecord{}).
			Where("id = ? AND status = ?", bt.ID, bt.Status).
			Updates(updates)
		if res.Error != nil {
			return apperr.Internal(res.Error)
		}
		if res.RowsAffected == 0 {
			var cur model.BankTransferRecord
			if err := tx.First(&cur, bt.ID).Error; err != nil {
				return apperr.Internal(err)
			}
			return apperr.StateTransition("银行转账", string(cur.Status), string(next))
		}
		var fresh model.BankTransferRecord
		if err := tx.First(&fresh, bt.ID).Error; err != nil {
			return apperr.Internal(err)
		}
		bt = fresh
		return nil
	})
	if err != nil {
		return nil, apperr.From(err)
	}

	e.acts.Record(ctx, entityRemittance, bt.RemittanceID, "update_bank_transfer",
		fmt.Sprintf("转账子台账 #%d 状态更新为 %s", bt.ID, bt.Status), actor)
	return &bt, nil
}

// ListBankTransfers 查某汇款单的转账子台账。
func (e *Engine) ListBankTransfers(ctx context.Context, actor model.Actor, remittanceID uint) ([]model.BankTransferRecord, error) {
	if _, err := e.Get(ctx, actor, remittanceID); err != nil {
		return nil, err
	}
	var out []model.BankTransferRecord
	if err := e.db.WithContext(ctx).Where("remittance_id = ?", remittanceID).
		Order("id").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}
