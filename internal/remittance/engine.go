package remittance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remit_mall/internal/activity"
	"remit_mall/internal/apperr"
	"remit_mall/internal/lifecycle"
	"remit_mall/internal/model"
	"remit_mall/internal/notify"
	"remit_mall/internal/refno"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	entityRemittance = "remittance"
	remitNoPrefix    = "REM"

	noRetryMax = 5
)

// Engine 汇款生命周期引擎。与订单引擎结构同源，但只有一条状态链：
// 付款子阶段确认之前不允许进入交付子阶段。金额字段一律服务端重算，
// 客户端传来的总额只当展示参考，落库永远以 Calculate 的结果为准。
type Engine struct {
	db       *gorm.DB
	acts     *activity.Recorder
	notifier notify.Notifier
	log      *zap.Logger
}

func NewEngine(db *gorm.DB, acts *activity.Recorder, notifier notify.Notifier, log *zap.Logger) *Engine {
	return &Engine{db: db, acts: acts, notifier: notifier, log: log}
}

// QuoteByType 前台试算入口：取通道配置后调用纯函数 Calculate。
func (e *Engine) QuoteByType(ctx context.Context, typeID uint, amount decimal.Decimal) (Quote, error) {
	t, err := e.loadType(e.db.WithContext(ctx), typeID)
	if err != nil {
		return Quote{}, err
	}
	return Calculate(t, amount)
}

// CreateInput 建汇款单输入。
type CreateInput struct {
	RemittanceTypeID uint                 `json:"remittance_type_id" binding:"required"`
	Amount           decimal.Decimal      `json:"amount" binding:"required"`
	RecipientName    string               `json:"recipient_name" binding:"required"`
	RecipientUserID  *uint                `json:"recipient_user_id"`
	DeliveryMethod   model.DeliveryMethod `json:"delivery_method" binding:"required"`
	BankAccountRef   string               `json:"bank_account_ref"`
	PaymentProofRef  string               `json:"payment_proof_ref"`
}

// Create 建单：重跑试算、校验方式白名单、非现金必须有收款账户引用。
// 建单即带凭证的，直接落在 PAYMENT_PROOF_UPLOADED。
func (e *Engine) Create(ctx context.Context, actor model.Actor, in CreateInput) (*model.Remittance, error) {
	if in.RecipientName == "" {
		return nil, apperr.Validation("缺少收款人姓名")
	}
	if in.DeliveryMethod != model.DeliveryCash && in.BankAccountRef == "" {
		return nil, apperr.Validation("非现金到账必须提供收款银行账户")
	}

	var r model.Remittance
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := e.loadType(tx, in.RemittanceTypeID)
		if err != nil {
			return err
		}
		if !t.MethodAllowed(in.DeliveryMethod) {
			return apperr.Validation("通道 %s 不支持 %s 到账", t.Name, in.DeliveryMethod)
		}
		q, err := Calculate(t, in.Amount)
		if err != nil {
			return err
		}

		status := model.RemitPaymentPending
		if in.PaymentProofRef != "" {
			status = model.RemitPaymentProofUploaded
		}
		r = model.Remittance{
			SenderID:             actor.ID,
			RemittanceTypeID:     t.ID,
			Status:               status,
			Amount:               q.Amount,
			Commission:           q.Commission,
			TotalCharged:         q.TotalCharged,
			ExchangeRate:         q.ExchangeRate,
			DeliveryAmount:       q.DeliveryAmount,
			DeliveryCurrency:     q.DeliveryCurrency,
			DeliveryMethod:       in.DeliveryMethod,
			RecipientName:        in.RecipientName,
			RecipientUserID:      in.RecipientUserID,
			RecipientBankAccount: in.BankAccountRef,
			PaymentProofRef:      in.PaymentProofRef,
		}
		return e.insertWithRemitNo(tx, &r)
	})
	if err != nil {
		return nil, apperr.From(err)
	}

	e.acts.Record(ctx, entityRemittance, r.ID, "create",
		fmt.Sprintf("创建汇款单 %s，金额 %s，到账 %s %s", r.RemitNo, r.Amount.String(), r.DeliveryAmount.String(), r.DeliveryCurrency), actor)
	return &r, nil
}

func (e *Engine) insertWithRemitNo(tx *gorm.DB, r *model.Remittance) error {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var count int64
	if err := tx.Model(&model.Remittance{}).Where("created_at >= ?", dayStart).Count(&count).Error; err != nil {
		return apperr.Internal(err)
	}

	r.RemitNo = refno.Format(remitNoPrefix, now, count+1)
	for attempt := 0; attempt < noRetryMax; attempt++ {
		err := tx.Create(r).Error
		if err == nil {
			return nil
		}
		if !refno.IsUniqueViolation(err) {
			return apperr.Internal(err)
		}
		r.ID = 0
		r.RemitNo = refno.WithMicroSuffix(remitNoPrefix, time.Now(), count+1)
	}
	return apperr.Internal(errors.New("remittance number allocation exhausted retries"))
}

// Get 查汇款单，仅汇款人、指定收款侧用户或管理员可见。
func (e *Engine) Get(ctx context.Context, actor model.Actor, id uint) (*model.Remittance, error) {
	var r model.Remittance
	err := e.db.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("汇款单")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !actor.IsAdmin() && actor.ID != r.SenderID &&
		(r.RecipientUserID == nil || actor.ID != *r.RecipientUserID) {
		return nil, apperr.PermissionDenied("无权查看该汇款单")
	}
	return &r, nil
}

// UploadPaymentProof 上传付款凭证；拒付后的重提路径与订单一致。
func (e *Engine) UploadPaymentProof(ctx context.Context, actor model.Actor, id uint, proofRef string) (*model.Remittance, error) {
	if proofRef == "" {
		return nil, apperr.Validation("缺少付款凭证")
	}
	r, err := e.mutate(ctx, id, func(tx *gorm.DB, r *model.Remittance) error {
		if err := requireSenderOrAdmin(actor, r.SenderID); err != nil {
			return err
		}
		from := r.Status
		if from == model.RemitPaymentRejected {
			if err := lifecycle.Check("汇款", model.RemittanceFlow, string(from), string(model.RemitPaymentPending)); err != nil {
				return err
			}
			from = model.RemitPaymentPending
		}
		if err := lifecycle.Check("汇款", model.RemittanceFlow, string(from), string(model.RemitPaymentProofUploaded)); err != nil {
			return err
		}
		return e.cas(tx, r, r.Status, model.RemitPaymentProofUploaded, map[string]any{
			"payment_proof_ref":     proofRef,
			"payment_reject_reason": "",
		})
	})
	if err != nil {
		return nil, err
	}
	e.acts.Record(ctx, entityRemittance, r.ID, "upload_payment_proof",
		fmt.Sprintf("汇款单 %s 已上传付款凭证", r.RemitNo), actor)
	return r, nil
}

// ValidatePayment 确认收款。并发确认同一单只有一个成功。
func (e *Engine) ValidatePayment(ctx context.Context, actor model.Actor, id uint) (*model.Remittance, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, err := e.mutate(ctx, id, func(tx *gorm.DB, r *model.Remittance) error {
		if err := lifecycle.Check("汇款", model.RemittanceFlow, string(r.Status), string(model.RemitPaymentValidated)); err != nil {
			return err
		}
		return e.cas(tx, r, r.Status, model.RemitPaymentValidated, map[string]any{
			"validated_at": time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	e.acts.Record(ctx, entityRemittance, r.ID, "validate_payment",
		fmt.Sprintf("汇款单 %s 付款已确认", r.RemitNo), actor)
	e.notify(ctx, r.ID, "payment_validated", actor)
	return r, nil
}

// RejectPayment 拒绝收款，原因必填。
func (e *Engine) RejectPayment(ctx context.Context, actor model.Actor, id uint, reason string) (*model.Remittance, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperr.Validation("拒绝付款必须填写原因")
	}
	r, err := e.mutate(ctx, id, func(tx *gorm.DB, r *model.Remittance) error {
		if err := lifecycle.Check("汇款", model.RemittanceFlow, string(r.Status), string(model.RemitPaymentRejected)); err != nil {
			return err
		}
		return e.cas(tx, r, r.Status, model.RemitPaymentRejected, map[string]any{
			"payment_reject_reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	e.acts.Record(ctx, entityRemittance, r.ID, "reject_payment",
		fmt.Sprintf("汇款单 %s 付款被拒绝：%s", r.RemitNo, reason), actor)
	return r, nil
}

// StartProcessing 进入交付准备。此后不可取消。
func (e *Engine) StartProcessing(ctx context.Context, actor model.Actor, id uint) (*model.Remittance, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, err := e.mutate(ctx, id, func(tx *gorm.DB, r *model.Remittance) error {
		if err := lifecycle.Check("汇款", model.RemittanceFlow, string(r.Status), string(model.RemitProcessing)); err != nil {
			return err
		}
		return e.cas(tx, r, r.Status, model.RemitProcessing, nil)
	})
	if err != nil {
		return nil, err
	}
	e.acts.Record(ctx, entityRemittance, r.ID, "start_processing",
		fmt.Sprintf("汇款单 %s 进入交付准备", r.RemitNo), actor)
	return r, nil
}

// ConfirmDelivery 确认交付。操作人必须是管理员或指定的收款侧用户；
// 送达凭证是硬性要求：新传的或单上已有的，二者必居其一，否则直接失败。
func (e *Engine) ConfirmDelivery(ctx context.Context, actor model.Actor, id uint, proofRef string) (*model.Remittance, error) {
	r, err := e.mutate(ctx, id, func(tx *gorm.DB, r *model.Remittance) error {
		if !actor.IsAdmin() && (r.RecipientUserID == nil || actor.ID != *r.RecipientUserID) {
			return apperr.PermissionDenied("仅管理员或指定收款人可确认交付")
		}
		if err := lifecycle.Check("汇款", model.RemittanceFlow, string(r.Status), string(model.RemitDelivered)); err != nil {
			return err
		}
		if proofRef == "" && r.DeliveryProofRef == "" {
			return apperr.DeliveryProofRequired()
		}
		updates := map[string]any{"delivered_at": time.Now()}
		if proofRef != "" {
			updates["delivery_proof_ref"] = proofRef
		}
		return e.cas(tx, r, r.Status, model.RemitDelivered, updates)
	})
	if err != nil {
		return nil, err
	}
	e.acts.Record(ctx, entityRemittance, r.ID, "confirm_delivery",
		fmt.Sprintf("汇款单 %s 已交付收款人", r.RemitNo), actor)
	e.notify(ctx, r.ID, "delivered", actor)
	return r, nil
}

// Complete 完结汇款单。
func (e *Engine) Complete(ctx context.Context, actor model.Actor, id uint) (*model.Remittance, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, err := e.mutate(ctx, id, func(tx *gorm.DB, r *model.Remittance) error {
		if err := lifecycle.Check("汇款", model.RemittanceFlow, string(r.Status), string(model.RemitCompleted)); err != nil {
			return err
		}
		return e.cas(tx, r, r.Status, model.RemitCompleted, map[string]any{
			"completed_at": time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	e.acts.Record(ctx, entityRemittance, r.ID, "complete",
		fmt.Sprintf("汇款单 %s 已完结", r.RemitNo), actor)
	return r, nil
}

// Cancel 取消汇款单，进入 PROCESSING 之前有效。
func (e *Engine) Cancel(ctx context.Context, actor model.Actor, id uint, reason string) (*model.Remittance, error) {
	if reason == "" {
		return nil, apperr.Validation("取消汇款必须填写原因")
	}
	r, err := e.mutate(ctx, id, func(tx *gorm.DB, r *model.Remittance) error {
		if err := requireSenderOrAdmin(actor, r.SenderID); err != nil {
			return err
		}
		if err := lifecycle.Check("汇款", model.RemittanceFlow, string(r.Status), string(model.RemitCancelled)); err != nil {
			return err
		}
		return e.cas(tx, r, r.Status, model.RemitCancelled, map[string]any{
			"cancel_reason": reason,
			"cancelled_by":  actor.Name,
			"cancelled_at":  time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	e.acts.Record(ctx, entityRemittance, r.ID, "cancel",
		fmt.Sprintf("汇款单 %s 已取消：%s", r.RemitNo, reason), actor)
	return r, nil
}

func (e *Engine) loadType(tx *gorm.DB, typeID uint) (model.RemittanceType, error) {
	var t model.RemittanceType
	err := tx.First(&t, typeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t, apperr.NotFound("汇款通道")
	}
	if err != nil {
		return t, apperr.Internal(err)
	}
	return t, nil
}

func (e *Engine) mutate(ctx context.Context, id uint, fn func(tx *gorm.DB, r *model.Remittance) error) (*model.Remittance, error) {
	var r model.Remittance
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&r, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("汇款单")
		}
		if err != nil {
			return apperr.Internal(err)
		}
		return fn(tx, &r)
	})
	if err != nil {
		return nil, apperr.From(err)
	}
	return &r, nil
}

// cas 状态 guard 的单条 UPDATE，输家按库内当前状态报错。
func (e *Engine) cas(tx *gorm.DB, r *model.Remittance, guard model.RemittanceStatus, next model.RemittanceStatus, extra map[string]any) error {
	updates := map[string]any{"status": next}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&model.Remittance{}).
		Where("id = ? AND status = ?", r.ID, guard).
		Updates(updates)
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		var cur model.Remittance
		if err := tx.First(&cur, r.ID).Error; err != nil {
			return apperr.Internal(err)
		}
		return apperr.StateTransition("汇款", string(cur.Status), string(next))
	}
	// 往已填充的结构体里扫描时 NULL 列不会覆盖旧指针值，重读用全新结构体
	var fresh model.Remittance
	if err := tx.First(&fresh, r.ID).Error; err != nil {
		return apperr.Internal(err)
	}
	*r = fresh
	return nil
}

func (e *Engine) notify(ctx context.Context, id uint, transition string, actor model.Actor) {
	e.notifier.Publish(ctx, notify.Event{
		EntityType: entityRemittance,
		EntityID:   id,
		Transition: transition,
		Actor:      actor.Name,
	})
}

func requireAdmin(actor model.Actor) error {
	if !actor.IsAdmin() {
		return apperr.PermissionDenied("该操作仅限管理员")
	}
	return nil
}

func requireSenderOrAdmin(actor model.Actor, senderID uint) error {
	if actor.IsAdmin() || actor.ID == senderID {
		return nil
	}
	return apperr.PermissionDenied("无权操作他人的汇款单")
}
