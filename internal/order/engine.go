package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remit_mall/internal/activity"
	"remit_mall/internal/apperr"
	"remit_mall/internal/inventory"
	"remit_mall/internal/lifecycle"
	"remit_mall/internal/model"
	"remit_mall/internal/notify"
	"remit_mall/internal/refno"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	entityOrder   = "order"
	orderNoPrefix = "ORD"

	noRetryMax = 5
)

// Engine 订单生命周期引擎：两台正交状态机（履约 / 付款）、单号分配、
// 库存预占/消耗/释放的编排。每个操作在一个事务内跑完主变更；
// 活动日志、库存流水、通知都在事务提交后尽力而为地补发。
// 状态迁移一律走"带状态 guard 的单条 UPDATE"：并发的同名操作只有一个会赢，
// 输家拿到 InvalidStateTransition。
type Engine struct {
	db       *gorm.DB
	inv      *inventory.Manager
	acts     *activity.Recorder
	notifier notify.Notifier
	log      *zap.Logger
}

func NewEngine(db *gorm.DB, inv *inventory.Manager, acts *activity.Recorder, notifier notify.Notifier, log *zap.Logger) *Engine {
	return &Engine{db: db, inv: inv, acts: acts, notifier: notifier, log: log}
}

// CreateOrderInput 建单输入。金额相关字段只收折扣与运费，行价服务端自取。
type CreateOrderInput struct {
	Items             []CreateItemInput `json:"items" binding:"required,min=1"`
	Currency          string            `json:"currency" binding:"required"`
	ShippingZone      string            `json:"shipping_zone"`
	PaymentAccountRef string            `json:"payment_account_ref"`
	Discount          decimal.Decimal   `json:"discount"`
	ShippingFee       decimal.Decimal   `json:"shipping_fee"`
}

// CreateOrder 建单：校验 -> 批量取价 -> 分配单号（冲突重试）-> 落订单与行 ->
// 批量预占库存，全部在一个事务里；任何一半失败整体回滚，不会留下半预占状态。
func (e *Engine) CreateOrder(ctx context.Context, actor model.Actor, in CreateOrderInput) (*model.Order, error) {
	if len(in.Items) == 0 {
		return nil, apperr.Validation("订单不能为空")
	}
	if in.Discount.IsNegative() || in.ShippingFee.IsNegative() {
		return nil, apperr.Validation("折扣与运费不能为负数")
	}

	var (
		o         model.Order
		movements []model.InventoryMovement
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, err := resolveNewItems(tx, in.Items)
		if err != nil {
			return err
		}

		total := resolved.subtotal.Sub(in.Discount).Add(in.ShippingFee)
		if !total.IsPositive() {
			return apperr.Validation("订单总额必须大于 0")
		}

		o = model.Order{
			UserID:            actor.ID,
			OrderStatus:       model.OrderPending,
			PaymentStatus:     model.PaymentPending,
			Subtotal:          resolved.subtotal,
			Discount:          in.Discount,
			ShippingFee:       in.ShippingFee,
			Total:             total,
			Currency:          in.Currency,
			ShippingZone:      in.ShippingZone,
			PaymentAccountRef: in.PaymentAccountRef,
		}
		if err := e.insertWithOrderNo(tx, &o); err != nil {
			return err
		}

		for i := range resolved.items {
			resolved.items[i].OrderID = o.ID
		}
		if err := tx.Create(&resolved.items).Error; err != nil {
			return apperr.Internal(err)
		}

		if len(resolved.deltas) > 0 {
			movements, err = e.inv.ReserveBatch(tx, resolved.deltas, inventory.Ref{Kind: entityOrder, ID: o.ID})
			if err != nil {
				return err
			}
			if err := backfillInventoryIDs(tx, resolved.items); err != nil {
				return err
			}
		}
		o.Items = resolved.items
		return nil
	})
	if err != nil {
		return nil, apperr.From(err)
	}

	e.inv.RecordMovements(ctx, movements)
	e.acts.Record(ctx, entityOrder, o.ID, "create",
		fmt.Sprintf("创建订单 %s，共 %d 行，总额 %s %s", o.OrderNo, len(o.Items), o.Total.String(), o.Currency), actor)
	return &o, nil
}

// insertWithOrderNo 分配 ORD-YYYYMMDD-NNNNN 单号并插入；
// 唯一冲突时换带微秒后缀的单号重试，对调用者不可见。
func (e *Engine) insertWithOrderNo(tx *gorm.DB, o *model.Order) error {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var count int64
	if err := tx.Model(&model.Order{}).Where("created_at >= ?", dayStart).Count(&count).Error; err != nil {
		return apperr.Internal(err)
	}

	o.OrderNo = refno.Format(orderNoPrefix, now, count+1)
	for attempt := 0; attempt < noRetryMax; attempt++ {
		err := tx.Create(o).Error
		if err == nil {
			return nil
		}
		if !refno.IsUniqueViolation(err) {
			return apperr.Internal(err)
		}
		o.ID = 0
		o.OrderNo = refno.WithMicroSuffix(orderNoPrefix, time.Now(), count+1)
	}
	return apperr.Internal(errors.New("order number allocation exhausted retries"))
}

// backfillInventoryIDs 给直接商品行回填其预占的库存台账 ID（组合扇出不回填）。
func backfillInventoryIDs(tx *gorm.DB, items []model.OrderItem) error {
	pids := make([]uint, 0, len(items))
	for _, it := range items {
		if it.ItemType == model.ItemProduct && it.ProductID != nil {
			pids = append(pids, *it.ProductID)
		}
	}
	if len(pids) == 0 {
		return nil
	}
	var recs []model.InventoryRecord
	if err := tx.Where("product_id IN ?", pids).Find(&recs).Error; err != nil {
		return apperr.Internal(err)
	}
	invByProduct := make(map[uint]uint, len(recs))
	for _, r := range recs {
		invByProduct[r.ProductID] = r.ID
	}
	for i := range items {
		it := &items[i]
		if it.ItemType != model.ItemProduct || it.ProductID == nil {
			continue
		}
		if invID, ok := invByProduct[*it.ProductID]; ok {
			it.InventoryID = &invID
			if err := tx.Model(&model.OrderItem{}).Where("id = ?", it.ID).
				UpdateColumn("inventory_id", invID).Error; err != nil {
				return apperr.Internal(err)
			}
		}
	}
	return nil
}

// Get 查单（含行），仅本人或管理员可见。
func (e *Engine) Get(ctx context.Context, actor model.Actor, orderID uint) (*model.Order, error) {
	var o model.Order
	err := e.db.WithContext(ctx).Preload("Items").First(&o, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("订单")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := requireOwnerOrAdmin(actor, o.UserID); err != nil {
		return nil, err
	}
	return &o, nil
}

// UploadPaymentProof 上传付款凭证。
// 常规路径 PENDING -> PROOF_UPLOADED；拒付后的重提走 REJECTED -> PENDING ->
// PROOF_UPLOADED，此时重新预占库存（拒付时已释放）。
func (e *Engine) UploadPaymentProof(ctx context.Context, actor model.Actor, orderID uint, proofRef string) (*model.Order, error) {
	if proofRef == "" {
		return nil, apperr.Validation("缺少付款凭证")
	}
	var movements []model.InventoryMovement
	o, err := e.mutate(ctx, orderID, func(tx *gorm.DB, o *model.Order) error {
		if err := requireOwnerOrAdmin(actor, o.UserID); err != nil {
			return err
		}
		// 已取消的订单不再收凭证，REJECTED 重提路径也不得借机重新预占
		if o.OrderStatus == model.OrderCancelled {
			return apperr.Validation("订单已取消，不能上传付款凭证")
		}
		from := o.PaymentStatus
		if from == model.PaymentRejected {
			if err := lifecycle.Check("付款", model.PaymentFlow, string(from), string(model.PaymentPending)); err != nil {
				return err
			}
			deltas, err := fanOutDeltas(tx, o.Items)
			if err != nil {
				return err
			}
			if len(deltas) > 0 {
				movements, err = e.inv.ReserveBatch(tx, deltas, inventory.Ref{Kind: entityOrder, ID: o.ID})
				if err != nil {
					return err
				}
			}
			from = model.PaymentPending
		}
		if err := lifecycle.Check("付款", model.PaymentFlow, string(from), string(model.PaymentProofUploaded)); err != nil {
			return err
		}
		return e.cas(tx, o,
			map[string]any{"payment_status": o.PaymentStatus},
			map[string]any{
				"payment_status":        model.PaymentProofUploaded,
				"payment_proof_ref":     proofRef,
				"payment_reject_reason": "",
			},
			"付款", string(model.PaymentProofUploaded))
	})
	if err != nil {
		return nil, err
	}
	e.inv.RecordMovements(ctx, movements)
	e.acts.Record(ctx, entityOrder, o.ID, "upload_payment_proof",
		fmt.Sprintf("订单 %s 已上传付款凭证", o.OrderNo), actor)
	return o, nil
}

// ValidatePayment 确认付款。整个引擎最重的操作：
// 组合扇出只用固定次数的批量查询解析，预占在此一次性转为永久消耗，
// 同一瞬间 payment -> VALIDATED、order -> PROCESSING，交叉不变量恒成立。
// 两个并发确认只有一个成功，另一个拿 InvalidStateTransition。
func (e *Engine) ValidatePayment(ctx context.Context, actor model.Actor, orderID uint) (*model.Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var movements []model.InventoryMovement
	o, err := e.mutate(ctx, orderID, func(tx *gorm.DB, o *model.Order) error {
		if err := lifecycle.Check("付款", model.PaymentFlow, string(o.PaymentStatus), string(model.PaymentValidated)); err != nil {
			return err
		}
		if err := lifecycle.Check("订单", model.OrderFlow, string(o.OrderStatus), string(model.OrderProcessing)); err != nil {
			return err
		}

		deltas, err := fanOutDeltas(tx, o.Items)
		if err != nil {
			return err
		}
		if len(deltas) > 0 {
			movements, err = e.inv.CommitBatch(tx, deltas, inventory.Ref{Kind: entityOrder, ID: o.ID})
			if err != nil {
				return err
			}
		}

		now := time.Now()
		return e.cas(tx, o,
			map[string]any{
				"payment_status": model.PaymentProofUploaded,
				"order_status":   model.OrderPending,
			},
			map[string]any{
				"payment_status": model.PaymentValidated,
				"order_status":   model.OrderProcessing,
				"validated_at":   now,
			},
			"付款", string(model.PaymentValidated))
	})
	if err != nil {
		return nil, err
	}
	e.inv.RecordMovements(ctx, movements)
	e.acts.Record(ctx, entityOrder, o.ID, "validate_payment",
		fmt.Sprintf("订单 %s 付款已确认，进入备货", o.OrderNo), actor)
	e.notify(ctx, o.ID, "payment_validated", actor)
	return o, nil
}

// RejectPayment 拒绝付款并释放预占库存，订单留在 PENDING 等待重提。
func (e *Engine) RejectPayment(ctx context.Context, actor model.Actor, orderID uint, reason string) (*model.Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperr.Validation("拒绝付款必须填写原因")
	}
	var movements []model.InventoryMovement
	o, err := e.mutate(ctx, orderID, func(tx *gorm.DB, o *model.Order) error {
		if err := lifecycle.Check("付款", model.PaymentFlow, string(o.PaymentStatus), string(model.PaymentRejected)); err != nil {
			return err
		}
		if holdsReservation(o) {
			deltas, err := fanOutDeltas(tx, o.Items)
			if err != nil {
				return err
			}
			if len(deltas) > 0 {
				movements, err = e.inv.ReleaseBatch(tx, deltas, inventory.Ref{Kind: entityOrder, ID: o.ID})
				if err != nil {
					return err
				}
			}
		}
		return e.cas(tx, o,
			map[string]any{"payment_status": o.PaymentStatus},
			map[string]any{
				"payment_status":        model.PaymentRejected,
				"payment_reject_reason": reason,
			},
			"付款", string(model.PaymentRejected))
	})
	if err != nil {
		return nil, err
	}
	e.inv.RecordMovements(ctx, movements)
	e.acts.Record(ctx, entityOrder, o.ID, "reject_payment",
		fmt.Sprintf("订单 %s 付款被拒绝：%s", o.OrderNo, reason), actor)
	return o, nil
}

// StartProcessing 手工把订单推进备货。正常流在 ValidatePayment 里自动完成，
// 这里兜异常流：迁移合法性之外还要满足交叉不变量（钱没确认不允许离开 PENDING）。
func (e *Engine) StartProcessing(ctx context.Context, actor model.Actor, orderID uint) (*model.Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	o, err := e.transition(ctx, actor, orderID, model.OrderProcessing, map[string]any{}, "start_processing", "订单 %s 开始备货")
	if err != nil {
		return nil, err
	}
	return o, nil
}

// MarkShipped 发货，运单信息必填。
func (e *Engine) MarkShipped(ctx context.Context, actor model.Actor, orderID uint, trackingInfo string) (*model.Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if trackingInfo == "" {
		return nil, apperr.Validation("发货必须填写运单信息")
	}
	o, err := e.transition(ctx, actor, orderID, model.OrderShipped,
		map[string]any{"tracking_info": trackingInfo, "shipped_at": time.Now()},
		"mark_shipped", "订单 %s 已发货")
	if err != nil {
		return nil, err
	}
	e.notify(ctx, o.ID, "shipped", actor)
	return o, nil
}

// MarkDelivered 确认送达，可附送达凭证引用。
func (e *Engine) MarkDelivered(ctx context.Context, actor model.Actor, orderID uint, proofRef string) (*model.Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	updates := map[string]any{"delivered_at": time.Now()}
	if proofRef != "" {
		updates["delivery_proof_ref"] = proofRef
	}
	o, err := e.transition(ctx, actor, orderID, model.OrderDelivered, updates,
		"mark_delivered", "订单 %s 已送达")
	if err != nil {
		return nil, err
	}
	e.notify(ctx, o.ID, "delivered", actor)
	return o, nil
}

// Complete 完结订单。
func (e *Engine) Complete(ctx context.Context, actor model.Actor, orderID uint, notes string) (*model.Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	updates := map[string]any{"completed_at": time.Now()}
	if notes != "" {
		updates["notes"] = notes
	}
	return e.transition(ctx, actor, orderID, model.OrderCompleted, updates,
		"complete", "订单 %s 已完结")
}

// Cancel 取消订单（仅 PENDING / PROCESSING）。本人或管理员可操作，原因必填。
// 仅在订单仍持有预占时释放库存；已消耗的不回补，拒付后已释放的不重复释放。
func (e *Engine) Cancel(ctx context.Context, actor model.Actor, orderID uint, reason string) (*model.Order, error) {
	if reason == "" {
		return nil, apperr.Validation("取消订单必须填写原因")
	}
	var movements []model.InventoryMovement
	o, err := e.mutate(ctx, orderID, func(tx *gorm.DB, o *model.Order) error {
		if err := requireOwnerOrAdmin(actor, o.UserID); err != nil {
			return err
		}
		if err := lifecycle.Check("订单", model.OrderFlow, string(o.OrderStatus), string(model.OrderCancelled)); err != nil {
			return err
		}
		if holdsReservation(o) {
			deltas, err := fanOutDeltas(tx, o.Items)
			if err != nil {
				return err
			}
			if len(deltas) > 0 {
				movements, err = e.inv.ReleaseBatch(tx, deltas, inventory.Ref{Kind: entityOrder, ID: o.ID})
				if err != nil {
					return err
				}
			}
		}
		now := time.Now()
		return e.cas(tx, o,
			map[string]any{"order_status": o.OrderStatus},
			map[string]any{
				"order_status":  model.OrderCancelled,
				"cancel_reason": reason,
				"cancelled_by":  actor.Name,
				"cancelled_at":  now,
			},
			"订单", string(model.OrderCancelled))
	})
	if err != nil {
		return nil, err
	}
	e.inv.RecordMovements(ctx, movements)
	e.acts.Record(ctx, entityOrder, o.ID, "cancel",
		fmt.Sprintf("订单 %s 已取消：%s", o.OrderNo, reason), actor)
	return o, nil
}

// Reopen 重开已取消的订单：订单与付款两轴都归零，取消痕迹清空，
// 并对可追踪行重新预占——当下库存不够则重开失败，orders 保持 CANCELLED，
// 不会在枯竭的库存上留下虚假预占。管理员重开必须给原因；本人自助重开可不填。
func (e *Engine) Reopen(ctx context.Context, actor model.Actor, orderID uint, reason string) (*model.Order, error) {
	if actor.IsAdmin() && reason == "" {
		return nil, apperr.Validation("管理员重开订单必须填写原因")
	}
	var movements []model.InventoryMovement
	o, err := e.mutate(ctx, orderID, func(tx *gorm.DB, o *model.Order) error {
		if err := requireOwnerOrAdmin(actor, o.UserID); err != nil {
			return err
		}
		if err := lifecycle.Check("订单", model.OrderFlow, string(o.OrderStatus), string(model.OrderPending)); err != nil {
			return err
		}
		// 付款确认时库存已转为消耗，重开再确认一次会二次扣减，只能另下新单
		if o.PaymentStatus == model.PaymentValidated {
			return apperr.StateTransition("付款", string(o.PaymentStatus), string(model.PaymentPending))
		}
		deltas, err := fanOutDeltas(tx, o.Items)
		if err != nil {
			return err
		}
		if len(deltas) > 0 {
			movements, err = e.inv.ReserveBatch(tx, deltas, inventory.Ref{Kind: entityOrder, ID: o.ID})
			if err != nil {
				return err
			}
		}
		return e.cas(tx, o,
			map[string]any{"order_status": o.OrderStatus},
			map[string]any{
				"order_status":          model.OrderPending,
				"payment_status":        model.PaymentPending,
				"payment_proof_ref":     "",
				"payment_reject_reason": "",
				"cancel_reason":         "",
				"cancelled_by":          "",
				"cancelled_at":          nil,
				"validated_at":          nil,
			},
			"订单", string(model.OrderPending))
	})
	if err != nil {
		return nil, err
	}
	e.inv.RecordMovements(ctx, movements)
	desc := fmt.Sprintf("订单 %s 已重开", o.OrderNo)
	if reason != "" {
		desc = fmt.Sprintf("订单 %s 已重开：%s", o.OrderNo, reason)
	}
	e.acts.Record(ctx, entityOrder, o.ID, "reopen", desc, actor)
	return o, nil
}

// transition 纯状态推进类操作的公共路径（不涉及库存）。
func (e *Engine) transition(ctx context.Context, actor model.Actor, orderID uint, next model.OrderStatus, extra map[string]any, action, descFormat string) (*model.Order, error) {
	o, err := e.mutate(ctx, orderID, func(tx *gorm.DB, o *model.Order) error {
		if err := lifecycle.Check("订单", model.OrderFlow, string(o.OrderStatus), string(next)); err != nil {
			return err
		}
		// 交叉不变量：除取消外，离开 PENDING 的前提是付款已确认
		if o.OrderStatus == model.OrderPending && next != model.OrderCancelled &&
			o.PaymentStatus != model.PaymentValidated {
			return apperr.StateTransition("订单", string(o.OrderStatus), string(next))
		}
		updates := map[string]any{"order_status": next}
		for k, v := range extra {
			updates[k] = v
		}
		return e.cas(tx, o,
			map[string]any{"order_status": o.OrderStatus},
			updates,
			"订单", string(next))
	})
	if err != nil {
		return nil, err
	}
	e.acts.Record(ctx, entityOrder, o.ID, action, fmt.Sprintf(descFormat, o.OrderNo), actor)
	return o, nil
}

// mutate 加载订单并在一个事务内执行变更。
func (e *Engine) mutate(ctx context.Context, orderID uint, fn func(tx *gorm.DB, o *model.Order) error) (*model.Order, error) {
	var o model.Order
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Items").First(&o, orderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("订单")
		}
		if err != nil {
			return apperr.Internal(err)
		}
		return fn(tx, &o)
	})
	if err != nil {
		return nil, apperr.From(err)
	}
	return &o, nil
}

// cas 带状态 guard 的单条 UPDATE。影响行数为 0 说明并发竞争输了：
// 按库内当前状态报 InvalidStateTransition，绝不盲写。
func (e *Engine) cas(tx *gorm.DB, o *model.Order, guard, updates map[string]any, entity, requested string) error {
	q := tx.Model(&model.Order{}).Where("id = ?", o.ID)
	for col, val := range guard {
		q = q.Where(col+" = ?", val)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		var cur model.Order
		if err := tx.First(&cur, o.ID).Error; err != nil {
			return apperr.Internal(err)
		}
		current := string(cur.OrderStatus)
		if entity == "付款" {
			current = string(cur.PaymentStatus)
		}
		return apperr.StateTransition(entity, current, requested)
	}
	// 重读进全新结构体再整体回填：往已填充的结构体里扫描时，
	// 变回 NULL 的列不会覆盖旧指针值
	var fresh model.Order
	if err := tx.First(&fresh, o.ID).Error; err != nil {
		return apperr.Internal(err)
	}
	fresh.Items = o.Items
	*o = fresh
	return nil
}

// holdsReservation 判断订单当前是否持有库存预占：
// 拒付和取消都会释放预占，付款确认会把预占转为消耗，
// 只有订单未取消且付款处于 PENDING / PROOF_UPLOADED 时预占才存在。
func holdsReservation(o *model.Order) bool {
	if o.OrderStatus == model.OrderCancelled {
		return false
	}
	return o.PaymentStatus == model.PaymentPending || o.PaymentStatus == model.PaymentProofUploaded
}

func (e *Engine) notify(ctx context.Context, orderID uint, transition string, actor model.Actor) {
	e.notifier.Publish(ctx, notify.Event{
		EntityType: entityOrder,
		EntityID:   orderID,
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

func requireOwnerOrAdmin(actor model.Actor, ownerID uint) error {
	if actor.IsAdmin() || actor.ID == ownerID {
		return nil
	}
	return apperr.PermissionDenied("无权操作他人的订单")
}
