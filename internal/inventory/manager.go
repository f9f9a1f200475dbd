package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"remit_mall/internal/apperr"
	"remit_mall/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager 库存预占管理器。
// 数量变更全部走"带条件的单条 UPDATE"（乐观比较后更新），同商品并发互斥由
// 数据库原子性保证，不依赖进程内锁；这是防超卖的唯一关卡。
// 流水（InventoryMovement）是非关键审计路径：主事务提交后再补写，失败只记日志。
type Manager struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewManager(db *gorm.DB, log *zap.Logger) *Manager {
	return &Manager{db: db, log: log}
}

// LineDelta 一次批量操作中某个商品的数量变化。
type LineDelta struct {
	ProductID uint
	Quantity  int64
}

// Ref 流水回溯到触发它的业务单据。
type Ref struct {
	Kind string // "order" / "remittance" / "admin"
	ID   uint
}

// MergeLines 把 N 条订单行合并为 M 个商品的净变化量（N 行 -> M 商品），
// 后续取数与写回都按商品做，轮次是 O(M) 而不是 O(N)。
func MergeLines(lines []LineDelta) []LineDelta {
	byProduct := make(map[uint]int64, len(lines))
	for _, l := range lines {
		byProduct[l.ProductID] += l.Quantity
	}
	out := make([]LineDelta, 0, len(byProduct))
	for pid, qty := range byProduct {
		out = append(out, LineDelta{ProductID: pid, Quantity: qty})
	}
	// 固定顺序，避免多事务交叉加锁造成死锁
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Reserve 预占单个商品库存；可用量不足返回 InsufficientStock。
func (m *Manager) Reserve(ctx context.Context, productID uint, qty int64, ref Ref) error {
	return m.single(ctx, productID, qty, ref, m.ReserveBatch)
}

// Release 释放预占，下限为 0；用于拒付/取消。
func (m *Manager) Release(ctx context.Context, productID uint, qty int64, ref Ref) error {
	return m.single(ctx, productID, qty, ref, m.ReleaseBatch)
}

// Commit 把预占转为永久消耗（在库与预占同减）；只在付款确认时调用。
func (m *Manager) Commit(ctx context.Context, productID uint, qty int64, ref Ref) error {
	return m.single(ctx, productID, qty, ref, m.CommitBatch)
}

type batchFn func(tx *gorm.DB, lines []LineDelta, ref Ref) ([]model.InventoryMovement, error)

func (m *Manager) single(ctx context.Context, productID uint, qty int64, ref Ref, fn batchFn) error {
	var movements []model.InventoryMovement
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		movements, err = fn(tx, []LineDelta{{ProductID: productID, Quantity: qty}}, ref)
		return err
	})
	if err != nil {
		return err
	}
	m.RecordMovements(ctx, movements)
	return nil
}

// ReserveBatch 在调用方事务内批量预占。
// 一次 IN 查询取出全部受影响台账，内存里核对缺口，再逐商品做条件写回；
// 任何一个商品不足则整体失败（由外层事务回滚）。
func (m *Manager) ReserveBatch(tx *gorm.DB, lines []LineDelta, ref Ref) ([]model.InventoryMovement, error) {
	merged := MergeLines(lines)
	records, err := m.fetch(tx, merged)
	if err != nil {
		return nil, err
	}

	// 先用快照核对一遍，尽早给出准确的缺口明细
	for _, l := range merged {
		rec := records[l.ProductID]
		if rec.Available() < l.Quantity {
			return nil, apperr.InsufficientStock(l.ProductID, l.Quantity, rec.Available())
		}
	}

	movements := make([]model.InventoryMovement, 0, len(merged))
	for _, l := range merged {
		// 条件更新是并发下的最终裁决：guard 不满足时影响行数为 0
		res := tx.Model(&model.InventoryRecord{}).
			Where("product_id = ? AND on_hand_quantity - reserved_quantity >= ?", l.ProductID, l.Quantity).
			UpdateColumn("reserved_quantity", gorm.Expr("reserved_quantity + ?", l.Quantity))
		if res.Error != nil {
			return nil, apperr.Internal(res.Error)
		}
		if res.RowsAffected == 0 {
			cur, err := m.reload(tx, l.ProductID)
			if err != nil {
				return nil, err
			}
			return nil, apperr.InsufficientStock(l.ProductID, l.Quantity, cur.Available())
		}
		movements = append(movements, m.movement(l.ProductID, model.MovementReserve, l.Quantity, ref))
	}
	return movements, nil
}

// ReleaseBatch 在调用方事务内批量释放预占，数量下限 0。
func (m *Manager) ReleaseBatch(tx *gorm.DB, lines []LineDelta, ref Ref) ([]model.InventoryMovement, error) {
	merged := MergeLines(lines)
	records, err := m.fetch(tx, merged)
	if err != nil {
		return nil, err
	}

	movements := make([]model.InventoryMovement, 0, len(merged))
	for _, l := range merged {
		res := tx.Model(&model.InventoryRecord{}).
			Where("product_id = ?", l.ProductID).
			UpdateColumn("reserved_quantity",
				gorm.Expr("CASE WHEN reserved_quantity >= ? THEN reserved_quantity - ? ELSE 0 END", l.Quantity, l.Quantity))
		if res.Error != nil {
			return nil, apperr.Internal(res.Error)
		}
		released := l.Quantity
		if prev := records[l.ProductID].ReservedQuantity; prev < released {
			released = prev
		}
		movements = append(movements, m.movement(l.ProductID, model.MovementRelease, -released, ref))
	}
	return movements, nil
}

// CommitBatch 在调用方事务内把预占转为消耗。
// guard 要求 reserved >= q，两个量同减 q，不变量 0<=reserved<=on_hand 自然保持。
func (m *Manager) CommitBatch(tx *gorm.DB, lines []LineDelta, ref Ref) ([]model.InventoryMovement, error) {
	merged := MergeLines(lines)
	if _, err := m.fetch(tx, merged); err != nil {
		return nil, err
	}

	movements := make([]model.InventoryMovement, 0, len(merged))
	for _, l := range merged {
		res := tx.Model(&model.InventoryRecord{}).
			Where("product_id = ? AND reserved_quantity >= ? AND on_hand_quantity >= ?", l.ProductID, l.Quantity, l.Quantity).
			UpdateColumns(map[string]any{
				"on_hand_quantity":  gorm.Expr("on_hand_quantity - ?", l.Quantity),
				"reserved_quantity": gorm.Expr("reserved_quantity - ?", l.Quantity),
			})
		if res.Error != nil {
			return nil, apperr.Internal(res.Error)
		}
		if res.RowsAffected == 0 {
			cur, err := m.reload(tx, l.ProductID)
			if err != nil {
				return nil, err
			}
			return nil, apperr.InsufficientStock(l.ProductID, l.Quantity, cur.ReservedQuantity)
		}
		movements = append(movements, m.movement(l.ProductID, model.MovementCommit, -l.Quantity, ref))
	}
	return movements, nil
}

// Restock 入库（后台补货）。
func (m *Manager) Restock(ctx context.Context, productID uint, qty int64, ref Ref) error {
	if qty <= 0 {
		return apperr.Validation("入库数量必须大于 0")
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.InventoryRecord{}).
			Where("product_id = ?", productID).
			UpdateColumn("on_hand_quantity", gorm.Expr("on_hand_quantity + ?", qty))
		if res.Error != nil {
			return apperr.Internal(res.Error)
		}
		if res.RowsAffected == 0 {
			return tx.Create(&model.InventoryRecord{ProductID: productID, OnHandQuantity: qty}).Error
		}
		return nil
	})
	if err != nil {
		return apperr.From(err)
	}
	m.RecordMovements(ctx, []model.InventoryMovement{m.movement(productID, model.MovementRestock, qty, ref)})
	return nil
}

// Get 读取单个商品台账。
func (m *Manager) Get(ctx context.Context, productID uint) (model.InventoryRecord, error) {
	var rec model.InventoryRecord
	err := m.db.WithContext(ctx).Where("product_id = ?", productID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, apperr.NotFound("库存记录")
	}
	if err != nil {
		return rec, apperr.Internal(err)
	}
	return rec, nil
}

// RecordMovements 主事务提交后补写审计流水。失败只记日志，不影响调用方。
func (m *Manager) RecordMovements(ctx context.Context, movements []model.InventoryMovement) {
	if len(movements) == 0 {
		return
	}
	if err := m.db.WithContext(ctx).Create(&movements).Error; err != nil {
		m.log.Warn("写库存流水失败（忽略）",
			zap.Int("count", len(movements)),
			zap.Error(err))
	}
}

func (m *Manager) movement(productID uint, kind model.MovementKind, delta int64, ref Ref) model.InventoryMovement {
	return model.InventoryMovement{
		ProductID:     productID,
		Kind:          kind,
		QuantityDelta: delta,
		RefKind:       ref.Kind,
		RefID:         ref.ID,
		CreatedAt:     time.Now(),
	}
}

// fetch 一次 IN 查询取出全部受影响台账；缺行说明商品没有库存档案。
func (m *Manager) fetch(tx *gorm.DB, merged []LineDelta) (map[uint]model.InventoryRecord, error) {
	for _, l := range merged {
		if l.Quantity <= 0 {
			return nil, apperr.Validation("库存操作数量必须大于 0")
		}
	}
	ids := make([]uint, 0, len(merged))
	for _, l := range merged {
		ids = append(ids, l.ProductID)
	}
	var records []model.InventoryRecord
	if err := tx.Where("product_id IN ?", ids).Find(&records).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	byProduct := make(map[uint]model.InventoryRecord, len(records))
	for _, r := range records {
		byProduct[r.ProductID] = r
	}
	for _, l := range merged {
		if _, ok := byProduct[l.ProductID]; !ok {
			return nil, apperr.NotFound("库存记录")
		}
	}
	return byProduct, nil
}

func (m *Manager) reload(tx *gorm.DB, productID uint) (model.InventoryRecord, error) {
	var rec model.InventoryRecord
	if err := tx.Where("product_id = ?", productID).First(&rec).Error; err != nil {
		return rec, apperr.Internal(err)
	}
	return rec, nil
}
