package order

import (
	"remit_mall/internal/apperr"
	"remit_mall/internal/inventory"
	"remit_mall/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 本文件负责订单行到库存变化量的批量解析。
// 先收集全部涉及的组合/商品 ID，再用固定次数的 IN 查询建内存映射，
// 任何环节都不做逐行回表：查询轮数不随订单行数与组合大小增长。

// CreateItemInput 建单时的单行输入。
// 商品/组合行的价格一律服务端取价，不信任客户端；
// 汇款服务行例外，UnitPrice 即汇款金额，由调用方给出。
type CreateItemInput struct {
	ItemType         model.OrderItemType `json:"item_type" binding:"required"`
	ProductID        *uint               `json:"product_id"`
	ComboID          *uint               `json:"combo_id"`
	RemittanceTypeID *uint               `json:"remittance_type_id"`
	Quantity         int64               `json:"quantity" binding:"required,min=1"`
	UnitPrice        *decimal.Decimal    `json:"unit_price"`
}

type resolvedItems struct {
	items    []model.OrderItem
	deltas   []inventory.LineDelta
	subtotal decimal.Decimal
}

// resolveNewItems 给建单输入定价并算出库存预占扇出。
func resolveNewItems(tx *gorm.DB, inputs []CreateItemInput) (*resolvedItems, error) {
	directPIDs := make([]uint, 0, len(inputs))
	comboIDs := make([]uint, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, apperr.Validation("订单行数量必须大于 0")
		}
		switch in.ItemType {
		case model.ItemProduct:
			if in.ProductID == nil {
				return nil, apperr.Validation("商品行缺少 product_id")
			}
			directPIDs = append(directPIDs, *in.ProductID)
		case model.ItemCombo:
			if in.ComboID == nil {
				return nil, apperr.Validation("组合行缺少 combo_id")
			}
			comboIDs = append(comboIDs, *in.ComboID)
		case model.ItemRemittance:
			if in.RemittanceTypeID == nil {
				return nil, apperr.Validation("汇款行缺少 remittance_type_id")
			}
			if in.UnitPrice == nil || !in.UnitPrice.IsPositive() {
				return nil, apperr.Validation("汇款行金额必须大于 0")
			}
		default:
			return nil, apperr.Validation("未知的订单行类型 %q", in.ItemType)
		}
	}

	combos, members, err := loadCombos(tx, comboIDs)
	if err != nil {
		return nil, err
	}

	// 直接商品 + 组合成员商品，合并成一次取价/取 trackable 的查询
	allPIDs := append([]uint{}, directPIDs...)
	for _, ms := range members {
		for _, m := range ms {
			allPIDs = append(allPIDs, m.ProductID)
		}
	}
	products, err := loadProducts(tx, allPIDs)
	if err != nil {
		return nil, err
	}

	out := &resolvedItems{subtotal: decimal.Zero}
	for _, in := range inputs {
		item := model.OrderItem{
			ItemType:         in.ItemType,
			ProductID:        in.ProductID,
			ComboID:          in.ComboID,
			RemittanceTypeID: in.RemittanceTypeID,
			Quantity:         in.Quantity,
		}
		switch in.ItemType {
		case model.ItemProduct:
			p := products[*in.ProductID]
			item.UnitPrice = p.Price
			if p.Trackable {
				out.deltas = append(out.deltas, inventory.LineDelta{ProductID: p.ID, Quantity: in.Quantity})
			}
		case model.ItemCombo:
			c, ok := combos[*in.ComboID]
			if !ok {
				return nil, apperr.NotFound("商品组合")
			}
			item.UnitPrice = c.Price
			for _, m := range members[*in.ComboID] {
				if products[m.ProductID].Trackable {
					out.deltas = append(out.deltas, inventory.LineDelta{
						ProductID: m.ProductID,
						Quantity:  m.Quantity * in.Quantity,
					})
				}
			}
		case model.ItemRemittance:
			item.UnitPrice = *in.UnitPrice
		}
		item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(in.Quantity))
		out.subtotal = out.subtotal.Add(item.LineTotal)
		out.items = append(out.items, item)
	}
	return out, nil
}

// fanOutDeltas 对已落库的订单行重算库存扇出（付款确认、拒付、取消、重开共用）。
func fanOutDeltas(tx *gorm.DB, items []model.OrderItem) ([]inventory.LineDelta, error) {
	directPIDs := make([]uint, 0, len(items))
	comboIDs := make([]uint, 0, len(items))
	for _, it := range items {
		switch it.ItemType {
		case model.ItemProduct:
			if it.ProductID != nil {
				directPIDs = append(directPIDs, *it.ProductID)
			}
		case model.ItemCombo:
			if it.ComboID != nil {
				comboIDs = append(comboIDs, *it.ComboID)
			}
		}
	}
	if len(directPIDs) == 0 && len(comboIDs) == 0 {
		return nil, nil
	}

	_, members, err := loadCombos(tx, comboIDs)
	if err != nil {
		return nil, err
	}
	allPIDs := append([]uint{}, directPIDs...)
	for _, ms := range members {
		for _, m := range ms {
			allPIDs = append(allPIDs, m.ProductID)
		}
	}
	products, err := loadProducts(tx, allPIDs)
	if err != nil {
		return nil, err
	}

	var deltas []inventory.LineDelta
	for _, it := range items {
		switch it.ItemType {
		case model.ItemProduct:
			if it.ProductID != nil && products[*it.ProductID].Trackable {
				deltas = append(deltas, inventory.LineDelta{ProductID: *it.ProductID, Quantity: it.Quantity})
			}
		case model.ItemCombo:
			if it.ComboID == nil {
				continue
			}
			for _, m := range members[*it.ComboID] {
				if products[m.ProductID].Trackable {
					deltas = append(deltas, inventory.LineDelta{ProductID: m.ProductID, Quantity: m.Quantity * it.Quantity})
				}
			}
		}
	}
	return deltas, nil
}

func loadCombos(tx *gorm.DB, comboIDs []uint) (map[uint]model.Combo, map[uint][]model.ComboItem, error) {
	combos := make(map[uint]model.Combo, len(comboIDs))
	members := make(map[uint][]model.ComboItem, len(comboIDs))
	if len(comboIDs) == 0 {
		return combos, members, nil
	}
	var cs []model.Combo
	if err := tx.Where("id IN ?", comboIDs).Find(&cs).Error; err != nil {
		return nil, nil, apperr.Internal(err)
	}
	for _, c := range cs {
		combos[c.ID] = c
	}
	for _, id := range comboIDs {
		if _, ok := combos[id]; !ok {
			return nil, nil, apperr.NotFound("商品组合")
		}
	}
	var ms []model.ComboItem
	if err := tx.Where("combo_id IN ?", comboIDs).Find(&ms).Error; err != nil {
		return nil, nil, apperr.Internal(err)
	}
	for _, m := range ms {
		members[m.ComboID] = append(members[m.ComboID], m)
	}
	return combos, members, nil
}

func loadProducts(tx *gorm.DB, ids []uint) (map[uint]model.Product, error) {
	out := make(map[uint]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var ps []model.Product
	if err := tx.Where("id IN ?", ids).Find(&ps).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	for _, p := range ps {
		out[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, apperr.NotFound("商品")
		}
	}
	return out, nil
}
