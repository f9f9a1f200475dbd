package router

import (
	"net/http"

	"remit_mall/internal/inventory"
	"remit_mall/internal/middleware"
	"remit_mall/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 后台目录维护接口。这里直接操作模型不走引擎：目录数据没有状态机，
// 写入都是单表插入。

func (d Deps) listProducts(c *gin.Context) {
	var products []model.Product
	if err := d.DB.WithContext(c.Request.Context()).Find(&products).Error; err != nil {
		d.fail(c, err)
		return
	}
	ok(c, products)
}

func (d Deps) createProduct(c *gin.Context) {
	var body struct {
		Name      string          `json:"name" binding:"required"`
		Price     decimal.Decimal `json:"price" binding:"required"`
		Trackable *bool           `json:"trackable"`
		OnHand    int64           `json:"on_hand"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "参数错误: " + err.Error()})
		return
	}
	if body.Price.IsNegative() || body.OnHand < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "价格与库存不能为负数"})
		return
	}
	trackable := true
	if body.Trackable != nil {
		trackable = *body.Trackable
	}
	p := model.Product{Name: body.Name, Price: body.Price, Trackable: trackable}
	err := d.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		if !p.Trackable {
			return nil
		}
		return tx.Create(&model.InventoryRecord{
			ProductID:      p.ID,
			OnHandQuantity: body.OnHand,
		}).Error
	})
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, p)
}

func (d Deps) getStock(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	rec, err := d.Inv.Get(c.Request.Context(), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, gin.H{
		"product_id": rec.ProductID,
		"on_hand":    rec.OnHandQuantity,
		"reserved":   rec.ReservedQuantity,
		"available":  rec.Available(),
	})
}

func (d Deps) restock(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body struct {
		Quantity int64 `json:"quantity" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "补货数量必须为正整数"})
		return
	}
	actor := middleware.Actor(c)
	if err := d.Inv.Restock(c.Request.Context(), id, body.Quantity, inventory.Ref{Kind: "admin", ID: actor.ID}); err != nil {
		d.fail(c, err)
		return
	}
	rec, err := d.Inv.Get(c.Request.Context(), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, rec)
}

func (d Deps) listCombos(c *gin.Context) {
	var combos []model.Combo
	if err := d.DB.WithContext(c.Request.Context()).Preload("Items").Find(&combos).Error; err != nil {
		d.fail(c, err)
		return
	}
	ok(c, combos)
}

func (d Deps) createCombo(c *gin.Context) {
	var body struct {
		Name  string          `json:"name" binding:"required"`
		Price decimal.Decimal `json:"price" binding:"required"`
		Items []struct {
			ProductID uint  `json:"product_id" binding:"required"`
			Quantity  int64 `json:"quantity" binding:"required,min=1"`
		} `json:"items" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "参数错误: " + err.Error()})
		return
	}
	combo := model.Combo{Name: body.Name, Price: body.Price}
	for _, it := range body.Items {
		combo.Items = append(combo.Items, model.ComboItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if err := d.DB.WithContext(c.Request.Context()).Create(&combo).Error; err != nil {
		d.fail(c, err)
		return
	}
	ok(c, combo)
}

func (d Deps) listRemittanceTypes(c *gin.Context) {
	var types []model.RemittanceType
	if err := d.DB.WithContext(c.Request.Context()).Find(&types).Error; err != nil {
		d.fail(c, err)
		return
	}
	ok(c, types)
}

func (d Deps) createRemittanceType(c *gin.Context) {
	var t model.RemittanceType
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "参数错误: " + err.Error()})
		return
	}
	if t.Name == "" || t.SourceCurrency == "" || t.DeliveryCurrency == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "通道名称与币种对不能为空"})
		return
	}
	if t.CommissionType != model.CommissionFixed && t.CommissionType != model.CommissionPercentage {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "手续费模型必须是 fixed 或 percentage"})
		return
	}
	if !t.ExchangeRate.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "汇率必须为正数"})
		return
	}
	t.ID = 0
	if err := d.DB.WithContext(c.Request.Context()).Create(&t).Error; err != nil {
		d.fail(c, err)
		return
	}
	ok(c, t)
}

func (d Deps) listUsers(c *gin.Context) {
	var users []model.User
	if err := d.DB.WithContext(c.Request.Context()).Find(&users).Error; err != nil {
		d.fail(c, err)
		return
	}
	ok(c, users)
}

func (d Deps) createUser(c *gin.Context) {
	var body struct {
		Name string         `json:"name" binding:"required"`
		Role model.UserRole `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "参数错误: " + err.Error()})
		return
	}
	if body.Role != model.RoleCustomer && body.Role != model.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "角色必须是 customer 或 admin"})
		return
	}
	u := model.User{Name: body.Name, Role: body.Role}
	if err := d.DB.WithContext(c.Request.Context()).Create(&u).Error; err != nil {
		d.fail(c, err)
		return
	}
	ok(c, u)
}
