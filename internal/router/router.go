package router

import (
	"net/http"
	"strconv"

	"remit_mall/internal/activity"
	"remit_mall/internal/apperr"
	"remit_mall/internal/config"
	"remit_mall/internal/inventory"
	"remit_mall/internal/middleware"
	"remit_mall/internal/order"
	"remit_mall/internal/remittance"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps 路由层依赖集合。
type Deps struct {
	DB     *gorm.DB
	Redis  *rd.Client
	Orders *order.Engine
	Remits *remittance.Engine
	Inv    *inventory.Manager
	Acts   *activity.Recorder
	Log    *zap.Logger
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	api := r.Group("/api", middleware.ResolveActor(d.DB))
	admin := api.Group("", middleware.RequireAdmin())
	limited := middleware.RedisRateLimit(d.Redis, "create", cfg.CreateRateLimit, cfg.CreateRateWindow())

	// 目录与库存
	api.GET("/products", d.listProducts)
	api.GET("/products/:id/stock", d.getStock)
	api.GET("/combos", d.listCombos)
	api.GET("/remittance-types", d.listRemittanceTypes)
	admin.POST("/products", d.createProduct)
	admin.POST("/products/:id/restock", d.restock)
	admin.POST("/combos", d.createCombo)
	admin.POST("/remittance-types", d.createRemittanceType)
	admin.GET("/users", d.listUsers)
	admin.POST("/users", d.createUser)

	// 订单生命周期
	api.POST("/orders", limited, d.createOrder)
	api.GET("/orders/:id", d.getOrder)
	api.GET("/orders/:id/activities", d.listActivities("order"))
	api.POST("/orders/:id/payment-proof", d.uploadOrderPaymentProof)
	api.POST("/orders/:id/cancel", d.cancelOrder)
	api.POST("/orders/:id/reopen", d.reopenOrder)
	admin.POST("/orders/:id/validate-payment", d.validateOrderPayment)
	admin.POST("/orders/:id/reject-payment", d.rejectOrderPayment)
	admin.POST("/orders/:id/start-processing", d.startOrderProcessing)
	admin.POST("/orders/:id/ship", d.shipOrder)
	admin.POST("/orders/:id/deliver", d.deliverOrder)
	admin.POST("/orders/:id/complete", d.completeOrder)

	// 汇款生命周期
	api.POST("/remittances/quote", d.quoteRemittance)
	api.POST("/remittances", limited, d.createRemittance)
	api.GET("/remittances/:id", d.getRemittance)
	api.GET("/remittances/:id/activities", d.listActivities("remittance"))
	api.GET("/remittances/:id/bank-transfers", d.listBankTransfers)
	api.POST("/remittances/:id/payment-proof", d.uploadRemittancePaymentProof)
	api.POST("/remittances/:id/confirm-delivery", d.confirmRemittanceDelivery)
	api.POST("/remittances/:id/cancel", d.cancelRemittance)
	admin.POST("/remittances/:id/validate-payment", d.validateRemittancePayment)
	admin.POST("/remittances/:id/reject-payment", d.rejectRemittancePayment)
	admin.POST("/remittances/:id/start-processing", d.startRemittanceProcessing)
	admin.POST("/remittances/:id/complete", d.completeRemittance)
	admin.POST("/remittances/:id/bank-transfer", d.createBankTransfer)
	admin.POST("/bank-transfers/:id/status", d.updateBankTransferStatus)
}

// ok 统一成功应答。
func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

// fail 统一错误应答：业务错误按错误码映射 HTTP 状态，
// 意外错误只回通用文案，原因进日志不进响应。
func (d Deps) fail(c *gin.Context, err error) {
	e := apperr.From(err)
	status := apperr.HTTPStatus(e.Code)
	if e.Code == apperr.CodeInternal {
		d.Log.Error("请求处理失败",
			zap.String("path", c.FullPath()),
			zap.Error(e.Unwrap()))
	}
	c.JSON(status, gin.H{"code": status, "msg": e.Message, "error": e})
}

// paramID 解析路径里的数字 ID，失败直接回 400。
func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "ID 无效"})
		return 0, false
	}
	return uint(id), true
}

// listActivities 按实体查活动日志。
func (d Deps) listActivities(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, okID := paramID(c)
		if !okID {
			return
		}
		logs, err := d.Acts.List(c.Request.Context(), entityType, id)
		if err != nil {
			d.fail(c, err)
			return
		}
		ok(c, logs)
	}
}
