package router

import (
	"net/http"

	"remit_mall/internal/middleware"
	"remit_mall/internal/order"

	"github.com/gin-gonic/gin"
)

type proofBody struct {
	ProofRef string `json:"proof_ref" binding:"required"`
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func (d Deps) createOrder(c *gin.Context) {
	var in order.CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "参数错误: " + err.Error()})
		return
	}
	o, err := d.Orders.CreateOrder(c.Request.Context(), middleware.Actor(c), in)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}

func (d Deps) getOrder(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	o, err := d.Orders.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}

func (d Deps) uploadOrderPaymentProof(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body proofBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "缺少付款凭证引用"})
		return
	}
	o, err := d.Orders.UploadPaymentProof(c.Request.Context(), middleware.Actor(c), id, body.ProofRef)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}

func (d Deps) validateOrderPayment(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	o, err := d.Orders.ValidatePayment(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}

func (d Deps) rejectOrderPayment(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "驳回必须说明原因"})
		return
	}
	o, err := d.Orders.RejectPayment(c.Request.Context(), middleware.Actor(c), id, body.Reason)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}

func (d Deps) startOrderProcessing(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	o, err := d.Orders.StartProcessing(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}

func (d Deps) shipOrder(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body struct {
		TrackingInfo string `json:"tracking_info" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "发货必须填写物流信息"})
		return
	}
	o, err := d.Orders.MarkShipped(c.Request.Context(), middleware.Actor(c), id, body.TrackingInfo)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}

func (d Deps) deliverOrder(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body struct {
		ProofRef string `json:"proof_ref"`
	}
	_ = c.ShouldBindJSON(&body)
	o, err := d.Orders.MarkDelivered(c.Request.Context(), middleware.Actor(c), id, body.ProofRef)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}

func (d Deps) completeOrder(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body struct {
		Notes string `json:"notes"`
	}
	_ = c.ShouldBindJSON(&body)
	o, err := d.Orders.Complete(c.Request.Context(), middleware.Actor(c), id, body.Notes)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}

func (d Deps) cancelOrder(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body reasonBody
	_ = c.ShouldBindJSON(&body)
	o, err := d.Orders.Cancel(c.Request.Context(), middleware.Actor(c), id, body.Reason)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}

func (d Deps) reopenOrder(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body reasonBody
	_ = c.ShouldBindJSON(&body)
	o, err := d.Orders.Reopen(c.Request.Context(), middleware.Actor(c), id, body.Reason)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, o)
}
