package router

import (
	"net/http"

	"remit_mall/internal/middleware"
	"remit_mall/internal/model"
	"remit_mall/internal/remittance"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (d Deps) quoteRemittance(c *gin.Context) {
	var body struct {
		RemittanceTypeID uint            `json:"remittance_type_id" binding:"required"`
		Amount           decimal.Decimal `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "参数错误: " + err.Error()})
		return
	}
	q, err := d.Remits.QuoteByType(c.Request.Context(), body.RemittanceTypeID, body.Amount)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, q)
}

func (d Deps) createRemittance(c *gin.Context) {
	var in remittance.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "参数错误: " + err.Error()})
		return
	}
	r, err := d.Remits.Create(c.Request.Context(), middleware.Actor(c), in)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, r)
}

func (d Deps) getRemittance(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	r, err := d.Remits.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, r)
}

func (d Deps) uploadRemittancePaymentProof(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body proofBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "缺少付款凭证引用"})
		return
	}
	r, err := d.Remits.UploadPaymentProof(c.Request.Context(), middleware.Actor(c), id, body.ProofRef)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, r)
}

func (d Deps) validateRemittancePayment(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	r, err := d.Remits.ValidatePayment(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, r)
}

func (d Deps) rejectRemittancePayment(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "驳回必须说明原因"})
		return
	}
	r, err := d.Remits.RejectPayment(c.Request.Context(), middleware.Actor(c), id, body.Reason)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, r)
}

func (d Deps) startRemittanceProcessing(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	r, err := d.Remits.StartProcessing(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, r)
}

func (d Deps) confirmRemittanceDelivery(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body struct {
		ProofRef string `json:"proof_ref"`
	}
	_ = c.ShouldBindJSON(&body)
	r, err := d.Remits.ConfirmDelivery(c.Request.Context(), middleware.Actor(c), id, body.ProofRef)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, r)
}

func (d Deps) completeRemittance(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	r, err := d.Remits.Complete(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, r)
}

func (d Deps) cancelRemittance(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body reasonBody
	_ = c.ShouldBindJSON(&body)
	r, err := d.Remits.Cancel(c.Request.Context(), middleware.Actor(c), id, body.Reason)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, r)
}

func (d Deps) createBankTransfer(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	rec, err := d.Remits.CreateBankTransfer(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, rec)
}

func (d Deps) updateBankTransferStatus(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	var body struct {
		Status      model.BankTransferStatus `json:"status" binding:"required"`
		ReferenceNo string                   `json:"reference_no"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "缺少目标状态"})
		return
	}
	rec, err := d.Remits.UpdateBankTransferStatus(c.Request.Context(), middleware.Actor(c), id, body.Status, body.ReferenceNo)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, rec)
}

func (d Deps) listBankTransfers(c *gin.Context) {
	id, okID := paramID(c)
	if !okID {
		return
	}
	recs, err := d.Remits.ListBankTransfers(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, recs)
}
