package model

import "remit_mall/internal/lifecycle"

// OrderStatus 订单履约轴。
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// PaymentStatus 订单付款轴。VALIDATED 在本轴是终态。
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "PENDING"
	PaymentProofUploaded PaymentStatus = "PROOF_UPLOADED"
	PaymentValidated     PaymentStatus = "VALIDATED"
	PaymentRejected      PaymentStatus = "REJECTED"
)

// RemittanceStatus 汇款单状态链：付款子阶段确认后才进入交付子阶段。
type RemittanceStatus string

const (
	RemitPaymentPending       RemittanceStatus = "PAYMENT_PENDING"
	RemitPaymentProofUploaded RemittanceStatus = "PAYMENT_PROOF_UPLOADED"
	RemitPaymentValidated     RemittanceStatus = "PAYMENT_VALIDATED"
	RemitPaymentRejected      RemittanceStatus = "PAYMENT_REJECTED"
	RemitProcessing           RemittanceStatus = "PROCESSING"
	RemitDelivered            RemittanceStatus = "DELIVERED"
	RemitCompleted            RemittanceStatus = "COMPLETED"
	RemitCancelled            RemittanceStatus = "CANCELLED"
)

// 三张迁移图是各自状态机合法性的唯一出处，引擎一律经 lifecycle.Check 消费。

// OrderFlow：CANCELLED -> PENDING 是一等公民的"重开"迁移，不是对终态的变通。
var OrderFlow = lifecycle.Flow{
	string(OrderPending):    {string(OrderProcessing), string(OrderCancelled)},
	string(OrderProcessing): {string(OrderShipped), string(OrderCancelled)},
	string(OrderShipped):    {string(OrderDelivered)},
	string(OrderDelivered):  {string(OrderCompleted)},
	string(OrderCompleted):  {},
	string(OrderCancelled):  {string(OrderPending)},
}

var PaymentFlow = lifecycle.Flow{
	string(PaymentPending):       {string(PaymentProofUploaded), string(PaymentRejected)},
	string(PaymentProofUploaded): {string(PaymentValidated), string(PaymentRejected)},
	string(PaymentRejected):      {string(PaymentPending)},
	string(PaymentValidated):     {},
}

// RemittanceFlow：进入 PROCESSING 之前都可取消，之后不可。
var RemittanceFlow = lifecycle.Flow{
	string(RemitPaymentPending):       {string(RemitPaymentProofUploaded), string(RemitPaymentRejected), string(RemitCancelled)},
	string(RemitPaymentProofUploaded): {string(RemitPaymentValidated), string(RemitPaymentRejected), string(RemitCancelled)},
	string(RemitPaymentRejected):      {string(RemitPaymentPending), string(RemitCancelled)},
	string(RemitPaymentValidated):     {string(RemitProcessing), string(RemitCancelled)},
	string(RemitProcessing):           {string(RemitDelivered)},
	string(RemitDelivered):            {string(RemitCompleted)},
	string(RemitCompleted):            {},
	string(RemitCancelled):            {},
}

var BankTransferFlow = lifecycle.Flow{
	string(TransferPending):    {string(TransferProcessing)},
	string(TransferProcessing): {string(TransferCompleted), string(TransferFailed)},
	string(TransferCompleted):  {},
	string(TransferFailed):     {},
}
