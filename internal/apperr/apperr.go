package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 是稳定的机器可读错误码，HTTP 层据此映射状态码，前端据此做文案分支。
type Code string

const (
	CodeValidation            Code = "VALIDATION"
	CodeInvalidTransition     Code = "INVALID_STATE_TRANSITION"
	CodeInsufficientStock     Code = "INSUFFICIENT_STOCK"
	CodeNotFound              Code = "NOT_FOUND"
	CodePermissionDenied      Code = "PERMISSION_DENIED"
	CodeDeliveryProofRequired Code = "DELIVERY_PROOF_REQUIRED"
	CodeInternal              Code = "INTERNAL"
)

// Error 是对外可见的业务错误。
// 状态机错误必须带上 Current/Requested，调用方无需回查即可向用户解释失败原因。
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"msg"`
	Current   string `json:"current,omitempty"`
	Requested string `json:"requested,omitempty"`
	ProductID uint   `json:"product_id,omitempty"`
	Required  int64  `json:"required,omitempty"`
	Available int64  `json:"available,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.Current != "" || e.Requested != "" {
		return fmt.Sprintf("%s: %s (current=%s requested=%s)", e.Code, e.Message, e.Current, e.Requested)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Validation 入参/边界校验失败。
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound 实体不存在。
func NotFound(entity string) *Error {
	return &Error{Code: CodeNotFound, Message: entity + "不存在"}
}

// PermissionDenied 调用者缺少角色或归属权限。
func PermissionDenied(msg string) *Error {
	return &Error{Code: CodePermissionDenied, Message: msg}
}

// StateTransition 非法生命周期迁移，带出当前态与目标态。
func StateTransition(entity, current, requested string) *Error {
	return &Error{
		Code:      CodeInvalidTransition,
		Message:   fmt.Sprintf("%s状态不允许从 %s 变更为 %s", entity, current, requested),
		Current:   current,
		Requested: requested,
	}
}

// InsufficientStock 库存不足，带出缺口明细。
func InsufficientStock(productID uint, required, available int64) *Error {
	return &Error{
		Code:      CodeInsufficientStock,
		Message:   fmt.Sprintf("商品 %d 库存不足（需要 %d，可用 %d）", productID, required, available),
		ProductID: productID,
		Required:  required,
		Available: available,
	}
}

// DeliveryProofRequired 缺少送达凭证，硬性校验失败而非警告。
func DeliveryProofRequired() *Error {
	return &Error{Code: CodeDeliveryProofRequired, Message: "缺少送达凭证，请上传后再确认"}
}

// Internal 包装意外错误（存储故障等）。原因保留在 cause 里供日志使用，
// 对外只暴露通用文案，不泄露内部细节。
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "系统繁忙，请稍后再试", cause: err}
}

// From 把任意 error 归一化为 *Error；非业务错误一律按 Internal 处理。
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// HTTPStatus 错误码到 HTTP 状态码的唯一映射。
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeDeliveryProofRequired:
		return http.StatusBadRequest
	case CodeInvalidTransition, CodeInsufficientStock:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
