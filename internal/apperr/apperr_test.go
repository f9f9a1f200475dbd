package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitionCarriesStates(t *testing.T) {
	err := StateTransition("订单", "COMPLETED", "SHIPPED")
	assert.Equal(t, CodeInvalidTransition, err.Code)
	assert.Equal(t, "COMPLETED", err.Current)
	assert.Equal(t, "SHIPPED", err.Requested)
	assert.Contains(t, err.Error(), "COMPLETED")
	assert.Contains(t, err.Error(), "SHIPPED")
}

func TestInsufficientStockCarriesGap(t *testing.T) {
	err := InsufficientStock(7, 5, 2)
	assert.Equal(t, CodeInsufficientStock, err.Code)
	assert.Equal(t, uint(7), err.ProductID)
	assert.Equal(t, int64(5), err.Required)
	assert.Equal(t, int64(2), err.Available)
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("disk io error")
	err := Internal(cause)
	// 对外文案不带内部细节，cause 只走 Unwrap 供日志使用
	assert.NotContains(t, err.Message, "disk")
	assert.ErrorIs(t, err, cause)
}

func TestFromNormalizes(t *testing.T) {
	orig := Validation("金额必须大于 0")
	assert.Same(t, orig, From(orig))
	assert.Same(t, orig, From(fmt.Errorf("wrap: %w", orig)))

	plain := From(errors.New("boom"))
	assert.Equal(t, CodeInternal, plain.Code)
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, HTTPStatus(CodeValidation))
	require.Equal(t, http.StatusBadRequest, HTTPStatus(CodeDeliveryProofRequired))
	require.Equal(t, http.StatusConflict, HTTPStatus(CodeInvalidTransition))
	require.Equal(t, http.StatusConflict, HTTPStatus(CodeInsufficientStock))
	require.Equal(t, http.StatusNotFound, HTTPStatus(CodeNotFound))
	require.Equal(t, http.StatusForbidden, HTTPStatus(CodePermissionDenied))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeInternal))
}
