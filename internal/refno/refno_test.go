package refno

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "ORD-20260314-00001", Format("ORD", at, 1))
	assert.Equal(t, "REM-20260314-00042", Format("REM", at, 42))
	assert.Equal(t, "ORD-20260314-123456", Format("ORD", at, 123456))
}

func TestWithMicroSuffix(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 30, 0, 987654000, time.UTC)
	got := WithMicroSuffix("ORD", at, 3)
	assert.Equal(t, "ORD-20260314-00003-987654", got)
	// 后缀版本不会与常规单号撞车
	assert.NotEqual(t, Format("ORD", at, 3), got)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: orders.order_no")))
	assert.True(t, IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "orders_order_no_key"`)))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.False(t, IsUniqueViolation(nil))
}
