package activity

import (
	"context"
	"testing"

	"remit_mall/internal/model"
	"remit_mall/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	db := testutil.DB(t)
	r := New(db, testutil.Logger())
	ctx := context.Background()
	actor := model.Actor{ID: 2, Name: "买家", Role: model.RoleCustomer}

	r.Record(ctx, "order", 1, "create", "创建订单 ORD-20260314-00001", actor)
	r.Record(ctx, "order", 1, "cancel", "订单 ORD-20260314-00001 已取消：误下单", actor)
	r.Record(ctx, "order", 2, "create", "创建订单 ORD-20260314-00002", actor)

	logs, err := r.List(ctx, "order", 1)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	// 倒序：最近的动作排前面
	assert.Equal(t, "cancel", logs[0].Action)
	assert.Equal(t, "create", logs[1].Action)
	assert.Equal(t, uint(2), logs[0].ActorID)
	assert.Equal(t, "买家", logs[0].ActorName)
	assert.Equal(t, string(model.RoleCustomer), logs[0].ActorRole)

	other, err := r.List(ctx, "remittance", 1)
	require.NoError(t, err)
	assert.Empty(t, other)
}
