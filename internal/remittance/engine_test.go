package remittance

import (
	"context"
	"sync"
	"testing"

	"remit_mall/internal/activity"
	"remit_mall/internal/apperr"
	"remit_mall/internal/model"
	"remit_mall/internal/notify"
	"remit_mall/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type eventSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *eventSink) Publish(_ context.Context, ev notify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

type env struct {
	db        *gorm.DB
	eng       *Engine
	sink      *eventSink
	admin     model.Actor
	sender    model.Actor
	recipient model.Actor
	other     model.Actor
	usdPHP    model.RemittanceType
	cashOnly  model.RemittanceType
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger()

	e := &env{db: db, sink: &eventSink{}}
	e.eng = NewEngine(db, activity.New(db, log), e.sink, log)

	users := []*model.User{
		{Name: "管理员", Role: model.RoleAdmin},
		{Name: "汇款人", Role: model.RoleCustomer},
		{Name: "收款人", Role: model.RoleCustomer},
		{Name: "路人", Role: model.RoleCustomer},
	}
	for _, u := range users {
		require.NoError(t, db.Create(u).Error)
	}
	e.admin = users[0].Actor()
	e.sender = users[1].Actor()
	e.recipient = users[2].Actor()
	e.other = users[3].Actor()

	e.usdPHP = model.RemittanceType{
		Name:             "USD-PHP 常规",
		SourceCurrency:   "USD",
		DeliveryCurrency: "PHP",
		MinAmount:        decimal.NewFromInt(10),
		MaxAmount:        decimal.NewFromInt(5000),
		CommissionType:   model.CommissionPercentage,
		CommissionValue:  decimal.NewFromInt(2),
		ExchangeRate:     decimal.NewFromInt(24),
	}
	e.cashOnly = model.RemittanceType{
		Name:             "USD-PHP 现金专线",
		SourceCurrency:   "USD",
		DeliveryCurrency: "PHP",
		MinAmount:        decimal.NewFromInt(10),
		MaxAmount:        decimal.NewFromInt(1000),
		CommissionType:   model.CommissionFixed,
		CommissionValue:  decimal.NewFromInt(5),
		ExchangeRate:     decimal.NewFromInt(24),
		AllowedMethods:   "cash",
	}
	require.NoError(t, db.Create(&e.usdPHP).Error)
	require.NoError(t, db.Create(&e.cashOnly).Error)
	return e
}

func (e *env) createRemit(t *testing.T, in CreateInput) *model.Remittance {
	t.Helper()
	r, err := e.eng.Create(context.Background(), e.sender, in)
	require.NoError(t, err)
	return r
}

func (e *env) baseInput() CreateInput {
	return CreateInput{
		RemittanceTypeID: e.usdPHP.ID,
		Amount:           decimal.NewFromInt(100),
		RecipientName:    "Juan Dela Cruz",
		RecipientUserID:  &e.recipient.ID,
		DeliveryMethod:   model.DeliveryBankTransfer,
		BankAccountRef:   "BPI-0012-3456",
	}
}

// toProcessing 把汇款单推进到交付准备。
func (e *env) toProcessing(t *testing.T, r *model.Remittance) *model.Remittance {
	t.Helper()
	ctx := context.Background()
	r, err := e.eng.UploadPaymentProof(ctx, e.sender, r.ID, "pay-001")
	require.NoError(t, err)
	r, err = e.eng.ValidatePayment(ctx, e.admin, r.ID)
	require.NoError(t, err)
	r, err = e.eng.StartProcessing(ctx, e.admin, r.ID)
	require.NoError(t, err)
	return r
}

func TestCreateComputesServerSide(t *testing.T) {
	e := newEnv(t)
	r := e.createRemit(t, e.baseInput())

	assert.Equal(t, model.RemitPaymentPending, r.Status)
	assert.Regexp(t, `^REM-\d{8}-\d{5}$`, r.RemitNo)
	assert.Equal(t, e.sender.ID, r.SenderID)
	// 2% of 100 = 2，总扣 102，到账 102*24 = 2448 PHP
	assert.True(t, r.Commission.Equal(decimal.NewFromInt(2)))
	assert.True(t, r.TotalCharged.Equal(decimal.NewFromInt(102)))
	assert.True(t, r.DeliveryAmount.Equal(decimal.NewFromInt(2448)))
	assert.Equal(t, "PHP", r.DeliveryCurrency)
}

func TestCreateWithProofStartsAtProofUploaded(t *testing.T) {
	e := newEnv(t)
	in := e.baseInput()
	in.PaymentProofRef = "pay-up-front"
	r := e.createRemit(t, in)
	assert.Equal(t, model.RemitPaymentProofUploaded, r.Status)
	assert.Equal(t, "pay-up-front", r.PaymentProofRef)
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	in := e.baseInput()
	in.BankAccountRef = ""
	_, err := e.eng.Create(ctx, e.sender, in)
	assert.Equal(t, apperr.CodeValidation, apperr.From(err).Code)

	// 通道白名单：现金专线不接受银行转账
	in = e.baseInput()
	in.RemittanceTypeID = e.cashOnly.ID
	_, err = e.eng.Create(ctx, e.sender, in)
	assert.Equal(t, apperr.CodeValidation, apperr.From(err).Code)

	in = e.baseInput()
	in.Amount = decimal.NewFromInt(9)
	_, err = e.eng.Create(ctx, e.sender, in)
	assert.Equal(t, apperr.CodeValidation, apperr.From(err).Code)

	in = e.baseInput()
	in.RemittanceTypeID = 999
	_, err = e.eng.Create(ctx, e.sender, in)
	assert.Equal(t, apperr.CodeNotFound, apperr.From(err).Code)
}

func TestQuoteMatchesCreate(t *testing.T) {
	e := newEnv(t)
	q, err := e.eng.QuoteByType(context.Background(), e.usdPHP.ID, decimal.NewFromInt(100))
	require.NoError(t, err)

	r := e.createRemit(t, e.baseInput())
	assert.True(t, q.TotalCharged.Equal(r.TotalCharged))
	assert.True(t, q.DeliveryAmount.Equal(r.DeliveryAmount))
}

func TestPaymentChain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.createRemit(t, e.baseInput())

	// 没有凭证不能直接确认
	_, err := e.eng.ValidatePayment(ctx, e.admin, r.ID)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.From(err).Code)

	r, err = e.eng.UploadPaymentProof(ctx, e.sender, r.ID, "pay-001")
	require.NoError(t, err)
	assert.Equal(t, model.RemitPaymentProofUploaded, r.Status)

	r, err = e.eng.ValidatePayment(ctx, e.admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RemitPaymentValidated, r.Status)
	assert.NotNil(t, r.ValidatedAt)
}

func TestRejectThenResubmit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	in := e.baseInput()
	in.PaymentProofRef = "pay-001"
	r := e.createRemit(t, in)

	r, err := e.eng.RejectPayment(ctx, e.admin, r.ID, "金额对不上")
	require.NoError(t, err)
	assert.Equal(t, model.RemitPaymentRejected, r.Status)
	assert.Equal(t, "金额对不上", r.PaymentRejectReason)

	r, err = e.eng.UploadPaymentProof(ctx, e.sender, r.ID, "pay-002")
	require.NoError(t, err)
	assert.Equal(t, model.RemitPaymentProofUploaded, r.Status)
	assert.Empty(t, r.PaymentRejectReason)
}

func TestConcurrentValidateExactlyOneWins(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	in := e.baseInput()
	in.PaymentProofRef = "pay-001"
	r := e.createRemit(t, in)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = e.eng.ValidatePayment(ctx, e.admin, r.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.Equal(t, apperr.CodeInvalidTransition, apperr.From(err).Code)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestConfirmDeliveryRequiresProof(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.toProcessing(t, e.createRemit(t, e.baseInput()))

	// 没有任何送达凭证：硬失败
	_, err := e.eng.ConfirmDelivery(ctx, e.admin, r.ID, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDeliveryProofRequired, apperr.From(err).Code)

	r, err = e.eng.ConfirmDelivery(ctx, e.admin, r.ID, "pod-001")
	require.NoError(t, err)
	assert.Equal(t, model.RemitDelivered, r.Status)
	assert.Equal(t, "pod-001", r.DeliveryProofRef)
	assert.NotNil(t, r.DeliveredAt)
}

func TestConfirmDeliveryByRecipient(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.toProcessing(t, e.createRemit(t, e.baseInput()))

	// 收款侧用户可自助确认；无关用户不行（汇款人也不行）
	_, err := e.eng.ConfirmDelivery(ctx, e.other, r.ID, "pod-001")
	assert.Equal(t, apperr.CodePermissionDenied, apperr.From(err).Code)
	_, err = e.eng.ConfirmDelivery(ctx, e.sender, r.ID, "pod-001")
	assert.Equal(t, apperr.CodePermissionDenied, apperr.From(err).Code)

	r, err = e.eng.ConfirmDelivery(ctx, e.recipient, r.ID, "pod-001")
	require.NoError(t, err)
	assert.Equal(t, model.RemitDelivered, r.Status)
}

func TestCompleteAfterDelivery(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.toProcessing(t, e.createRemit(t, e.baseInput()))
	r, err := e.eng.ConfirmDelivery(ctx, e.admin, r.ID, "pod-001")
	require.NoError(t, err)

	r, err = e.eng.Complete(ctx, e.admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RemitCompleted, r.Status)
	assert.NotNil(t, r.CompletedAt)

	// 终态之后一切迁移非法
	_, err = e.eng.Cancel(ctx, e.admin, r.ID, "太迟")
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.From(err).Code)
}

func TestCancelBeforeProcessingOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.createRemit(t, e.baseInput())

	_, err := e.eng.Cancel(ctx, e.other, r.ID, "不相关")
	assert.Equal(t, apperr.CodePermissionDenied, apperr.From(err).Code)

	r, err = e.eng.Cancel(ctx, e.sender, r.ID, "汇错通道")
	require.NoError(t, err)
	assert.Equal(t, model.RemitCancelled, r.Status)
	assert.Equal(t, "汇错通道", r.CancelReason)

	// 进入交付准备后不可取消
	r2 := e.toProcessing(t, e.createRemit(t, e.baseInput()))
	_, err = e.eng.Cancel(ctx, e.sender, r2.ID, "反悔")
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.From(err).Code)
}

func TestGetVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.createRemit(t, e.baseInput())

	for _, actor := range []model.Actor{e.sender, e.recipient, e.admin} {
		_, err := e.eng.Get(ctx, actor, r.ID)
		assert.NoError(t, err)
	}
	_, err := e.eng.Get(ctx, e.other, r.ID)
	assert.Equal(t, apperr.CodePermissionDenied, apperr.From(err).Code)
}

func TestBankTransferLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.toProcessing(t, e.createRemit(t, e.baseInput()))

	bt, err := e.eng.CreateBankTransfer(ctx, e.admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransferPending, bt.Status)
	assert.Equal(t, e.admin.ID, bt.UpdatedByID)

	// 一单一条
	_, err = e.eng.CreateBankTransfer(ctx, e.admin, r.ID)
	assert.Equal(t, apperr.CodeValidation, apperr.From(err).Code)

	// pending 不能直达 completed
	_, err = e.eng.UpdateBankTransferStatus(ctx, e.admin, bt.ID, model.TransferCompleted, "")
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.From(err).Code)

	bt, err = e.eng.UpdateBankTransferStatus(ctx, e.admin, bt.ID, model.TransferProcessing, "")
	require.NoError(t, err)
	assert.Equal(t, model.TransferProcessing, bt.Status)
	assert.NotNil(t, bt.StartedAt)

	bt, err = e.eng.UpdateBankTransferStatus(ctx, e.admin, bt.ID, model.TransferCompleted, "SWIFT-REF-9")
	require.NoError(t, err)
	assert.Equal(t, model.TransferCompleted, bt.Status)
	assert.Equal(t, "SWIFT-REF-9", bt.ReferenceNo)
	assert.NotNil(t, bt.FinishedAt)

	// 终态不可再动
	_, err = e.eng.UpdateBankTransferStatus(ctx, e.admin, bt.ID, model.TransferFailed, "")
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.From(err).Code)

	list, err := e.eng.ListBankTransfers(ctx, e.sender, r.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestBankTransferGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// 未进入交付准备不能开子台账
	r := e.createRemit(t, e.baseInput())
	_, err := e.eng.CreateBankTransfer(ctx, e.admin, r.ID)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.From(err).Code)

	// 现金到账没有出金跟踪
	in := e.baseInput()
	in.RemittanceTypeID = e.cashOnly.ID
	in.DeliveryMethod = model.DeliveryCash
	in.BankAccountRef = ""
	cash := e.toProcessing(t, e.createRemit(t, in))
	_, err = e.eng.CreateBankTransfer(ctx, e.admin, cash.ID)
	assert.Equal(t, apperr.CodeValidation, apperr.From(err).Code)

	// 仅管理员
	_, err = e.eng.CreateBankTransfer(ctx, e.sender, r.ID)
	assert.Equal(t, apperr.CodePermissionDenied, apperr.From(err).Code)
}
