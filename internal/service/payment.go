package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/client"
	"portone-payment-api/internal/dto"
	"portone-payment-api/internal/event"
	"portone-payment-api/internal/model"
	"portone-payment-api/internal/pagination"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/tenant"
)

// DefaultVbankDue is how long a virtual account stays open when the caller
// sets no due date.
const DefaultVbankDue = 7 * 24 * time.Hour

type PaymentService interface {
	Prepare(ctx context.Context, siteID string, req *dto.PrepareRequest) (*dto.PrepareResponse, error)
	GetPrepared(ctx context.Context, siteID, merchantUID string) (*model.PortonePrepared, error)
	Get(ctx context.Context, siteID, impUID string) (*dto.PaymentView, error)
	FindByMerchantUID(ctx context.Context, siteID, merchantUID string) (*dto.PaymentView, error)
	List(ctx context.Context, siteID, status string, page pagination.Params) (*dto.PaymentList, error)
	ListLocal(ctx context.Context, siteID string, filter repository.TransactionFilter, page pagination.Params) (*dto.TransactionList, error)
	Cancel(ctx context.Context, siteID string, req *dto.CancelRequest) (*dto.PaymentView, error)
	IssueVirtualAccount(ctx context.Context, siteID string, req *dto.VirtualAccountRequest) (*dto.PaymentView, error)
	ExtendVirtualAccount(ctx context.Context, siteID, impUID string, req *dto.ExtendVirtualAccountRequest) (*dto.PaymentView, error)
	Verify(ctx context.Context, siteID string, req *dto.VerifyRequest) (*dto.VerifyResponse, error)
}

type paymentServiceImpl struct {
	portoneClient client.PortoneClient
	tenants       tenant.Resolver
	reconciler    *reconciler
	logger        *slog.Logger
	now           func() time.Time
}

func NewPaymentService(
	portoneClient client.PortoneClient,
	tenants tenant.Resolver,
	publisher event.Publisher,
	logger *slog.Logger,
) PaymentService {
	return &paymentServiceImpl{
		portoneClient: portoneClient,
		tenants:       tenants,
		reconciler:    &reconciler{publisher: publisher, logger: logger, now: time.Now},
		logger:        logger,
		now:           time.Now,
	}
}

// Prepare pins the amount at the gateway and stores the transaction as
// prepared.
func (s *paymentServiceImpl) Prepare(ctx context.Context, siteID string, req *dto.PrepareRequest) (*dto.PrepareResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	prepared, err := s.portoneClient.PreparePayment(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("portone prepare payment: %w", err)
	}

	resp := &dto.PrepareResponse{
		MerchantUID: prepared.MerchantUID,
		Amount:      prepared.Amount,
	}
	err = store.Transactions.Upsert(ctx, &model.Transaction{
		MerchantUID: req.MerchantUID,
		Amount:      req.Amount,
		Status:      model.TransactionPrepared,
		ProductName: req.Name,
		BuyerName:   req.BuyerName,
		BuyerEmail:  req.BuyerEmail,
		BuyerTel:    req.BuyerTel,
	}, "amount", "status", "product_name", "buyer_name", "buyer_email", "buyer_tel")
	if err != nil {
		s.logger.ErrorContext(ctx, "local state out of sync",
			"site_id", siteID, "merchant_uid", req.MerchantUID, "error", err)
		resp.SyncError = (&apperr.PersistenceError{Op: "save prepared payment", Err: err}).Error()
	}
	return resp, nil
}

func (s *paymentServiceImpl) GetPrepared(ctx context.Context, siteID, merchantUID string) (*model.PortonePrepared, error) {
	if merchantUID == "" {
		return nil, apperr.Validation("merchant_uid", "is required")
	}
	if _, err := s.tenants.Resolve(ctx, siteID); err != nil {
		return nil, err
	}

	prepared, err := s.portoneClient.GetPreparedPayment(ctx, merchantUID)
	if err != nil {
		return nil, fmt.Errorf("portone get prepared payment: %w", err)
	}
	return prepared, nil
}

func (s *paymentServiceImpl) Get(ctx context.Context, siteID, impUID string) (*dto.PaymentView, error) {
	if impUID == "" {
		return nil, apperr.Validation("imp_uid", "is required")
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	payment, err := s.portoneClient.GetPayment(ctx, impUID)
	if err != nil {
		return nil, fmt.Errorf("portone get payment: %w", err)
	}
	return s.withLocal(ctx, store, payment), nil
}

func (s *paymentServiceImpl) FindByMerchantUID(ctx context.Context, siteID, merchantUID string) (*dto.PaymentView, error) {
	if merchantUID == "" {
		return nil, apperr.Validation("merchant_uid", "is required")
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	payment, err := s.portoneClient.GetPaymentByMerchantUID(ctx, merchantUID)
	if err != nil {
		return nil, fmt.Errorf("portone find payment: %w", err)
	}
	return s.withLocal(ctx, store, payment), nil
}

// List pages through the gateway's payments and attaches the matching local
// rows.
func (s *paymentServiceImpl) List(ctx context.Context, siteID, status string, page pagination.Params) (*dto.PaymentList, error) {
	switch status {
	case "", "all", "ready", "paid", "cancelled", "failed":
	default:
		return nil, apperr.Validation("status", "must be one of all ready paid cancelled failed")
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	list, err := s.portoneClient.ListPaymentsByStatus(ctx, status, page.Page, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("portone list payments: %w", err)
	}

	uids := make([]string, 0, len(list.List))
	for _, p := range list.List {
		uids = append(uids, p.MerchantUID)
	}
	local, err := store.Transactions.FindByMerchantUIDs(ctx, uids)
	if err != nil {
		s.logger.WarnContext(ctx, "load local transactions", "site_id", siteID, "error", err)
		local = nil
	}

	views := make([]*dto.PaymentView, 0, len(list.List))
	for i := range list.List {
		p := &list.List[i]
		views = append(views, &dto.PaymentView{PortonePayment: p, Local: local[p.MerchantUID]})
	}
	return &dto.PaymentList{
		Payments: views,
		Total:    list.Total,
		Page:     page.Page,
		Limit:    page.Limit,
	}, nil
}

func (s *paymentServiceImpl) ListLocal(ctx context.Context, siteID string, filter repository.TransactionFilter, page pagination.Params) (*dto.TransactionList, error) {
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	rows, total, err := store.Transactions.List(ctx, filter, page)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list transactions", Err: err}
	}
	return &dto.TransactionList{
		Transactions: rows,
		Total:        total,
		Page:         page.Page,
		Limit:        page.Limit,
	}, nil
}

func (s *paymentServiceImpl) Cancel(ctx context.Context, siteID string, req *dto.CancelRequest) (*dto.PaymentView, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	payment, err := s.portoneClient.CancelPayment(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("portone cancel payment: %w", err)
	}

	local, syncErr := s.reconciler.syncOutbound(ctx, store, payment)
	return &dto.PaymentView{PortonePayment: payment, Local: local, SyncError: syncErr}, nil
}

func (s *paymentServiceImpl) IssueVirtualAccount(ctx context.Context, siteID string, req *dto.VirtualAccountRequest) (*dto.PaymentView, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	if _, ok := model.BankName(req.VbankCode); !ok {
		return nil, apperr.Validation("vbank_code", "unknown bank code %q", req.VbankCode)
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	if req.VbankDue == 0 {
		req.VbankDue = s.now().Add(DefaultVbankDue).Unix()
	}
	payment, err := s.portoneClient.IssueVirtualAccount(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("portone issue virtual account: %w", err)
	}

	local, syncErr := s.reconciler.syncOutbound(ctx, store, payment)
	return &dto.PaymentView{PortonePayment: payment, Local: local, SyncError: syncErr}, nil
}

func (s *paymentServiceImpl) ExtendVirtualAccount(ctx context.Context, siteID, impUID string, req *dto.ExtendVirtualAccountRequest) (*dto.PaymentView, error) {
	if impUID == "" {
		return nil, apperr.Validation("imp_uid", "is required")
	}
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	if req.VbankDue <= s.now().Unix() {
		return nil, apperr.Validation("vbank_due", "must be in the future")
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	payment, err := s.portoneClient.ExtendVirtualAccountDue(ctx, impUID, req.VbankDue)
	if err != nil {
		return nil, fmt.Errorf("portone extend virtual account: %w", err)
	}

	local, syncErr := s.reconciler.syncOutbound(ctx, store, payment)
	return &dto.PaymentView{PortonePayment: payment, Local: local, SyncError: syncErr}, nil
}

// Verify compares the gateway's record with the expected amount and status.
// Without an explicit amount the locally pinned one is used.
func (s *paymentServiceImpl) Verify(ctx context.Context, siteID string, req *dto.VerifyRequest) (*dto.VerifyResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	payment, err := s.portoneClient.GetPayment(ctx, req.ImpUID)
	if err != nil {
		return nil, fmt.Errorf("portone get payment: %w", err)
	}

	expected := req.Amount
	if expected == nil {
		if local, err := store.Transactions.FindByMerchantUID(ctx, payment.MerchantUID); err == nil {
			expected = &local.Amount
		}
	}

	resp := &dto.VerifyResponse{Valid: true, Payment: payment, Errors: []string{}}
	if expected != nil && payment.Amount != *expected {
		resp.Valid = false
		resp.Errors = append(resp.Errors, fmt.Sprintf("Amount mismatch: expected %d, got %d", *expected, payment.Amount))
	}
	if req.Status != "" && payment.Status != req.Status {
		resp.Valid = false
		resp.Errors = append(resp.Errors, fmt.Sprintf("Status mismatch: expected %s, got %s", req.Status, payment.Status))
	}
	return resp, nil
}

func (s *paymentServiceImpl) withLocal(ctx context.Context, store *tenant.Store, p *model.PortonePayment) *dto.PaymentView {
	view := &dto.PaymentView{PortonePayment: p}
	local, err := store.Transactions.FindByMerchantUID(ctx, p.MerchantUID)
	switch {
	case err == nil:
		view.Local = local
	case !repository.IsNotFound(err):
		s.logger.WarnContext(ctx, "load local transaction", "merchant_uid", p.MerchantUID, "error", err)
	}
	return view
}
