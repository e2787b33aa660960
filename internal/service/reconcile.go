package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/event"
	"portone-payment-api/internal/model"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/tenant"
)

type Action string

const (
	ActionPaid         Action = "paid"
	ActionCancelled    Action = "cancelled"
	ActionVbankIssued  Action = "vbank_issued"
	ActionVbankDeposit Action = "vbank_deposit"
	ActionFailed       Action = "failed"
	ActionUnrecognized Action = "unrecognized"
)

const (
	gatewayStatusPaid      = "paid"
	gatewayStatusReady     = "ready"
	gatewayStatusCancelled = "cancelled"
	gatewayStatusFailed    = "failed"
	payMethodVbank         = "vbank"
)

// reconciler turns an authoritative gateway payment into the local state
// transition for it. It never reads the notification body for state, only the
// hint used to detect a virtual account deposit.
type reconciler struct {
	publisher event.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

type applyResult struct {
	Action      Action
	Transaction *model.Transaction
	// PersistErr is set when the gateway state could not be written locally.
	PersistErr error
}

// apply runs the transition for p. A ValidationError means nothing was
// written; persistence failures are returned in applyResult.PersistErr so the
// caller still sees the verified payment.
func (r *reconciler) apply(ctx context.Context, store *tenant.Store, p *model.PortonePayment, hint string, emit bool) (*applyResult, error) {
	switch p.Status {
	case gatewayStatusPaid:
		return r.handlePaid(ctx, store, p, emit)
	case gatewayStatusCancelled:
		return r.handleCancelled(ctx, store, p, emit)
	case gatewayStatusReady:
		if p.PayMethod == payMethodVbank && hint == gatewayStatusPaid {
			return r.handleVbankDeposit(ctx, store, p, emit)
		}
		return r.handleVbankIssued(ctx, store, p)
	case gatewayStatusFailed:
		return r.handleFailed(ctx, store, p)
	}

	r.logger.WarnContext(ctx, "unrecognized payment status",
		"site_id", store.SiteID, "imp_uid", p.ImpUID, "status", p.Status)
	return &applyResult{Action: ActionUnrecognized}, nil
}

func (r *reconciler) handlePaid(ctx context.Context, store *tenant.Store, p *model.PortonePayment, emit bool) (*applyResult, error) {
	if err := r.checkAmount(ctx, store, p); err != nil {
		return nil, err
	}

	t := toTransaction(p, model.TransactionPaid)
	if t.PaidAt == nil {
		now := r.now().UTC()
		t.PaidAt = &now
	}
	res := r.persist(ctx, store, t, ActionPaid, updateColumns(p, "paid_at")...)

	if p.CustomerUID != "" {
		_, err := store.Schedules.MarkOutcome(ctx, repository.ScheduleOutcome{
			CustomerUID: p.CustomerUID,
			MerchantUID: p.MerchantUID,
			Status:      model.SchedulePaid,
			ImpUID:      p.ImpUID,
			At:          *t.PaidAt,
		})
		if err != nil && res.PersistErr == nil {
			res.PersistErr = &apperr.PersistenceError{Op: "mark schedule paid", Err: err}
		}
	}

	if emit {
		r.publish(ctx, store.SiteID, event.PaymentCompleted, p)
	}
	return res, nil
}

func (r *reconciler) handleCancelled(ctx context.Context, store *tenant.Store, p *model.PortonePayment, emit bool) (*applyResult, error) {
	t := toTransaction(p, model.TransactionCancelled)
	if t.CancelledAt == nil {
		now := r.now().UTC()
		t.CancelledAt = &now
	}
	res := r.persist(ctx, store, t, ActionCancelled, updateColumns(p, "cancelled_at")...)

	if emit {
		r.publish(ctx, store.SiteID, event.PaymentCancelled, p)
	}
	return res, nil
}

// handleVbankDeposit covers a deposit notice that arrives while the gateway
// still reports the virtual account as ready.
func (r *reconciler) handleVbankDeposit(ctx context.Context, store *tenant.Store, p *model.PortonePayment, emit bool) (*applyResult, error) {
	if err := r.checkAmount(ctx, store, p); err != nil {
		return nil, err
	}

	t := toTransaction(p, model.TransactionPaid)
	if t.PaidAt == nil {
		now := r.now().UTC()
		t.PaidAt = &now
	}
	res := r.persist(ctx, store, t, ActionVbankDeposit, updateColumns(p, "paid_at")...)

	if emit {
		r.publish(ctx, store.SiteID, event.VbankDeposited, p)
	}
	return res, nil
}

func (r *reconciler) handleVbankIssued(ctx context.Context, store *tenant.Store, p *model.PortonePayment) (*applyResult, error) {
	if err := r.checkAmount(ctx, store, p); err != nil {
		return nil, err
	}

	t := toTransaction(p, model.TransactionReady)
	return r.persist(ctx, store, t, ActionVbankIssued, updateColumns(p)...), nil
}

func (r *reconciler) handleFailed(ctx context.Context, store *tenant.Store, p *model.PortonePayment) (*applyResult, error) {
	t := toTransaction(p, model.TransactionFailed)
	if t.FailedAt == nil {
		now := r.now().UTC()
		t.FailedAt = &now
	}
	res := r.persist(ctx, store, t, ActionFailed, updateColumns(p, "fail_reason", "failed_at")...)

	if p.CustomerUID != "" {
		_, err := store.Schedules.MarkOutcome(ctx, repository.ScheduleOutcome{
			CustomerUID: p.CustomerUID,
			MerchantUID: p.MerchantUID,
			Status:      model.ScheduleFailed,
			ImpUID:      p.ImpUID,
			FailReason:  p.FailReason,
			At:          *t.FailedAt,
		})
		if err != nil && res.PersistErr == nil {
			res.PersistErr = &apperr.PersistenceError{Op: "mark schedule failed", Err: err}
		}
	}
	return res, nil
}

// checkAmount rejects a payment whose amount differs from the one pinned on
// an existing local row.
func (r *reconciler) checkAmount(ctx context.Context, store *tenant.Store, p *model.PortonePayment) error {
	existing, err := store.Transactions.FindByMerchantUID(ctx, p.MerchantUID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		// Without the pinned amount the payment cannot be accepted.
		return &apperr.PersistenceError{Op: "find transaction", Err: err}
	}
	if existing.Amount != p.Amount {
		return &apperr.ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("expected %d for %s, gateway reports %d", existing.Amount, p.MerchantUID, p.Amount),
			Err:     apperr.ErrAmountMismatch,
		}
	}
	return nil
}

func (r *reconciler) persist(ctx context.Context, store *tenant.Store, t *model.Transaction, action Action, columns ...string) *applyResult {
	res := &applyResult{Action: action}
	if err := store.Transactions.Upsert(ctx, t, columns...); err != nil {
		res.PersistErr = &apperr.PersistenceError{Op: "upsert transaction", Err: err}
		return res
	}
	row, err := store.Transactions.FindByMerchantUID(ctx, t.MerchantUID)
	if err != nil {
		res.PersistErr = &apperr.PersistenceError{Op: "reload transaction", Err: err}
		return res
	}
	res.Transaction = row
	return res
}

func (r *reconciler) publish(ctx context.Context, siteID string, t event.Type, p *model.PortonePayment) {
	e := event.New(t, siteID, p.ImpUID, p.MerchantUID)
	e.CustomerUID = p.CustomerUID
	e.Amount = p.Amount
	e.Status = p.Status
	if t == event.VbankDeposited {
		e.Status = gatewayStatusPaid
	}
	if err := r.publisher.Publish(ctx, e); err != nil {
		r.logger.ErrorContext(ctx, "publish payment event",
			"type", t, "site_id", siteID, "imp_uid", p.ImpUID, "error", err)
	}
}

func toTransaction(p *model.PortonePayment, status model.TransactionStatus) *model.Transaction {
	t := &model.Transaction{
		MerchantUID:  p.MerchantUID,
		Amount:       p.Amount,
		Status:       status,
		PayMethod:    p.PayMethod,
		PgProvider:   p.PgProvider,
		PgTID:        p.PgTID,
		ProductName:  p.Name,
		BuyerName:    p.BuyerName,
		BuyerEmail:   p.BuyerEmail,
		BuyerTel:     p.BuyerTel,
		CardName:     p.CardName,
		CardNumber:   p.CardNumber,
		CardQuota:    p.CardQuota,
		VbankCode:    p.VbankCode,
		VbankName:    p.VbankName,
		VbankNum:     p.VbankNum,
		VbankHolder:  p.VbankHolder,
		VbankDate:    model.UnixTime(p.VbankDate),
		CancelAmount: p.CancelAmount,
		CancelReason: p.CancelReason,
		FailReason:   p.FailReason,
		PaidAt:       model.UnixTime(p.PaidAt),
		CancelledAt:  model.UnixTime(p.CancelledAt),
		FailedAt:     model.UnixTime(p.FailedAt),
	}
	if p.ImpUID != "" {
		impUID := p.ImpUID
		t.ImpUID = &impUID
	}
	if p.CustomerUID != "" {
		customerUID := p.CustomerUID
		t.CustomerUID = &customerUID
	}
	if t.VbankName == "" && t.VbankCode != "" {
		if name, ok := model.BankName(t.VbankCode); ok {
			t.VbankName = name
		}
	}
	return t
}

// updateColumns is repository.TransactionDetailColumns plus extra, with customer_uid only when the
// gateway reports one so a later record without it does not clear the link.
func updateColumns(p *model.PortonePayment, extra ...string) []string {
	out := make([]string, 0, len(repository.TransactionDetailColumns)+len(extra)+1)
	out = append(out, repository.TransactionDetailColumns...)
	out = append(out, extra...)
	if p.CustomerUID != "" {
		out = append(out, "customer_uid")
	}
	return out
}

// syncOutbound records the payment returned by an outbound gateway call. The
// gateway action already happened, so any local failure, a pinned amount
// mismatch included, is reported as a sync error instead of failing the call.
func (r *reconciler) syncOutbound(ctx context.Context, store *tenant.Store, p *model.PortonePayment) (*model.Transaction, string) {
	res, err := r.apply(ctx, store, p, "", false)
	if err == nil {
		err = res.PersistErr
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "local state out of sync",
			"site_id", store.SiteID, "imp_uid", p.ImpUID, "merchant_uid", p.MerchantUID,
			"status", p.Status, "error", err)
		return nil, err.Error()
	}
	return res.Transaction, ""
}
