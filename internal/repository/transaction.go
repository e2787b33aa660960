package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portone-payment-api/internal/model"
	"portone-payment-api/internal/pagination"
)

type TransactionRepository interface {
	// Upsert inserts t or, when merchant_uid already exists, updates only the
	// named columns. Status only moves forward (prepared, ready, terminal),
	// paid_at/cancelled_at/failed_at keep their first value and amount is only
	// rewritten while the row is still prepared.
	Upsert(ctx context.Context, t *model.Transaction, columns ...string) error
	FindByMerchantUID(ctx context.Context, merchantUID string) (*model.Transaction, error)
	FindByImpUID(ctx context.Context, impUID string) (*model.Transaction, error)
	FindByMerchantUIDs(ctx context.Context, merchantUIDs []string) (map[string]*model.Transaction, error)
	List(ctx context.Context, filter TransactionFilter, page pagination.Params) ([]*model.Transaction, int64, error)
}

type TransactionFilter struct {
	Status      string
	CustomerUID string
}

type transactionRepoImpl struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepoImpl{
		db: db,
	}
}

// TransactionDetailColumns are the columns a gateway record updates on an
// existing row. amount is absent: once pinned by a prepare it only changes
// through another prepare.
var TransactionDetailColumns = []string{
	"imp_uid", "status", "pay_method", "pg_provider", "pg_tid",
	"product_name", "buyer_name", "buyer_email", "buyer_tel",
	"card_name", "card_number", "card_quota",
	"vbank_code", "vbank_name", "vbank_num", "vbank_holder", "vbank_date",
	"cancel_amount", "cancel_reason",
}

var firstStampColumns = map[string]bool{
	"paid_at":      true,
	"cancelled_at": true,
	"failed_at":    true,
}

func (r *transactionRepoImpl) Upsert(ctx context.Context, t *model.Transaction, columns ...string) error {
	excluded := excludedFunc(r.db)

	set := make(clause.Set, 0, len(columns)+2)
	var status, amount bool
	for _, col := range columns {
		switch {
		case col == "status":
			status = true
		case col == "amount":
			amount = true
		case col == "merchant_uid" || col == "created_at" || col == "updated_at":
		case col == "imp_uid":
			set = append(set, clause.Assignment{
				Column: clause.Column{Name: col},
				Value:  gorm.Expr(fmt.Sprintf("COALESCE(%s, transactions.imp_uid)", excluded(col))),
			})
		case firstStampColumns[col]:
			set = append(set, clause.Assignment{
				Column: clause.Column{Name: col},
				Value:  gorm.Expr(fmt.Sprintf("COALESCE(transactions.%s, %s)", col, excluded(col))),
			})
		default:
			set = append(set, clause.Assignment{
				Column: clause.Column{Name: col},
				Value:  gorm.Expr(excluded(col)),
			})
		}
	}

	// MySQL evaluates ON DUPLICATE KEY assignments left to right against the
	// updated row, so everything reading transactions.status precedes status.
	if amount {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: "amount"},
			Value: gorm.Expr(fmt.Sprintf(
				"CASE WHEN transactions.status = '%s' THEN %s ELSE transactions.amount END",
				model.TransactionPrepared, excluded("amount"),
			)),
		})
	}
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "updated_at"},
		Value:  time.Now(),
	})
	if status {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: "status"},
			Value: gorm.Expr(fmt.Sprintf(
				"CASE WHEN %s < %s THEN transactions.status ELSE %s END",
				statusRank(excluded("status")), statusRank("transactions.status"), excluded("status"),
			)),
		})
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "merchant_uid"}},
		DoUpdates: set,
	}).Create(t).Error
}

func (r *transactionRepoImpl) FindByMerchantUID(ctx context.Context, merchantUID string) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).
		Where("merchant_uid = ?", merchantUID).
		First(&t).Error

	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (r *transactionRepoImpl) FindByImpUID(ctx context.Context, impUID string) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).
		Where("imp_uid = ?", impUID).
		First(&t).Error

	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (r *transactionRepoImpl) FindByMerchantUIDs(ctx context.Context, merchantUIDs []string) (map[string]*model.Transaction, error) {
	out := make(map[string]*model.Transaction, len(merchantUIDs))
	if len(merchantUIDs) == 0 {
		return out, nil
	}

	var rows []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("merchant_uid IN ?", merchantUIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		out[row.MerchantUID] = row
	}
	return out, nil
}

func (r *transactionRepoImpl) List(ctx context.Context, filter TransactionFilter, page pagination.Params) ([]*model.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Transaction{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CustomerUID != "" {
		q = q.Where("customer_uid = ?", filter.CustomerUID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*model.Transaction
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}

// statusRank orders statuses so an upsert only moves a row forward:
// prepared, then ready, then any terminal status. Terminal statuses share a
// rank so a paid payment can still be cancelled.
func statusRank(col string) string {
	return fmt.Sprintf("(CASE %s WHEN '%s' THEN 0 WHEN '%s' THEN 1 ELSE 2 END)",
		col, model.TransactionPrepared, model.TransactionReady)
}

// excludedFunc returns how the proposed value of a column is referenced inside
// an upsert's update clause for the handle's dialect.
func excludedFunc(db *gorm.DB) func(col string) string {
	if db.Dialector.Name() == "mysql" {
		return func(col string) string { return "VALUES(" + col + ")" }
	}
	return func(col string) string { return "excluded." + col }
}

// IsNotFound reports whether err is gorm's record-not-found.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
