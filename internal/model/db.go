package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionStatus string

const (
	TransactionPrepared  TransactionStatus = "prepared"
	TransactionReady     TransactionStatus = "ready"
	TransactionPaid      TransactionStatus = "paid"
	TransactionCancelled TransactionStatus = "cancelled"
	TransactionFailed    TransactionStatus = "failed"
)

// IsTerminal reports whether no later write may move the status back to
// prepared or ready.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionPaid || s == TransactionCancelled || s == TransactionFailed
}

type Transaction struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	ImpUID      *string           `gorm:"size:64;uniqueIndex" json:"imp_uid"`                // gateway-assigned
	MerchantUID string            `gorm:"size:128;uniqueIndex;not null" json:"merchant_uid"` // caller-assigned
	CustomerUID *string           `gorm:"size:128;index" json:"customer_uid,omitempty"`
	Amount      int64             `gorm:"not null" json:"amount"`
	Status      TransactionStatus `gorm:"size:16;index;not null" json:"status"`

	PayMethod   string `gorm:"size:32" json:"pay_method,omitempty"`
	PgProvider  string `gorm:"size:32" json:"pg_provider,omitempty"`
	PgTID       string `gorm:"column:pg_tid;size:128" json:"pg_tid,omitempty"`
	ProductName string `gorm:"size:255" json:"product_name,omitempty"`
	BuyerName   string `gorm:"size:64" json:"buyer_name,omitempty"`
	BuyerEmail  string `gorm:"size:128" json:"buyer_email,omitempty"`
	BuyerTel    string `gorm:"size:32" json:"buyer_tel,omitempty"`

	CardName   string `gorm:"size:64" json:"card_name,omitempty"`
	CardNumber string `gorm:"size:32" json:"card_number,omitempty"` // masked by the gateway
	CardQuota  int    `json:"card_quota,omitempty"`

	VbankCode   string     `gorm:"size:8" json:"vbank_code,omitempty"`
	VbankName   string     `gorm:"size:64" json:"vbank_name,omitempty"`
	VbankNum    string     `gorm:"size:64" json:"vbank_num,omitempty"`
	VbankHolder string     `gorm:"size:64" json:"vbank_holder,omitempty"`
	VbankDate   *time.Time `json:"vbank_date,omitempty"`

	CancelAmount int64  `json:"cancel_amount,omitempty"`
	CancelReason string `gorm:"size:255" json:"cancel_reason,omitempty"`
	FailReason   string `gorm:"size:255" json:"fail_reason,omitempty"`

	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type BillingKeyStatus string

const (
	BillingKeyActive  BillingKeyStatus = "active"
	BillingKeyDeleted BillingKeyStatus = "deleted"
)

type BillingKey struct {
	CustomerUID   string           `gorm:"primaryKey;size:128" json:"customer_uid"`
	PgProvider    string           `gorm:"size:32" json:"pg_provider,omitempty"`
	PgID          string           `gorm:"size:128" json:"pg_id,omitempty"`
	CardName      string           `gorm:"size:64" json:"card_name,omitempty"`
	CardCode      string           `gorm:"size:16" json:"card_code,omitempty"`
	CardNumber    string           `gorm:"size:32" json:"card_number,omitempty"` // masked
	CustomerName  string           `gorm:"size:64" json:"customer_name,omitempty"`
	CustomerTel   string           `gorm:"size:32" json:"customer_tel,omitempty"`
	CustomerEmail string           `gorm:"size:128" json:"customer_email,omitempty"`
	Status        BillingKeyStatus `gorm:"size:16;index;not null" json:"status"`
	DeletedAt     *time.Time       `json:"deleted_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "scheduled"
	SchedulePaid      ScheduleStatus = "paid"
	ScheduleCancelled ScheduleStatus = "cancelled"
	ScheduleFailed    ScheduleStatus = "failed"
)

type ScheduledPayment struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CustomerUID string         `gorm:"size:128;not null;uniqueIndex:idx_schedule_customer_merchant" json:"customer_uid"`
	MerchantUID string         `gorm:"size:128;not null;uniqueIndex:idx_schedule_customer_merchant" json:"merchant_uid"`
	Amount      int64          `gorm:"not null" json:"amount"`
	ProductName string         `gorm:"size:255" json:"product_name,omitempty"`
	ScheduleAt  time.Time      `gorm:"index;not null" json:"schedule_at"`
	Status      ScheduleStatus `gorm:"size:16;index;not null" json:"status"`
	ImpUID      *string        `gorm:"size:64" json:"imp_uid,omitempty"`
	FailReason  string         `gorm:"size:255" json:"fail_reason,omitempty"`
	PaidAt      *time.Time     `json:"paid_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (ScheduledPayment) TableName() string { return "payment_schedules" }

type WebhookLogStatus string

const (
	WebhookProcessed     WebhookLogStatus = "processed"
	WebhookIgnored       WebhookLogStatus = "ignored"
	WebhookPersistFailed WebhookLogStatus = "persist_failed"
	WebhookRejected      WebhookLogStatus = "rejected"
	WebhookError         WebhookLogStatus = "error"
)

// WebhookLog is insert-only. Nothing reads it back as a source of state.
type WebhookLog struct {
	ID          string           `gorm:"primaryKey;size:36" json:"id"`
	SiteID      string           `gorm:"size:64;index" json:"site_id,omitempty"`
	Source      string           `gorm:"size:32;index;not null" json:"source"`
	ImpUID      string           `gorm:"size:64;index" json:"imp_uid,omitempty"`
	MerchantUID string           `gorm:"size:128" json:"merchant_uid,omitempty"`
	Payload     datatypes.JSON   `json:"payload"`
	Status      WebhookLogStatus `gorm:"size:32;index;not null" json:"status"`
	Message     string           `gorm:"size:1024" json:"message,omitempty"`
	CreatedAt   time.Time        `gorm:"index" json:"created_at"`
}

type SiteStatus string

const (
	SiteActive   SiteStatus = "active"
	SiteInactive SiteStatus = "inactive"
)

type Site struct {
	SiteID    string     `gorm:"primaryKey;size:64" json:"site_id"`
	Name      string     `gorm:"size:128" json:"name"`
	Domain    string     `gorm:"size:255" json:"domain,omitempty"`
	DBName    string     `gorm:"size:64;not null" json:"db_name"`
	Status    SiteStatus `gorm:"size:16;index;not null" json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type SiteAPIKey struct {
	ID         uint       `gorm:"primaryKey"`
	SiteID     string     `gorm:"size:64;index;not null"`
	APIKeyHash string     `gorm:"size:64;uniqueIndex;not null"` // sha256 hex
	Name       string     `gorm:"size:128"`
	Status     SiteStatus `gorm:"size:16;not null"`
	CreatedAt  time.Time
}

// TenantModels are the tables that live in every site database.
func TenantModels() []any {
	return []any{&Transaction{}, &BillingKey{}, &ScheduledPayment{}}
}

// PlatformModels are the tables that live in the platform database.
func PlatformModels() []any {
	return []any{&Site{}, &SiteAPIKey{}, &WebhookLog{}}
}

// Subscription is a billing key joined with the payments charged against it.
type Subscription struct {
	BillingKey
	PaymentCount int64           `json:"payment_count"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
}
