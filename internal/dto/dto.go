package dto

import (
	"encoding/json"
	"fmt"

	"portone-payment-api/internal/model"
)

// Request bodies. Field names follow the PortOne V1 API so the same structs are
// forwarded to the gateway.

type PrepareRequest struct {
	MerchantUID string `json:"merchant_uid" validate:"required,max=128"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Name        string `json:"name,omitempty" validate:"max=255"`
	BuyerName   string `json:"buyer_name,omitempty"`
	BuyerEmail  string `json:"buyer_email,omitempty" validate:"omitempty,email"`
	BuyerTel    string `json:"buyer_tel,omitempty"`
}

type CancelRequest struct {
	ImpUID        string `json:"imp_uid,omitempty" validate:"required_without=MerchantUID"`
	MerchantUID   string `json:"merchant_uid,omitempty" validate:"required_without=ImpUID"`
	Amount        *int64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	TaxFree       *int64 `json:"tax_free,omitempty" validate:"omitempty,gte=0"`
	Checksum      *int64 `json:"checksum,omitempty" validate:"omitempty,gte=0"`
	Reason        string `json:"reason,omitempty" validate:"max=255"`
	RefundHolder  string `json:"refund_holder,omitempty"`
	RefundBank    string `json:"refund_bank,omitempty"`
	RefundAccount string `json:"refund_account,omitempty"`
	RefundTel     string `json:"refund_tel,omitempty"`
}

type VirtualAccountRequest struct {
	MerchantUID   string `json:"merchant_uid" validate:"required,max=128"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	VbankCode     string `json:"vbank_code" validate:"required"`
	VbankHolder   string `json:"vbank_holder" validate:"required"`
	VbankDue      int64  `json:"vbank_due,omitempty" validate:"gte=0"`
	Name          string `json:"name,omitempty"`
	BuyerName     string `json:"buyer_name,omitempty"`
	BuyerEmail    string `json:"buyer_email,omitempty" validate:"omitempty,email"`
	BuyerTel      string `json:"buyer_tel,omitempty"`
	BuyerAddr     string `json:"buyer_addr,omitempty"`
	BuyerPostcode string `json:"buyer_postcode,omitempty"`
	Pg            string `json:"pg,omitempty"`
	NoticeURL     string `json:"notice_url,omitempty" validate:"omitempty,url"`
}

type ExtendVirtualAccountRequest struct {
	VbankDue int64 `json:"vbank_due" validate:"gt=0"`
}

type VerifyRequest struct {
	ImpUID string `json:"imp_uid" validate:"required"`
	Amount *int64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Status string `json:"status,omitempty" validate:"omitempty,oneof=ready paid cancelled failed"`
}

type IssueBillingKeyRequest struct {
	CustomerUID      string `json:"customer_uid" validate:"required,max=128"`
	CardNumber       string `json:"card_number" validate:"required"`
	Expiry           string `json:"expiry" validate:"required"`
	Birth            string `json:"birth" validate:"required,min=6,max=10"`
	Pwd2Digit        string `json:"pwd_2digit,omitempty" validate:"omitempty,len=2,numeric"`
	Pg               string `json:"pg,omitempty"`
	CustomerName     string `json:"customer_name,omitempty"`
	CustomerTel      string `json:"customer_tel,omitempty"`
	CustomerEmail    string `json:"customer_email,omitempty" validate:"omitempty,email"`
	CustomerAddr     string `json:"customer_addr,omitempty"`
	CustomerPostcode string `json:"customer_postcode,omitempty"`
}

type PayWithBillingKeyRequest struct {
	CustomerUID   string `json:"customer_uid" validate:"required,max=128"`
	MerchantUID   string `json:"merchant_uid" validate:"required,max=128"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	Name          string `json:"name" validate:"required"`
	TaxFree       *int64 `json:"tax_free,omitempty" validate:"omitempty,gte=0"`
	BuyerName     string `json:"buyer_name,omitempty"`
	BuyerEmail    string `json:"buyer_email,omitempty" validate:"omitempty,email"`
	BuyerTel      string `json:"buyer_tel,omitempty"`
	BuyerAddr     string `json:"buyer_addr,omitempty"`
	BuyerPostcode string `json:"buyer_postcode,omitempty"`
	CardQuota     *int   `json:"card_quota,omitempty" validate:"omitempty,gte=0"`
	CustomData    any    `json:"custom_data,omitempty"`
	NoticeURL     string `json:"notice_url,omitempty" validate:"omitempty,url"`
}

type ScheduleItem struct {
	MerchantUID string `json:"merchant_uid" validate:"required,max=128"`
	ScheduleAt  int64  `json:"schedule_at" validate:"gt=0"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Name        string `json:"name" validate:"required"`
	BuyerName   string `json:"buyer_name,omitempty"`
	BuyerEmail  string `json:"buyer_email,omitempty" validate:"omitempty,email"`
	BuyerTel    string `json:"buyer_tel,omitempty"`
	NoticeURL   string `json:"notice_url,omitempty" validate:"omitempty,url"`
}

type ScheduleRequest struct {
	CustomerUID string          `json:"customer_uid" validate:"required,max=128"`
	Schedules   []*ScheduleItem `json:"schedules" validate:"required,min=1,dive,required"`
}

type UnscheduleRequest struct {
	MerchantUIDs StringList `json:"merchant_uid" validate:"required,min=1,dive,required"`
}

// StringList accepts either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = StringList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*l = many
	return nil
}

// Responses.

type PaymentView struct {
	*model.PortonePayment
	Local     *model.Transaction `json:"_db,omitempty"`
	SyncError string             `json:"sync_error,omitempty"`
}

type PaymentList struct {
	Payments []*PaymentView `json:"payments"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	Limit    int            `json:"limit"`
}

type PrepareResponse struct {
	MerchantUID string `json:"merchant_uid"`
	Amount      int64  `json:"amount"`
	SyncError   string `json:"sync_error,omitempty"`
}

type VerifyResponse struct {
	Valid   bool                  `json:"valid"`
	Payment *model.PortonePayment `json:"payment"`
	Errors  []string              `json:"errors"`
}

type BillingKeyView struct {
	*model.PortoneBillingKey
	Local     *model.BillingKey `json:"_db,omitempty"`
	SyncError string            `json:"sync_error,omitempty"`
}

type TransactionList struct {
	Transactions []*model.Transaction `json:"transactions"`
	Total        int64                `json:"total"`
	Page         int                  `json:"page"`
	Limit        int                  `json:"limit"`
}

type ScheduleList struct {
	Schedules []*model.ScheduledPayment `json:"schedules"`
	Total     int64                     `json:"total"`
	Page      int                       `json:"page"`
	Limit     int                       `json:"limit"`
}

type ScheduleResult struct {
	Schedules []model.PortoneSchedule `json:"schedules"`
	SyncError string                  `json:"sync_error,omitempty"`
}

type WebhookLogList struct {
	Logs  []*model.WebhookLog `json:"logs"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}

type WebhookAck struct {
	Action      string `json:"action"`
	ImpUID      string `json:"imp_uid"`
	MerchantUID string `json:"merchant_uid,omitempty"`
	Status      string `json:"status,omitempty"`
	SyncError   string `json:"sync_error,omitempty"`
}

type SubscriptionList struct {
	Subscriptions []*model.Subscription `json:"subscriptions"`
	Total         int64                 `json:"total"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
}

type BillingKeyList struct {
	BillingKeys []*BillingKeyView `json:"billing_keys"`
	Total       int64             `json:"total"`
	Page        int               `json:"page,omitempty"`
	Limit       int               `json:"limit,omitempty"`
}
