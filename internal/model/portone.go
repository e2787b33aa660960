package model

import "time"

// Wire types of the PortOne V1 REST API. Timestamps are unix seconds, 0 when unset.

type PortoneEnvelope[T any] struct {
	Code     *int    `json:"code"`
	Message  *string `json:"message"`
	Response T       `json:"response"`
}

type PortoneToken struct {
	AccessToken string `json:"access_token"`
	Now         int64  `json:"now"`
	ExpiredAt   int64  `json:"expired_at"`
}

type PortonePayment struct {
	ImpUID       string `json:"imp_uid"`
	MerchantUID  string `json:"merchant_uid"`
	CustomerUID  string `json:"customer_uid"`
	Amount       int64  `json:"amount"`
	CancelAmount int64  `json:"cancel_amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	PayMethod    string `json:"pay_method"`
	PgProvider   string `json:"pg_provider"`
	PgTID        string `json:"pg_tid"`
	Name         string `json:"name"`
	BuyerName    string `json:"buyer_name"`
	BuyerEmail   string `json:"buyer_email"`
	BuyerTel     string `json:"buyer_tel"`
	CardName     string `json:"card_name"`
	CardNumber   string `json:"card_number"`
	CardQuota    int    `json:"card_quota"`
	VbankCode    string `json:"vbank_code"`
	VbankName    string `json:"vbank_name"`
	VbankNum     string `json:"vbank_num"`
	VbankHolder  string `json:"vbank_holder"`
	VbankDate    int64  `json:"vbank_date"`
	CancelReason string `json:"cancel_reason"`
	FailReason   string `json:"fail_reason"`
	StartedAt    int64  `json:"started_at"`
	PaidAt       int64  `json:"paid_at"`
	FailedAt     int64  `json:"failed_at"`
	CancelledAt  int64  `json:"cancelled_at"`
}

type PortonePaymentList struct {
	Total    int              `json:"total"`
	Previous int              `json:"previous"`
	Next     int              `json:"next"`
	List     []PortonePayment `json:"list"`
}

type PortonePrepared struct {
	MerchantUID string `json:"merchant_uid"`
	Amount      int64  `json:"amount"`
}

type PortoneBillingKey struct {
	CustomerUID   string `json:"customer_uid"`
	PgProvider    string `json:"pg_provider"`
	PgID          string `json:"pg_id"`
	CardName      string `json:"card_name"`
	CardCode      string `json:"card_code"`
	CardNumber    string `json:"card_number"`
	CardType      string `json:"card_type"`
	CustomerName  string `json:"customer_name"`
	CustomerTel   string `json:"customer_tel"`
	CustomerEmail string `json:"customer_email"`
	Inserted      int64  `json:"inserted"`
	Updated       int64  `json:"updated"`
}

type PortoneSchedule struct {
	CustomerUID    string `json:"customer_uid"`
	MerchantUID    string `json:"merchant_uid"`
	ScheduleAt     int64  `json:"schedule_at"`
	ExecutedAt     int64  `json:"executed_at"`
	RevokedAt      int64  `json:"revoked_at"`
	Amount         int64  `json:"amount"`
	Name           string `json:"name"`
	BuyerName      string `json:"buyer_name"`
	BuyerEmail     string `json:"buyer_email"`
	BuyerTel       string `json:"buyer_tel"`
	ScheduleStatus string `json:"schedule_status"`
	PaymentStatus  string `json:"payment_status"`
	ImpUID         string `json:"imp_uid"`
	FailReason     string `json:"fail_reason"`
}

type PortoneScheduleList struct {
	Total    int               `json:"total"`
	Previous int               `json:"previous"`
	Next     int               `json:"next"`
	List     []PortoneSchedule `json:"list"`
}

// UnixTime turns a gateway timestamp into a pointer, nil when unset.
func UnixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

var bankCodes = map[string]string{
	"04": "KB국민은행",
	"23": "SC제일은행",
	"39": "경남은행",
	"34": "광주은행",
	"03": "IBK기업은행",
	"11": "NH농협은행",
	"31": "DGB대구은행",
	"32": "BNK부산은행",
	"02": "KDB산업은행",
	"45": "새마을금고",
	"07": "Sh수협은행",
	"88": "신한은행",
	"48": "신협",
	"20": "우리은행",
	"71": "우체국",
	"37": "전북은행",
	"35": "제주은행",
	"12": "지역농축협",
	"81": "하나은행",
	"27": "한국씨티은행",
	"89": "케이뱅크",
	"90": "카카오뱅크",
	"92": "토스뱅크",
}

// BankName returns the display name of a virtual account bank code.
func BankName(code string) (string, bool) {
	name, ok := bankCodes[code]
	return name, ok
}
