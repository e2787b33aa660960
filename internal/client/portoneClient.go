package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/config"
	"portone-payment-api/internal/dto"
	"portone-payment-api/internal/model"
)

// maxResponseBytes bounds how much of a gateway response is read.
const maxResponseBytes = 4 << 20

type PortoneClient interface {
	GetToken(ctx context.Context) (*model.PortoneToken, error)

	GetPayment(ctx context.Context, impUID string) (*model.PortonePayment, error)
	GetPaymentByMerchantUID(ctx context.Context, merchantUID string) (*model.PortonePayment, error)
	ListPaymentsByStatus(ctx context.Context, status string, page, limit int) (*model.PortonePaymentList, error)
	PreparePayment(ctx context.Context, req *dto.PrepareRequest) (*model.PortonePrepared, error)
	GetPreparedPayment(ctx context.Context, merchantUID string) (*model.PortonePrepared, error)
	CancelPayment(ctx context.Context, req *dto.CancelRequest) (*model.PortonePayment, error)

	IssueVirtualAccount(ctx context.Context, req *dto.VirtualAccountRequest) (*model.PortonePayment, error)
	ExtendVirtualAccountDue(ctx context.Context, impUID string, due int64) (*model.PortonePayment, error)

	IssueBillingKey(ctx context.Context, req *dto.IssueBillingKeyRequest) (*model.PortoneBillingKey, error)
	GetBillingKey(ctx context.Context, customerUID string) (*model.PortoneBillingKey, error)
	ListBillingKeys(ctx context.Context, customerUIDs []string) ([]model.PortoneBillingKey, error)
	DeleteBillingKey(ctx context.Context, customerUID string) (*model.PortoneBillingKey, error)
	PayWithBillingKey(ctx context.Context, req *dto.PayWithBillingKeyRequest) (*model.PortonePayment, error)

	SchedulePayments(ctx context.Context, req *dto.ScheduleRequest) ([]model.PortoneSchedule, error)
	GetSchedulesByCustomer(ctx context.Context, customerUID string, page int) (*model.PortoneScheduleList, error)
	GetScheduleByMerchantUID(ctx context.Context, merchantUID string) (*model.PortoneSchedule, error)
	Unschedule(ctx context.Context, customerUID string, merchantUIDs []string) ([]model.PortoneSchedule, error)
}

type portoneClientImpl struct {
	httpClient *http.Client
	baseApiURL string
	apiKey     string
	apiSecret  string
	limiter    *rate.Limiter
	tokens     *TokenCache
	now        func() time.Time
}

type Option func(*portoneClientImpl)

// WithHTTPClient replaces the default client, which times out after the
// configured PORTONE_TIMEOUT.
func WithHTTPClient(h *http.Client) Option {
	return func(c *portoneClientImpl) { c.httpClient = h }
}

// WithClock sets the clock used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *portoneClientImpl) { c.now = now }
}

func NewPortoneClient(portoneCfg *config.Portone, opts ...Option) PortoneClient {
	timeout := portoneCfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &portoneClientImpl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseApiURL: strings.TrimRight(portoneCfg.BaseApiURL, "/"),
		apiKey:     portoneCfg.APIKey,
		apiSecret:  portoneCfg.APISecret,
		now:        time.Now,
	}
	if portoneCfg.RateLimit > 0 {
		burst := int(portoneCfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(portoneCfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = NewTokenCache(c.GetToken, portoneCfg.SafetyMargin, c.now)
	return c
}

func (c *portoneClientImpl) GetToken(ctx context.Context) (*model.PortoneToken, error) {
	body := map[string]string{
		"imp_key":    c.apiKey,
		"imp_secret": c.apiSecret,
	}
	return call[*model.PortoneToken](ctx, c, request{
		op:     "get token",
		method: http.MethodPost,
		path:   "/users/getToken",
		body:   body,
	})
}

func (c *portoneClientImpl) GetPayment(ctx context.Context, impUID string) (*model.PortonePayment, error) {
	return call[*model.PortonePayment](ctx, c, request{
		op:     "get payment",
		method: http.MethodGet,
		path:   "/payments/" + url.PathEscape(impUID),
		auth:   true,
	})
}

func (c *portoneClientImpl) GetPaymentByMerchantUID(ctx context.Context, merchantUID string) (*model.PortonePayment, error) {
	return call[*model.PortonePayment](ctx, c, request{
		op:     "find payment",
		method: http.MethodGet,
		path:   "/payments/find/" + url.PathEscape(merchantUID),
		auth:   true,
	})
}

func (c *portoneClientImpl) ListPaymentsByStatus(ctx context.Context, status string, page, limit int) (*model.PortonePaymentList, error) {
	if status == "" {
		status = "all"
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return call[*model.PortonePaymentList](ctx, c, request{
		op:     "list payments",
		method: http.MethodGet,
		path:   "/payments/status/" + url.PathEscape(status),
		query:  q,
		auth:   true,
	})
}

func (c *portoneClientImpl) PreparePayment(ctx context.Context, req *dto.PrepareRequest) (*model.PortonePrepared, error) {
	body := map[string]any{
		"merchant_uid": req.MerchantUID,
		"amount":       req.Amount,
	}
	return call[*model.PortonePrepared](ctx, c, request{
		op:     "prepare payment",
		method: http.MethodPost,
		path:   "/payments/prepare",
		body:   body,
		auth:   true,
	})
}

func (c *portoneClientImpl) GetPreparedPayment(ctx context.Context, merchantUID string) (*model.PortonePrepared, error) {
	return call[*model.PortonePrepared](ctx, c, request{
		op:     "get prepared payment",
		method: http.MethodGet,
		path:   "/payments/prepare/" + url.PathEscape(merchantUID),
		auth:   true,
	})
}

func (c *portoneClientImpl) CancelPayment(ctx context.Context, req *dto.CancelRequest) (*model.PortonePayment, error) {
	return call[*model.PortonePayment](ctx, c, request{
		op:     "cancel payment",
		method: http.MethodPost,
		path:   "/payments/cancel",
		body:   req,
		auth:   true,
	})
}

func (c *portoneClientImpl) IssueVirtualAccount(ctx context.Context, req *dto.VirtualAccountRequest) (*model.PortonePayment, error) {
	return call[*model.PortonePayment](ctx, c, request{
		op:     "issue virtual account",
		method: http.MethodPost,
		path:   "/vbanks",
		body:   req,
		auth:   true,
	})
}

func (c *portoneClientImpl) ExtendVirtualAccountDue(ctx context.Context, impUID string, due int64) (*model.PortonePayment, error) {
	return call[*model.PortonePayment](ctx, c, request{
		op:     "extend virtual account",
		method: http.MethodPut,
		path:   "/vbanks/" + url.PathEscape(impUID),
		body:   map[string]int64{"vbank_due": due},
		auth:   true,
	})
}

func (c *portoneClientImpl) IssueBillingKey(ctx context.Context, req *dto.IssueBillingKeyRequest) (*model.PortoneBillingKey, error) {
	return call[*model.PortoneBillingKey](ctx, c, request{
		op:     "issue billing key",
		method: http.MethodPost,
		path:   "/subscribe/customers/" + url.PathEscape(req.CustomerUID),
		body:   req,
		auth:   true,
	})
}

func (c *portoneClientImpl) GetBillingKey(ctx context.Context, customerUID string) (*model.PortoneBillingKey, error) {
	return call[*model.PortoneBillingKey](ctx, c, request{
		op:     "get billing key",
		method: http.MethodGet,
		path:   "/subscribe/customers/" + url.PathEscape(customerUID),
		auth:   true,
	})
}

func (c *portoneClientImpl) ListBillingKeys(ctx context.Context, customerUIDs []string) ([]model.PortoneBillingKey, error) {
	q := url.Values{}
	for _, uid := range customerUIDs {
		q.Add("customer_uid[]", uid)
	}
	return call[[]model.PortoneBillingKey](ctx, c, request{
		op:     "list billing keys",
		method: http.MethodGet,
		path:   "/subscribe/customers",
		query:  q,
		auth:   true,
	})
}

func (c *portoneClientImpl) DeleteBillingKey(ctx context.Context, customerUID string) (*model.PortoneBillingKey, error) {
	return call[*model.PortoneBillingKey](ctx, c, request{
		op:     "delete billing key",
		method: http.MethodDelete,
		path:   "/subscribe/customers/" + url.PathEscape(customerUID),
		auth:   true,
	})
}

func (c *portoneClientImpl) PayWithBillingKey(ctx context.Context, req *dto.PayWithBillingKeyRequest) (*model.PortonePayment, error) {
	return call[*model.PortonePayment](ctx, c, request{
		op:     "pay with billing key",
		method: http.MethodPost,
		path:   "/subscribe/payments/again",
		body:   req,
		auth:   true,
	})
}

func (c *portoneClientImpl) SchedulePayments(ctx context.Context, req *dto.ScheduleRequest) ([]model.PortoneSchedule, error) {
	return call[[]model.PortoneSchedule](ctx, c, request{
		op:     "schedule payments",
		method: http.MethodPost,
		path:   "/subscribe/payments/schedule",
		body:   req,
		auth:   true,
	})
}

func (c *portoneClientImpl) GetSchedulesByCustomer(ctx context.Context, customerUID string, page int) (*model.PortoneScheduleList, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	return call[*model.PortoneScheduleList](ctx, c, request{
		op:     "list schedules",
		method: http.MethodGet,
		path:   "/subscribe/payments/schedule/customers/" + url.PathEscape(customerUID),
		query:  q,
		auth:   true,
	})
}

func (c *portoneClientImpl) GetScheduleByMerchantUID(ctx context.Context, merchantUID string) (*model.PortoneSchedule, error) {
	return call[*model.PortoneSchedule](ctx, c, request{
		op:     "get schedule",
		method: http.MethodGet,
		path:   "/subscribe/payments/schedule/" + url.PathEscape(merchantUID),
		auth:   true,
	})
}

func (c *portoneClientImpl) Unschedule(ctx context.Context, customerUID string, merchantUIDs []string) ([]model.PortoneSchedule, error) {
	body := map[string]any{
		"customer_uid": customerUID,
		"merchant_uid": merchantUIDs,
	}
	return call[[]model.PortoneSchedule](ctx, c, request{
		op:     "unschedule payments",
		method: http.MethodPost,
		path:   "/subscribe/payments/unschedule",
		body:   body,
		auth:   true,
	})
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
}

// call performs one gateway request and unwraps the {code, message, response}
// envelope. A non-zero code is a *apperr.GatewayRejection whatever the HTTP
// status; anything that is not an envelope is a *apperr.TransportError.
func call[T any](ctx context.Context, c *portoneClientImpl, r request) (T, error) {
	var zero T

	var token string
	if r.auth {
		var err error
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return zero, err
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, &apperr.TransportError{Op: r.op, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	var reqBody io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return zero, fmt.Errorf("marshal req payload: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	target := c.baseApiURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, reqBody)
	if err != nil {
		return zero, &apperr.TransportError{Op: r.op, Err: fmt.Errorf("http new request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, &apperr.TransportError{Op: r.op, Err: fmt.Errorf("http client do: %w", err)}
	}
	defer resp.Body.Close()

	// A revoked or expired bearer must not be reused by the next call.
	if r.auth && resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return zero, &apperr.TransportError{Op: r.op, Err: fmt.Errorf("read response: %w", err)}
	}

	var env model.PortoneEnvelope[json.RawMessage]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, &apperr.TransportError{Op: r.op, Err: fmt.Errorf("decode response (http %d): %w", resp.StatusCode, err)}
	}
	if env.Code == nil {
		return zero, &apperr.TransportError{Op: r.op, Err: fmt.Errorf("response without code (http %d)", resp.StatusCode)}
	}
	if *env.Code != 0 {
		msg := ""
		if env.Message != nil {
			msg = *env.Message
		}
		return zero, &apperr.GatewayRejection{Op: r.op, Code: *env.Code, Message: msg}
	}
	if len(env.Response) == 0 || bytes.Equal(env.Response, []byte("null")) {
		return zero, &apperr.TransportError{Op: r.op, Err: fmt.Errorf("success without response (http %d)", resp.StatusCode)}
	}

	var out T
	if err := json.Unmarshal(env.Response, &out); err != nil {
		return zero, &apperr.TransportError{Op: r.op, Err: fmt.Errorf("decode response body: %w", err)}
	}
	return out, nil
}
