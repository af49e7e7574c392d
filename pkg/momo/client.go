// Package momo is a small client for the MoMo wallet QR/redirect payment API.
package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/shopflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

const (
	createPath         = "/v2/gateway/api/create"
	queryPath          = "/v2/gateway/api/query"
	errorBodyReadLimit = 1024
)

var (
	errPartnerCodeRequired = errors.New("momo partner code is required")
	errAccessKeyRequired   = errors.New("momo access key is required")
	errSecretKeyRequired   = errors.New("momo secret key is required")
	errEndpointRequired    = errors.New("momo endpoint is required")
)

// Client signs and sends requests to the provider. Outbound calls share one
// token bucket so a sweep cannot flood the provider.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	partnerCode string
	accessKey   string
	secretKey   string
	requestType string
	lang        string
	redirectURL string
	ipnURL      string
	limiter     *rate.Limiter
	logg        *logger.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLimiter replaces the request limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// NewClient validates credentials and builds a provider client.
func NewClient(cfg config.MoMoConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	switch {
	case strings.TrimSpace(cfg.PartnerCode) == "":
		return nil, errPartnerCodeRequired
	case strings.TrimSpace(cfg.AccessKey) == "":
		return nil, errAccessKeyRequired
	case strings.TrimSpace(cfg.SecretKey) == "":
		return nil, errSecretKeyRequired
	case strings.TrimSpace(cfg.Endpoint) == "":
		return nil, errEndpointRequired
	}
	if logg == nil {
		logg = logger.Nop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perSec := cfg.RequestsPerSec
	if perSec <= 0 {
		perSec = 10
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		partnerCode: strings.TrimSpace(cfg.PartnerCode),
		accessKey:   strings.TrimSpace(cfg.AccessKey),
		secretKey:   strings.TrimSpace(cfg.SecretKey),
		requestType: cfg.RequestType,
		lang:        cfg.Lang,
		redirectURL: cfg.RedirectURL,
		ipnURL:      cfg.IPNURL,
		limiter:     rate.NewLimiter(rate.Limit(perSec), burst),
		logg:        logg,
	}
	if c.requestType == "" {
		c.requestType = "captureWallet"
	}
	if c.lang == "" {
		c.lang = "vi"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Item is a line item shown on the provider's payment page.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
	Quantity int    `json:"quantity"`
	Total    int64  `json:"totalPrice"`
}

// UserInfo is the payer contact forwarded to the provider.
type UserInfo struct {
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Email       string `json:"email,omitempty"`
}

// CreateRequest starts one payment attempt. OrderID is the provider-side id
// and must be unique per attempt.
type CreateRequest struct {
	OrderID   string
	RequestID string
	Amount    int64
	OrderInfo string
	ExtraData string
	Items     []Item
	UserInfo  *UserInfo
}

type createPayload struct {
	PartnerCode string    `json:"partnerCode"`
	RequestType string    `json:"requestType"`
	IPNURL      string    `json:"ipnUrl"`
	RedirectURL string    `json:"redirectUrl"`
	OrderID     string    `json:"orderId"`
	Amount      int64     `json:"amount"`
	OrderInfo   string    `json:"orderInfo"`
	RequestID   string    `json:"requestId"`
	ExtraData   string    `json:"extraData"`
	Items       []Item    `json:"items,omitempty"`
	UserInfo    *UserInfo `json:"userInfo,omitempty"`
	Lang        string    `json:"lang"`
	Signature   string    `json:"signature"`
}

// CreateResponse is the provider's answer to a create call.
type CreateResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink"`
	QRCodeURL    string `json:"qrCodeUrl"`
}

// Create asks the provider for a pay URL. A transport failure is a
// dependency error; a refusal is returned as a response with a non-zero code.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" || strings.TrimSpace(req.RequestID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider order id and request id required")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	payload := createPayload{
		PartnerCode: c.partnerCode,
		RequestType: c.requestType,
		IPNURL:      c.ipnURL,
		RedirectURL: c.redirectURL,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		OrderInfo:   req.OrderInfo,
		RequestID:   req.RequestID,
		ExtraData:   req.ExtraData,
		Items:       req.Items,
		UserInfo:    req.UserInfo,
		Lang:        c.lang,
	}
	payload.Signature = c.createSignature(payload)

	var resp CreateResponse
	if err := c.post(ctx, createPath, payload, &resp); err != nil {
		return nil, err
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"provider_order_id": req.OrderID,
		"result_code":       resp.ResultCode,
	})
	c.logg.Info(logCtx, "momo.create")
	return &resp, nil
}

type queryPayload struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	OrderID     string `json:"orderId"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

// QueryResponse reports the current state of an attempt.
type QueryResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	ExtraData    string `json:"extraData"`
	Amount       int64  `json:"amount"`
	TransID      int64  `json:"transId"`
	PayType      string `json:"payType"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	ResponseTime int64  `json:"responseTime"`
}

// Outcome classifies the reported result code.
func (r QueryResponse) Outcome() Outcome {
	return Classify(r.ResultCode)
}

// Query looks up the attempt identified by the provider order id.
func (c *Client) Query(ctx context.Context, orderID, requestID string) (*QueryResponse, error) {
	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(requestID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider order id and request id required")
	}
	payload := queryPayload{
		PartnerCode: c.partnerCode,
		RequestID:   requestID,
		OrderID:     orderID,
		Lang:        c.lang,
		Signature:   c.querySignature(orderID, requestID),
	}
	var resp QueryResponse
	if err := c.post(ctx, queryPath, payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Notification is the signed payload of an IPN callback or a redirect return.
type Notification struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "momo rate limit wait")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal momo request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(raw))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build momo request")
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute momo request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "momo request failed")
	}
	// 4xx responses still carry a JSON body with a resultCode.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInconsistent, err, "decode momo response")
	}
	return nil
}
