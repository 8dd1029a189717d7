// Package payments integrates the OxaPay merchant API: creating crypto
// invoices for plan purchases and polling their status.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Invoice is a created payment request.
type Invoice struct {
	OrderID string
	TrackID string
	PayLink string
}

// Status values reported by the inquiry endpoint.
const (
	StatusWaiting = "Waiting"
	StatusPaid    = "Paid"
	StatusExpired = "Expired"
)

// Client talks to the OxaPay merchant API.
type Client struct {
	merchantKey string
	baseURL     string
	lifetimeMin int
	httpClient  *http.Client
}

// NewClient creates an OxaPay client. baseURL is overridable for tests;
// empty means the production API.
func NewClient(merchantKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.oxapay.com"
	}
	return &Client{
		merchantKey: merchantKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		lifetimeMin: 30,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

type createRequest struct {
	Merchant string  `json:"merchant"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	LifeTime int     `json:"lifeTime"`
	OrderID  string  `json:"orderId"`
	Desc     string  `json:"description,omitempty"`
}

type createResponse struct {
	Result  int    `json:"result"`
	Message string `json:"message"`
	TrackID string `json:"trackId"`
	PayLink string `json:"payLink"`
}

// CreateInvoice requests a USD invoice for the given amount. The order
// ID is generated here and is the bot's stable reference.
func (c *Client) CreateInvoice(ctx context.Context, amountUSD float64, description string) (*Invoice, error) {
	orderID := uuid.NewString()
	var resp createResponse
	err := c.post(ctx, "/merchants/request", createRequest{
		Merchant: c.merchantKey,
		Amount:   amountUSD,
		Currency: "USD",
		LifeTime: c.lifetimeMin,
		OrderID:  orderID,
		Desc:     description,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Result != 100 {
		return nil, fmt.Errorf("oxapay create: result %d: %s", resp.Result, resp.Message)
	}
	return &Invoice{OrderID: orderID, TrackID: resp.TrackID, PayLink: resp.PayLink}, nil
}

type inquiryRequest struct {
	Merchant string `json:"merchant"`
	TrackID  string `json:"trackId"`
}

type inquiryResponse struct {
	Result  int    `json:"result"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// InvoiceStatus polls the invoice state: StatusWaiting, StatusPaid or
// StatusExpired.
func (c *Client) InvoiceStatus(ctx context.Context, trackID string) (string, error) {
	var resp inquiryResponse
	err := c.post(ctx, "/merchants/inquiry", inquiryRequest{
		Merchant: c.merchantKey,
		TrackID:  trackID,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Result != 100 {
		return "", fmt.Errorf("oxapay inquiry: result %d: %s", resp.Result, resp.Message)
	}
	return resp.Status, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oxapay %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("oxapay %s: http %d: %s", path, resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
