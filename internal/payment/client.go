package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the payment gateway connection settings. KeySecret signs
// checkout confirmations; WebhookSecret signs webhook deliveries.
type Config struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

// Client talks to the payment gateway's REST API and verifies the HMAC
// signatures it issues.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a gateway client. A zero Timeout defaults to 10 seconds.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type createIntentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createIntentResponse struct {
	ID string `json:"id"`
}

// CreateIntent registers an order with the gateway and returns the provider
// order id the customer pays against. Amounts are sent in paise.
func (c *Client) CreateIntent(ctx context.Context, amount decimal.Decimal, receipt string) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", errors.New("payment gateway is not configured")
	}

	body, err := json.Marshal(createIntentRequest{
		Amount:   amount.Shift(2).Round(0).IntPart(),
		Currency: "INR",
		Receipt:  receipt,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal intent")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "call gateway")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", errors.Errorf("gateway returned %d: %s", resp.StatusCode, data)
	}

	var out createIntentResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	if out.ID == "" {
		return "", errors.New("gateway response missing order id")
	}
	return out.ID, nil
}
