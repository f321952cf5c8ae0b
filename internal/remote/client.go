package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mshop/cart-agent/internal/auth"
)

// Line is the marketplace cart resource as served by /v2/carts.
type Line struct {
	ID                int64  `json:"id"`
	AccountID         int64  `json:"accountId"`
	SaleItemID        int64  `json:"saleItemId"`
	ItemDescription   string `json:"itemDescription"`
	PriceEach         int64  `json:"priceEach"`
	Quantity          int    `json:"quantity"`
	AvailableQuantity int    `json:"availableQuantity"`
	SellerName        string `json:"sellerName"`
	Note              string `json:"note,omitempty"`
}

// LineRequest is the create/update payload.
type LineRequest struct {
	AccountID  int64  `json:"accountId"`
	SaleItemID int64  `json:"saleItemId"`
	Quantity   int    `json:"quantity"`
	Note       string `json:"note,omitempty"`
}

// Client is the port for the remote cart resource.
type Client interface {
	List(ctx context.Context, accountID int64) ([]Line, error)
	Create(ctx context.Context, req LineRequest) (*Line, error)
	Update(ctx context.Context, remoteID int64, req LineRequest) (*Line, error)
	Delete(ctx context.Context, remoteID, accountID int64) error
}

// HTTPClient talks to the marketplace cart API. Calls run through a circuit
// breaker; an open breaker surfaces as KindTransient without hitting the
// network.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	tokens  auth.TokenProvider
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func NewHTTPClient(baseURL string, tokens auth.TokenProvider) *HTTPClient {
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "marketplace-cart",
		Timeout: 30 * time.Second,
	})
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens:  tokens,
		breaker: breaker,
	}
}

func (c *HTTPClient) List(ctx context.Context, accountID int64) ([]Line, error) {
	url := fmt.Sprintf("%s/v2/carts?accountId=%d", c.baseURL, accountID)

	var lines []Line
	if err := c.do(ctx, "list", http.MethodGet, url, nil, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (c *HTTPClient) Create(ctx context.Context, req LineRequest) (*Line, error) {
	url := fmt.Sprintf("%s/v2/carts", c.baseURL)

	var line Line
	if err := c.do(ctx, "create", http.MethodPost, url, &req, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (c *HTTPClient) Update(ctx context.Context, remoteID int64, req LineRequest) (*Line, error) {
	url := fmt.Sprintf("%s/v2/carts/%d", c.baseURL, remoteID)

	var line Line
	if err := c.do(ctx, "update", http.MethodPut, url, &req, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (c *HTTPClient) Delete(ctx context.Context, remoteID, accountID int64) error {
	url := fmt.Sprintf("%s/v2/carts/%d?accountId=%d", c.baseURL, remoteID, accountID)
	return c.do(ctx, "delete", http.MethodDelete, url, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, op, method, url string, body, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &Error{Kind: KindAuth, Op: op, Err: err}
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Err: err}
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return &Error{Kind: KindValidation, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.client.Do(req)
	})
	if err != nil {
		// Open breaker and transport failures land in the same bucket:
		// the local cart stays authoritative until the next sync.
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Kind: kindFromStatus(resp.StatusCode), Op: op, Status: resp.StatusCode}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}
