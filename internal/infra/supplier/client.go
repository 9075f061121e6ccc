package supplier

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"

	"engagement-shop/internal/config"
	"engagement-shop/internal/infra/httpclient"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Client talks to the reseller panel. Every action is a POST of {key, action, ...}
// to the same endpoint.
type Client struct {
	url    string
	key    string
	http   *httpclient.Client
	logger *slog.Logger
}

func NewClient(cfg config.SupplierConfig, logger *slog.Logger) *Client {
	return &Client{
		url:    cfg.URL,
		key:    cfg.Key,
		http:   httpclient.New("supplier", cfg.Client, logger),
		logger: logger,
	}
}

type field struct {
	name  string
	str   string
	num   int
	isNum bool
}

func str(name, value string) field { return field{name: name, str: value} }
func num(name string, value int) field {
	return field{name: name, num: value, isNum: true}
}

func (c *Client) encode(action string, fields []field) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("key")
	e.Str(c.key)
	e.FieldStart("action")
	e.Str(action)
	for _, f := range fields {
		e.FieldStart(f.name)
		if f.isNum {
			e.Int(f.num)
		} else {
			e.Str(f.str)
		}
	}
	e.ObjEnd()
	return e.Bytes()
}

// sentOnce lists actions the panel executes again on a repeated request.
var sentOnce = map[string]bool{
	"add":    true,
	"refill": true,
	"cancel": true,
}

// call performs one action and returns the body of a 2xx answer that is not {error}.
func (c *Client) call(ctx context.Context, action string, fields ...field) ([]byte, error) {
	payload := c.encode(action, fields)

	do := c.http.Do
	if sentOnce[action] {
		do = c.http.DoOnce
	}

	resp, err := do(ctx, action, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		c.logger.Error("Supplier call failed", "action", action, "error", err)
		return nil, errors.Wrap(err, action)
	}

	if apiErr := checkError(action, resp.Body); apiErr != nil {
		c.logger.Warn("Supplier rejected call", "action", action, "error", apiErr)
		return nil, apiErr
	}
	if !resp.OK() {
		c.logger.Error("Supplier answered with error status", "action", action, "status", resp.StatusCode)
		return nil, errors.Errorf("supplier %s: status %d", action, resp.StatusCode)
	}

	return resp.Body, nil
}

// PlaceOrder creates an order at the panel and returns its id.
func (c *Client) PlaceOrder(ctx context.Context, serviceID, link string, quantity int) (string, error) {
	body, err := c.call(ctx, "add", str("service", serviceID), str("link", link), num("quantity", quantity))
	if err != nil {
		return "", err
	}

	id, err := decodeField(body, "order")
	if err != nil {
		return "", errors.Wrap(err, "add")
	}

	c.logger.Info("Supplier order placed", "supplier_order_id", id, "service", serviceID, "quantity", quantity)
	return id, nil
}

func (c *Client) CheckOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	body, err := c.call(ctx, "status", str("order", orderID))
	if err != nil {
		return nil, err
	}

	status, err := decodeOrderStatus(jx.DecodeBytes(body))
	if err != nil {
		return nil, errors.Wrap(err, "status")
	}
	return status, nil
}

// CheckMultipleOrderStatus asks for many orders at once. Unknown ids come back
// as entries with Err set rather than failing the whole call.
func (c *Client) CheckMultipleOrderStatus(ctx context.Context, orderIDs []string) (map[string]BatchResult, error) {
	if len(orderIDs) == 0 {
		return map[string]BatchResult{}, nil
	}

	body, err := c.call(ctx, "status", str("orders", strings.Join(orderIDs, ",")))
	if err != nil {
		return nil, err
	}
	return decodeBatchStatus(body)
}

func (c *Client) RequestRefill(ctx context.Context, orderID string) (string, error) {
	body, err := c.call(ctx, "refill", str("order", orderID))
	if err != nil {
		return "", err
	}

	id, err := decodeField(body, "refill")
	if err != nil {
		return "", errors.Wrap(err, "refill")
	}
	return id, nil
}

func (c *Client) RefillStatus(ctx context.Context, refillID string) (string, error) {
	body, err := c.call(ctx, "refill_status", str("refill", refillID))
	if err != nil {
		return "", err
	}

	status, err := decodeField(body, "status")
	if err != nil {
		return "", errors.Wrap(err, "refill_status")
	}
	return status, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.call(ctx, "cancel", str("orders", orderID))
	return err
}

func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	body, err := c.call(ctx, "balance")
	if err != nil {
		return nil, err
	}
	return decodeBalance(body)
}

func (c *Client) GetServices(ctx context.Context) ([]Service, error) {
	body, err := c.call(ctx, "services")
	if err != nil {
		return nil, err
	}
	return decodeServices(body)
}
