// Package binance implements the exchange contract against the Binance USDM
// futures REST API, with HMAC request signing, bounded exponential-backoff
// retries, maintenance-window detection, and a paper-trading mode that fakes
// order placement locally.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

// ClientConfig holds connection and retry parameters for the REST client.
type ClientConfig struct {
	BaseURL          string
	ApiKey           string
	ApiSecret        string
	Symbol           string
	Leverage         int
	PaperTrading     bool
	MaxRetries       int
	MaintenancePause time.Duration
}

// Client is the Binance USDM futures REST client. It implements
// domain.Exchange.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger

	// sleep is replaceable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client for the configured symbol.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaintenancePause <= 0 {
		cfg.MaintenancePause = 10 * time.Minute
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger.With(slog.String("component", "binance")),
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// apiError is the Binance error payload.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e apiError) Error() string {
	return fmt.Sprintf("binance: api error %d: %s", e.Code, e.Msg)
}

// doRequest performs one HTTP request against the futures API. When signed
// is true the query is HMAC-SHA256 signed with the API secret and the key
// header is attached.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		mac := hmac.New(sha256.New, []byte(c.cfg.ApiSecret))
		mac.Write([]byte(params.Encode()))
		params.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: create request: %w", err)
	}
	if signed || c.cfg.ApiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.cfg.ApiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("binance: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("binance: status 503: %w", domain.ErrMaintenance)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		return nil, fmt.Errorf("binance: status %d: %w", resp.StatusCode, domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		// Transient server-side failure, retryable.
		return nil, &transientError{fmt.Errorf("binance: status %d: %s", resp.StatusCode, body)}
	case resp.StatusCode >= 400:
		var ae apiError
		if jsonErr := json.Unmarshal(body, &ae); jsonErr == nil && ae.Code != 0 {
			if ae.Code == codeSystemMaintenance {
				return nil, fmt.Errorf("%s: %w", ae.Msg, domain.ErrMaintenance)
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderRejected, ae.Error())
		}
		return nil, fmt.Errorf("binance: status %d: %s", resp.StatusCode, body)
	}

	return body, nil
}

// codeSystemMaintenance is returned by Binance while the matching engine is
// in a scheduled maintenance window.
const codeSystemMaintenance = -1016

// transientError marks retryable network/server failures.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// callWithRetry runs the request with up to MaxRetries attempts and
// exponential backoff. A maintenance response pauses for the configured
// window without consuming an attempt; exchange rejections fail immediately.
func (c *Client) callWithRetry(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	attempt := 1
	for {
		body, err := c.doRequest(ctx, method, path, cloneValues(params), signed)
		if err == nil {
			return body, nil
		}

		if errors.Is(err, domain.ErrMaintenance) {
			c.logger.Warn("exchange under maintenance, pausing",
				slog.Duration("pause", c.cfg.MaintenancePause),
			)
			if sleepErr := c.sleep(ctx, c.cfg.MaintenancePause); sleepErr != nil {
				return nil, sleepErr
			}
			continue // not counted toward the retry budget
		}

		var transient *transientError
		retryable := errors.As(err, &transient) ||
			errors.Is(err, domain.ErrRateLimited) ||
			isNetworkError(err)
		if !retryable || attempt >= c.cfg.MaxRetries {
			return nil, err
		}

		wait := time.Duration(1<<attempt) * time.Second // 2s, 4s, 8s...
		c.logger.Warn("transient exchange error, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.cfg.MaxRetries),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
		if sleepErr := c.sleep(ctx, wait); sleepErr != nil {
			return nil, sleepErr
		}
		attempt++
	}
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func cloneValues(src url.Values) url.Values {
	dst := url.Values{}
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	return dst
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// FetchCandles returns up to limit klines for the timeframe, chronological
// order, most recent last.
func (c *Client) FetchCandles(ctx context.Context, tf domain.Timeframe, limit int) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", c.cfg.Symbol)
	params.Set("interval", string(tf))
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.callWithRetry(ctx, http.MethodGet, "/fapi/v1/klines", params, false)
	if err != nil {
		return nil, fmt.Errorf("binance: fetch candles %s: %w", tf, err)
	}
	return parseKlines(body)
}

// FetchPrice returns the current ticker price for the symbol.
func (c *Client) FetchPrice(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("symbol", c.cfg.Symbol)

	body, err := c.callWithRetry(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, false)
	if err != nil {
		return 0, fmt.Errorf("binance: fetch price: %w", err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("binance: decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse ticker price %q: %w", resp.Price, err)
	}
	return price, nil
}

// ---------------------------------------------------------------------------
// Account setup
// ---------------------------------------------------------------------------

// SetLeverage configures the leverage for the symbol. Failure is returned
// but callers may treat it as non-fatal (some accounts pin leverage).
func (c *Client) SetLeverage(ctx context.Context) error {
	if c.cfg.PaperTrading {
		return nil
	}
	params := url.Values{}
	params.Set("symbol", c.cfg.Symbol)
	params.Set("leverage", strconv.Itoa(c.cfg.Leverage))

	if _, err := c.callWithRetry(ctx, http.MethodPost, "/fapi/v1/leverage", params, true); err != nil {
		return fmt.Errorf("binance: set leverage: %w", err)
	}
	return nil
}

// SetOneWayPositionMode disables hedge mode so reduce-only orders act on the
// single net position.
func (c *Client) SetOneWayPositionMode(ctx context.Context) error {
	if c.cfg.PaperTrading {
		return nil
	}
	params := url.Values{}
	params.Set("dualSidePosition", "false")

	_, err := c.callWithRetry(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", params, true)
	if err != nil && !errors.Is(err, domain.ErrOrderRejected) {
		// Rejection here usually means the mode is already set.
		return fmt.Errorf("binance: set position mode: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func orderSide(side domain.Side) string {
	if side == domain.SideLong {
		return "BUY"
	}
	return "SELL"
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
}

func (c *Client) placeOrder(ctx context.Context, params url.Values) (domain.Order, error) {
	body, err := c.callWithRetry(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return domain.Order{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("binance: decode order response: %w", err)
	}

	order := domain.Order{
		ID:            strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Status:        mapOrderStatus(resp.Status),
	}
	order.Price, _ = strconv.ParseFloat(resp.Price, 64)
	order.StopPrice, _ = strconv.ParseFloat(resp.StopPrice, 64)
	return order, nil
}

func mapOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "NEW", "PARTIALLY_FILLED":
		return domain.OrderStatusNew
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED", "EXPIRED":
		return domain.OrderStatusCanceled
	default:
		return domain.OrderStatusRejected
	}
}

// PlaceLimitOrder submits a GTC limit order for the symbol.
func (c *Client) PlaceLimitOrder(ctx context.Context, side domain.Side, qty, price float64, opts domain.OrderOpts) (domain.Order, error) {
	if c.cfg.PaperTrading {
		return c.paperOrder("LIMIT", side, qty, price, 0), nil
	}

	tif := opts.TimeInForce
	if tif == "" {
		tif = "GTC"
	}
	params := url.Values{}
	params.Set("symbol", c.cfg.Symbol)
	params.Set("side", orderSide(side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", tif)
	params.Set("quantity", formatQty(qty))
	params.Set("price", formatPrice(price))
	if opts.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	order, err := c.placeOrder(ctx, params)
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: place limit order: %w", err)
	}
	order.Side, order.Qty, order.Price = side, qty, price
	return order, nil
}

// PlaceStopMarketOrder submits a reduce-only STOP_MARKET order used as the
// protective stop.
func (c *Client) PlaceStopMarketOrder(ctx context.Context, side domain.Side, qty, stopPrice float64) (domain.Order, error) {
	if c.cfg.PaperTrading {
		return c.paperOrder("STOP_MARKET", side, qty, 0, stopPrice), nil
	}

	params := url.Values{}
	params.Set("symbol", c.cfg.Symbol)
	params.Set("side", orderSide(side))
	params.Set("type", "STOP_MARKET")
	params.Set("stopPrice", formatPrice(stopPrice))
	params.Set("quantity", formatQty(qty))
	params.Set("reduceOnly", "true")

	order, err := c.placeOrder(ctx, params)
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: place stop market order: %w", err)
	}
	order.Side, order.Qty, order.StopPrice = side, qty, stopPrice
	return order, nil
}

// PlaceMarketOrder submits a market order, used for all position closes.
func (c *Client) PlaceMarketOrder(ctx context.Context, side domain.Side, qty float64, opts domain.OrderOpts) (domain.Order, error) {
	if c.cfg.PaperTrading {
		return c.paperOrder("MARKET", side, qty, 0, 0), nil
	}

	params := url.Values{}
	params.Set("symbol", c.cfg.Symbol)
	params.Set("side", orderSide(side))
	params.Set("type", "MARKET")
	params.Set("quantity", formatQty(qty))
	if opts.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	order, err := c.placeOrder(ctx, params)
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: place market order: %w", err)
	}
	order.Side, order.Qty = side, qty
	return order, nil
}

// CancelAllOrders cancels every open order for the symbol.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	if c.cfg.PaperTrading {
		c.logger.Info("paper: cancel all orders")
		return nil
	}

	params := url.Values{}
	params.Set("symbol", c.cfg.Symbol)

	if _, err := c.callWithRetry(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params, true); err != nil {
		return fmt.Errorf("binance: cancel all orders: %w", err)
	}
	return nil
}

// paperOrder fabricates a filled order handle for paper-trading mode.
func (c *Client) paperOrder(kind string, side domain.Side, qty, price, stopPrice float64) domain.Order {
	c.logger.Info("paper order",
		slog.String("type", kind),
		slog.String("side", orderSide(side)),
		slog.Float64("qty", qty),
		slog.Float64("price", price),
		slog.Float64("stop_price", stopPrice),
	)
	return domain.Order{
		ID:            "paper-" + uuid.NewString(),
		ClientOrderID: uuid.NewString(),
		Side:          side,
		Qty:           qty,
		Price:         price,
		StopPrice:     stopPrice,
		Status:        domain.OrderStatusFilled,
	}
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', 6, 64)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

// Compile-time interface check.
var _ domain.Exchange = (*Client)(nil)
