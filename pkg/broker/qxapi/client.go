package qxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeromicro/go-zero/core/logx"

	"qxbot/pkg/broker"
)

const (
	defaultBaseURL        = "https://api.qxbroker.example"
	defaultHTTPTimeout    = 10 * time.Second
	defaultMaxRetries     = 5
	defaultInitialBackoff = 2 * time.Second
)

// Client implements broker.Provider against the venue's JSON API with an
// optional websocket quote feed. A session token obtained at login is attached
// to every request; Connect re-establishes both the session and the feed.
type Client struct {
	name       string
	baseURL    string
	feedURL    string
	httpClient *http.Client

	email          string
	password       string
	lang           string
	demo           bool
	maxRetries     int
	initialBackoff time.Duration

	mu    sync.RWMutex
	token string
	feed  *feed
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithFeedURL enables the websocket quote feed.
func WithFeedURL(u string) Option {
	return func(c *Client) { c.feedURL = u }
}

// WithCredentials sets the login credentials.
func WithCredentials(email, password string) Option {
	return func(c *Client) {
		c.email = email
		c.password = password
	}
}

// WithDemo selects the practice account.
func WithDemo(demo bool) Option {
	return func(c *Client) { c.demo = demo }
}

// WithRetryPolicy bounds the reconnect backoff.
func WithRetryPolicy(maxRetries int, initial time.Duration) Option {
	return func(c *Client) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		if initial > 0 {
			c.initialBackoff = initial
		}
	}
}

// NewClient constructs a venue API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		name:           "qxapi",
		baseURL:        defaultBaseURL,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
		lang:           "en",
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func init() {
	broker.RegisterProvider("qxapi", func(name string, cfg *broker.ProviderConfig) (broker.Provider, error) {
		opts := []Option{
			WithCredentials(cfg.Email, cfg.Password),
			WithDemo(cfg.Demo),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.FeedURL != "" {
			opts = append(opts, WithFeedURL(cfg.FeedURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		if cfg.MaxRetries > 0 || cfg.InitialBackoff > 0 {
			opts = append(opts, WithRetryPolicy(cfg.MaxRetries, cfg.InitialBackoff))
		}
		c := NewClient(opts...)
		c.name = name
		if cfg.Lang != "" {
			c.lang = cfg.Lang
		}
		return c, nil
	})
}

// Connect logs in with bounded exponential backoff and, when a feed URL is
// configured, (re)establishes the websocket quote stream. Exhausting the retry
// budget returns a connectivity error the caller treats as fatal.
func (c *Client) Connect(ctx context.Context) error {
	if strings.TrimSpace(c.email) == "" || strings.TrimSpace(c.password) == "" {
		return broker.NewError(broker.KindRejected, "connect",
			fmt.Errorf("provider %q has no email/password configured", c.name))
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxRetries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := c.login(ctx); err != nil {
			logx.Errorf("qxapi: login attempt %d/%d failed: %v", attempt, c.maxRetries+1, err)
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return broker.NewError(broker.KindConnectivity, "connect",
			fmt.Errorf("login failed after %d attempts: %w", attempt, err))
	}
	logx.Infof("qxapi: connected on attempt %d (demo=%v)", attempt, c.demo)

	if c.feedURL != "" {
		if err := c.startFeed(ctx); err != nil {
			// The feed is an optimisation; REST quotes remain available.
			logx.Errorf("qxapi: quote feed unavailable, falling back to REST: %v", err)
		}
	}
	return nil
}

func (c *Client) login(ctx context.Context) error {
	payload := loginRequest{Email: c.email, Password: c.password, Lang: c.lang, Demo: c.demo}
	var resp loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/login", payload, &resp); err != nil {
		return err
	}
	if resp.Token == "" {
		return broker.NewError(broker.KindMalformed, "login", fmt.Errorf("empty session token"))
	}
	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return nil
}

func (c *Client) startFeed(ctx context.Context) error {
	c.mu.Lock()
	if c.feed != nil {
		c.feed.close()
		c.feed = nil
	}
	token := c.token
	c.mu.Unlock()

	f, err := dialFeed(ctx, c.feedURL, token)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.feed = f
	c.mu.Unlock()
	return nil
}

// Close tears down the quote feed. The HTTP session needs no explicit logout.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feed != nil {
		c.feed.close()
		c.feed = nil
	}
}

// Ping probes session liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/api/v1/ping", nil, nil)
}

// GetBalance returns the account balance for the selected account mode.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/balance", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// GetQuote serves the latest feed price when the stream is live, falling back
// to the REST quote endpoint.
func (c *Client) GetQuote(ctx context.Context, instrument string) (*broker.Quote, error) {
	c.mu.RLock()
	f := c.feed
	c.mu.RUnlock()
	if f != nil {
		if q, ok := f.latest(instrument); ok {
			return &q, nil
		}
	}

	var resp quotePayload
	path := "/api/v1/quote?" + url.Values{"asset": {instrument}}.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Price <= 0 {
		return nil, broker.NewError(broker.KindUnavailable, "get quote",
			fmt.Errorf("no price for %s", instrument))
	}
	return &broker.Quote{
		Instrument: instrument,
		Price:      resp.Price,
		At:         time.UnixMilli(resp.TsMs),
	}, nil
}

// GetCandles fetches up to count bars of the given timeframe.
func (c *Client) GetCandles(ctx context.Context, instrument string, timeframe time.Duration, count int) ([]broker.Candle, error) {
	q := url.Values{
		"asset":  {instrument},
		"period": {fmt.Sprintf("%d", int(timeframe.Seconds()))},
		"count":  {fmt.Sprintf("%d", count)},
	}
	var resp []candlePayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/candles?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, broker.NewError(broker.KindUnavailable, "get candles",
			fmt.Errorf("no candles for %s", instrument))
	}
	out := make([]broker.Candle, 0, len(resp))
	for _, k := range resp {
		out = append(out, broker.Candle{
			OpenTime: time.UnixMilli(k.TsMs),
			Open:     k.Open,
			High:     k.High,
			Low:      k.Low,
			Close:    k.Close,
		})
	}
	return out, nil
}

// ListInstruments returns the venue's tradable assets with payout info.
func (c *Client) ListInstruments(ctx context.Context) ([]broker.Instrument, error) {
	var resp []instrumentPayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/instruments", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]broker.Instrument, 0, len(resp))
	for _, inst := range resp {
		out = append(out, broker.Instrument{
			ID:            inst.Symbol,
			Name:          inst.Name,
			PayoutPercent: inst.Payout,
			IsOTC:         strings.HasSuffix(strings.ToLower(inst.Symbol), "_otc"),
			IsOpen:        inst.IsOpen,
		})
	}
	return out, nil
}

// SubmitOrder places a binary option.
func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderReceipt, error) {
	payload := orderPayload{
		Asset:       req.Instrument,
		Direction:   string(req.Direction),
		Amount:      req.Amount,
		DurationSec: int(req.Duration.Seconds()),
	}
	var resp orderResponsePayload
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/orders", payload, &resp); err != nil {
		return nil, err
	}
	receipt := &broker.OrderReceipt{
		OrderID:       resp.ID,
		OpenedAt:      time.UnixMilli(resp.OpenTsMs),
		PercentProfit: resp.PercentProfit,
		PercentLoss:   resp.PercentLoss,
	}
	if resp.Balance != nil {
		receipt.PostTradeBalance = *resp.Balance
		receipt.HasPostTradeBalance = true
	}
	return receipt, nil
}

// QueryOutcome fetches settlement state by order id.
func (c *Client) QueryOutcome(ctx context.Context, orderID string) (*broker.Outcome, error) {
	var resp outcomePayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/orders/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return nil, err
	}
	out := &broker.Outcome{OrderID: orderID, ProfitAmount: resp.Profit}
	switch strings.ToLower(resp.Status) {
	case "open", "pending":
		out.Status = broker.OutcomeOpen
	case "win":
		out.Status = broker.OutcomeWin
	case "loss", "lost":
		out.Status = broker.OutcomeLoss
	case "draw", "equal":
		out.Status = broker.OutcomeDraw
	default:
		return nil, broker.NewError(broker.KindMalformed, "query outcome",
			fmt.Errorf("unknown status %q for order %s", resp.Status, orderID))
	}
	return out, nil
}

// doJSON issues one request with the session token attached and decodes the
// response. Classification: 4xx on the request body is a rejection, 401/403 a
// dead session, 404 missing data, anything else connectivity.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return broker.NewError(broker.KindMalformed, path, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return broker.NewError(broker.KindMalformed, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return broker.NewError(broker.KindConnectivity, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return broker.NewError(broker.KindConnectivity, path, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		var apiErr apiErrorPayload
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		kind := broker.KindConnectivity
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			kind = broker.KindConnectivity
		case resp.StatusCode == http.StatusNotFound:
			kind = broker.KindUnavailable
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			kind = broker.KindRejected
		}
		return broker.NewError(kind, path, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return broker.NewError(broker.KindMalformed, path, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
