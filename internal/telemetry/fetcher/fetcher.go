// Package fetcher performs authenticated requests against the Zeeho vehicle API.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bestk/zeeho-widgets/internal/pkg/metrics"
	"github.com/bestk/zeeho-widgets/internal/telemetry"
	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
)

const (
	DefaultBaseURL   = "https://tapi.zeehoev.com"
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "Apifox/1.0.0 (https://apifox.com)"

	widgetPath   = "/v1.0/app/cfmotoserverapp/vehicle/widgets/"
	homePagePath = "/v1.0/app/cfmotoserverapp/vehicleHomePage"

	maxBodySize = 4 << 20
)

// Client fetches vehicle state. It is safe for concurrent use.
type Client struct {
	baseURL   string
	userAgent string
	cookie    string
	http      *http.Client
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithCookie(cookie string) Option {
	return func(c *Client) { c.cookie = cookie }
}

// WithTimeout bounds every request. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client. A zero Timeout is replaced
// by DefaultTimeout so requests stay bounded.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc.Timeout <= 0 {
			hc.Timeout = DefaultTimeout
		}
		c.http = hc
	}
}

// New returns a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch requests the current state of cfg.VehicleID.
func (c *Client) Fetch(ctx context.Context, cfg telemetry.Config) (*model.RawPayload, error) {
	if cfg.VehicleID == "" {
		return nil, &telemetry.ConfigError{Field: "vehicleId", Reason: "must not be empty"}
	}

	start := time.Now()
	defer func() { metrics.FetchDuration.Observe(time.Since(start).Seconds()) }()

	env, status, err := c.do(ctx, cfg.Token, widgetPath+url.PathEscape(cfg.VehicleID))
	if err != nil {
		return nil, err
	}

	var data map[string]any
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := decode(env.Data, &data); err != nil {
			return nil, &TransportError{Kind: MalformedBody, Err: fmt.Errorf("data is not an object: %w", err)}
		}
	}
	if data == nil {
		return nil, &TransportError{Kind: MalformedBody, Err: errors.New("response has no data object")}
	}

	return &model.RawPayload{StatusCode: status, Code: env.Code, Message: env.Message, Data: data}, nil
}

// ListVehicles returns the raw vehicle objects bound to the token.
func (c *Client) ListVehicles(ctx context.Context, token string) ([]map[string]any, error) {
	env, _, err := c.do(ctx, token, homePagePath)
	if err != nil {
		return nil, err
	}

	var vehicles []map[string]any
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := decode(env.Data, &vehicles); err != nil {
			return nil, &TransportError{Kind: MalformedBody, Err: fmt.Errorf("data is not an array of objects: %w", err)}
		}
	}

	return vehicles, nil
}

type envelope struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type result struct {
	Code    string
	Message string
	Data    json.RawMessage
}

func (c *Client) do(ctx context.Context, token, path string) (*result, int, error) {
	if token == "" {
		return nil, 0, &telemetry.ConfigError{Field: "token", Reason: "must not be empty"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, classify(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &TransportError{Kind: NonSuccessStatus, StatusCode: resp.StatusCode}
	}

	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return nil, resp.StatusCode, &TransportError{Kind: MalformedBody, Err: errors.New("received an HTML page instead of JSON, the token is probably invalid or expired")}
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, resp.StatusCode, &TransportError{Kind: MalformedBody, Err: err}
	}

	code := envelopeCode(env.Code)
	if code != model.SuccessCode {
		return nil, resp.StatusCode, &TransportError{Kind: Rejected, Code: code, Message: env.Message}
	}

	return &result{Code: code, Message: env.Message, Data: env.Data}, resp.StatusCode, nil
}

// envelopeCode accepts the code as a JSON string or number.
func envelopeCode(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// classify maps a client error onto a TransportError. Cancellation by the
// caller is returned unchanged.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return ctxErr
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &TransportError{Kind: Timeout, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &TransportError{Kind: ConnectionRefused, Err: err}
	default:
		return &TransportError{Kind: Unreachable, Err: err}
	}
}
