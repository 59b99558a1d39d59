package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/techwave-ventures/Connektx-sub004/logger"
	"github.com/techwave-ventures/Connektx-sub004/tools/errs"
)

// Config REST 客户端配置
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration // per-request deadline; 0 => 15s
	HTTP    *http.Client  // injectable for tests; nil => default client
}

func (c *Config) norm() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.HTTP == nil {
		c.HTTP = &http.Client{}
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Client is a thin JSON-over-HTTP caller. Every request carries the session
// token; responses are decoded into the caller's struct and failures are
// mapped onto the errs code taxonomy.
type Client struct {
	conf Config
}

func NewClient(conf Config) *Client {
	conf.norm()
	return &Client{conf: conf}
}

// Token returns the credential currently attached to outbound calls.
func (c *Client) Token() string { return c.conf.Token }

func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.conf.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPost, c.conf.BaseURL+path, body, out)
}

func (c *Client) do(ctx context.Context, method, u string, body, out interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.conf.Timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(err, "encode request body")
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return errs.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.conf.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.conf.HTTP.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errs.ErrTimeout.WithDetail(method + " " + u)
		}
		return errs.ErrNetwork.WithDetail(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.ErrNetwork.WithDetail("decode response: " + err.Error())
	}
	return nil
}

func statusError(resp *http.Response) error {
	// Server error payloads are {"error": "..."} but never trusted to exist.
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &payload)
	detail := payload.Error
	if detail == "" {
		detail = fmt.Sprintf("http %d", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errs.ErrAuth.WithDetail(detail)
	case resp.StatusCode == http.StatusNotFound:
		return errs.ErrNotFound.WithDetail(detail)
	case resp.StatusCode == http.StatusConflict:
		return errs.ErrConflict.WithDetail(detail)
	default:
		logger.Debugf("[rest] unexpected status %d: %s", resp.StatusCode, detail)
		return errs.ErrNetwork.WithDetail(detail)
	}
}
