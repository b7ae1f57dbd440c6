// Package httpsource is a report source that forwards requests to another
// dashcore instance over its /api/v1 HTTP interface.
package httpsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"dashcore/internal/config"
	"dashcore/internal/logging"
	"dashcore/pkg/reportapi"
)

const maxErrorBody = 4 << 10

// Client implements facade.Source against a remote base URL.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client, whose timeout is remote.timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = logging.OrNop(l) }
}

// New validates cfg.Remote.BaseURL and builds a client.
func New(cfg config.RemoteConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("remote base url required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote base url %q: scheme must be http or https", cfg.BaseURL)
	}
	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: config.Duration(cfg.Timeout, 20*time.Second)},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(reportID, op string) string {
	return c.base.JoinPath("api", "v1", "reports", reportID, op).String()
}

// StatusError is a non-2xx answer from the remote instance.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	c.logger.Debug("remote call",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	if resp.StatusCode/100 != 2 {
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

func (c *Client) call(ctx context.Context, method, target string, body, out any) error {
	resp, err := c.do(ctx, method, target, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}

func (c *Client) Meta(ctx context.Context, req reportapi.MetaRequest) (reportapi.Meta, error) {
	var meta reportapi.Meta
	err := c.call(ctx, http.MethodGet, c.endpoint(req.ReportID, "meta"), nil, &meta)
	return meta, err
}

func (c *Client) Kpis(ctx context.Context, req reportapi.KpiRequest) (reportapi.KpiResponse, error) {
	var resp reportapi.KpiResponse
	err := c.call(ctx, http.MethodPost, c.endpoint(req.ReportID, "kpis"), req, &resp)
	return resp, err
}

func (c *Client) Table(ctx context.Context, req reportapi.TableRequest) (reportapi.TableResponse, error) {
	var resp reportapi.TableResponse
	err := c.call(ctx, http.MethodPost, c.endpoint(req.ReportID, "table"), req, &resp)
	return resp, err
}

// Drilldown maps a remote 404 to reportapi.ErrNotFound.
func (c *Client) Drilldown(ctx context.Context, req reportapi.DrilldownRequest) (reportapi.Drilldown, error) {
	var d reportapi.Drilldown
	err := c.call(ctx, http.MethodPost, c.endpoint(req.ReportID, "drilldown"), req, &d)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return reportapi.Drilldown{}, fmt.Errorf("%s: %w", se.Message, reportapi.ErrNotFound)
	}
	return d, err
}

func (c *Client) Export(ctx context.Context, req reportapi.ExportRequest) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, c.endpoint(req.ReportID, "export"), req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read export: %w", err)
	}
	return string(b), nil
}
