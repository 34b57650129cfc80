// Package gateway is the client for the live game server's enforcement API.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dokkuadmin/banflow/internal/setup/config"
	"github.com/dokkuadmin/banflow/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrNotConfigured is returned when no base URL is set.
	ErrNotConfigured = errors.New("enforcement gateway is not configured")
	// ErrRejected is returned when the game server refuses a request.
	ErrRejected = errors.New("enforcement gateway rejected request")
	// ErrUnavailable is returned when the game server cannot be reached.
	ErrUnavailable = errors.New("enforcement gateway unavailable")
)

// Action is the enforcement verb sent to the game server.
type Action string

const (
	ActionBan   Action = "ban"
	ActionUnban Action = "unban"
)

// PermanentDuration is the duration value the game server reads as permanent.
const PermanentDuration = "-1"

// BanRequest is the body of a player ban or unban.
type BanRequest struct {
	Action   Action `json:"action"`
	UserID   int64  `json:"userid"`
	Reason   string `json:"reason"`
	Duration string `json:"duration,omitempty"`
}

// HwidBanRequest is the body of a hardware ban or unban.
type HwidBanRequest struct {
	Action      Action   `json:"action"`
	UserID      int64    `json:"userid"`
	Reason      string   `json:"reason"`
	Identifiers []string `json:"identifiers,omitempty"`
	BanID       string   `json:"banid,omitempty"`
}

// Result is the game server's reply. The content is passed through as-is.
type Result struct {
	Success    *bool  `json:"success,omitempty"`
	Message    string `json:"message,omitempty"`
	StatusCode int    `json:"-"`
}

// Client calls the enforcement endpoints with the shared secret.
// It holds no state between calls.
type Client struct {
	http     *http.Client
	baseURL  string
	key      string
	banPath  string
	hwidPath string
	retry    utils.RetryOptions
	logger   *zap.Logger
}

// New creates a gateway client from configuration.
func New(cfg *config.Gateway, logger *zap.Logger) *Client {
	retry := utils.GetGatewayRetryOptions()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}

	return &Client{
		http: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		key:      cfg.Key,
		banPath:  cfg.BanPath,
		hwidPath: cfg.HwidBanPath,
		retry:    retry,
		logger:   logger.Named("gateway"),
	}
}

// Ban applies or lifts a ban on a player in the running game session.
// durationHours of -1 is a permanent ban.
func (c *Client) Ban(
	ctx context.Context, userID int64, reason string, durationHours int, action Action,
) (*Result, error) {
	req := BanRequest{
		Action: action,
		UserID: userID,
		Reason: reason,
	}
	if action == ActionBan {
		req.Duration = strconv.Itoa(durationHours)
	}

	return c.post(ctx, c.banPath, userID, req)
}

// UpdateHwidBan applies or lifts a hardware ban.
func (c *Client) UpdateHwidBan(ctx context.Context, req HwidBanRequest) (*Result, error) {
	return c.post(ctx, c.hwidPath, req.UserID, req)
}

// post sends body to path, retrying transport errors, 429 and 5xx.
func (c *Client) post(ctx context.Context, path string, userID int64, body any) (*Result, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gateway request: %w", err)
	}

	url := c.baseURL + path
	attempt := 0

	result, err := utils.WithRetry(ctx, func() (*Result, error) {
		attempt++
		return c.do(ctx, url, payload)
	}, c.retry)
	if err != nil {
		c.logger.Error("Gateway call failed",
			zap.String("path", path),
			zap.Int64("userID", userID),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return result, err
	}

	c.logger.Info("Gateway call succeeded",
		zap.String("path", path),
		zap.Int64("userID", userID),
		zap.Int("attempts", attempt),
		zap.String("message", result.Message))

	return result, nil
}

// do performs one attempt. Errors that must not be retried are wrapped
// with utils.Stop.
func (c *Client) do(ctx context.Context, url string, payload []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, utils.Stop(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("key", c.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, utils.Stop(fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err()))
		}
		if isTemporaryError(err) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, utils.Stop(fmt.Errorf("%w: %w", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	result := &Result{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(raw)) > 0 {
		// Non-JSON bodies are kept as the message
		if err := sonic.Unmarshal(raw, result); err != nil {
			result.Message = string(raw)
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return result, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, result.Message)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return result, utils.Stop(fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, result.Message))
	case result.Success != nil && !*result.Success:
		return result, utils.Stop(fmt.Errorf("%w: %s", ErrRejected, result.Message))
	}

	return result, nil
}

// isTemporaryError reports whether a transport error is worth retrying.
func isTemporaryError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
