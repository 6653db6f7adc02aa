// Package device talks to the enforcement device agent over HTTP. The agent
// owns live session state and the device-side profile table; this package is
// a thin client that maps transport failures onto stable errors the services
// layer can branch on.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"voucherd/pkg/contracts/domain"
)

var (
	// ErrUnreachable is returned when the device agent cannot be reached or
	// answers with a server error.
	ErrUnreachable = errors.New("enforcement device unreachable")

	// ErrNotFound is returned when the device reports the target record does
	// not exist, typically a session that already disconnected.
	ErrNotFound = errors.New("record not found on device")
)

// Client is the enforcement-device boundary used by the services layer.
type Client interface {
	GetDevice(ctx context.Context, deviceID string) (domain.Device, error)
	ListSessions(ctx context.Context, deviceID string) ([]domain.Session, error)
	TerminateSession(ctx context.Context, deviceID, sessionID string) error
	CreateProfile(ctx context.Context, profile domain.Profile) error
	DeleteProfile(ctx context.Context, deviceID, name string) error
}

// HTTPClient implements Client against the agent's JSON API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a device client. timeout bounds every request.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// sessionPayload is the agent's wire shape for an active session. Uptime
// comes back in seconds.
type sessionPayload struct {
	ID            string `json:"id"`
	User          string `json:"user"`
	Address       string `json:"address"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	BytesIn       int64  `json:"bytes_in"`
	BytesOut      int64  `json:"bytes_out"`
}

func (c *HTTPClient) GetDevice(ctx context.Context, deviceID string) (domain.Device, error) {
	var payload domain.Device
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/devices/%s", url.PathEscape(deviceID)), nil, &payload)
	if err != nil {
		return domain.Device{}, err
	}
	return payload, nil
}

func (c *HTTPClient) ListSessions(ctx context.Context, deviceID string) ([]domain.Session, error) {
	var payload []sessionPayload
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/devices/%s/sessions", url.PathEscape(deviceID)), nil, &payload)
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, 0, len(payload))
	for _, p := range payload {
		sessions = append(sessions, domain.Session{
			ID:          p.ID,
			VoucherCode: p.User,
			Address:     p.Address,
			Uptime:      time.Duration(p.UptimeSeconds) * time.Second,
			BytesIn:     p.BytesIn,
			BytesOut:    p.BytesOut,
		})
	}
	return sessions, nil
}

func (c *HTTPClient) TerminateSession(ctx context.Context, deviceID, sessionID string) error {
	path := fmt.Sprintf("/devices/%s/sessions/%s", url.PathEscape(deviceID), url.PathEscape(sessionID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) CreateProfile(ctx context.Context, profile domain.Profile) error {
	body := map[string]any{
		"name":         profile.Name,
		"rate_limit":   profile.RateLimit,
		"shared_users": profile.SharedUsers,
	}
	path := fmt.Sprintf("/devices/%s/profiles", url.PathEscape(profile.DeviceID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *HTTPClient) DeleteProfile(ctx context.Context, deviceID, name string) error {
	path := fmt.Sprintf("/devices/%s/profiles/%s", url.PathEscape(deviceID), url.PathEscape(name))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do issues one request and decodes the response into out when non-nil.
// Network failures and 5xx responses both map to ErrUnreachable so callers
// treat a crashed agent and an unroutable one the same way.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building device request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "device request failed",
			"method", method,
			"path", path,
			"error", err)
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: device answered %d", ErrUnreachable, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("device rejected request: status %d: %s", resp.StatusCode, string(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding device response: %w", err)
	}
	return nil
}
