// Package relay talks to the relay server that bridges distributor pushes
// to the messaging account.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/halvely/push-relay-agent/internal/model"
)

// Client performs single-attempt calls against a relay server. Retry policy
// lives with the reconciliation job, not here.
type Client struct {
	client *http.Client
	logger *slog.Logger
}

func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ProbeReachability performs a lightweight check against the configured base
// URL. It returns false on any non-2xx response or network failure and never
// reports an error for ordinary network problems.
func (c *Client) ProbeReachability(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("relay probe failed", slog.String("url", url), slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type registerRequest struct {
	UUID     string `json:"uuid"`
	DeviceID int    `json:"device_id"`
	Password string `json:"password"`
	Endpoint string `json:"endpoint"`
}

type registerResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Register submits the linked device identity and the distributor-issued
// endpoint to the relay server. Definitive server rejections map to an
// outcome with a nil error; the error is non-nil only for transport
// failures, which the job treats as retryable.
func (c *Client) Register(ctx context.Context, url string, device model.LinkedDevice, endpoint string) (model.RegistrationOutcome, error) {
	if url == "" {
		return model.OutcomeServerNotFound, nil
	}
	if endpoint == "" {
		return model.OutcomeNoEndpoint, nil
	}

	body, err := json.Marshal(registerRequest{
		UUID:     device.AccountID,
		DeviceID: device.DeviceID,
		Password: device.Password,
		Endpoint: endpoint,
	})
	if err != nil {
		return model.OutcomeInternalError, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"register", bytes.NewReader(body))
	if err != nil {
		return model.OutcomeServerNotFound, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.OutcomeInternalError, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return model.OutcomeServerNotFound, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return forbiddenOutcome(resp), nil
	case resp.StatusCode >= 400:
		c.logger.Warn("relay register rejected", slog.Int("status", resp.StatusCode))
		return model.OutcomeInternalError, nil
	}

	var parsed registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.OutcomeInternalError, nil
	}
	switch parsed.Status {
	case "ok":
		return model.OutcomeOK, nil
	case "forbidden":
		if parsed.Reason == "endpoint" {
			return model.OutcomeForbiddenEndpoint, nil
		}
		return model.OutcomeForbiddenUUID, nil
	default:
		return model.OutcomeInternalError, nil
	}
}

func forbiddenOutcome(resp *http.Response) model.RegistrationOutcome {
	var parsed registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.Reason == "endpoint" {
		return model.OutcomeForbiddenEndpoint
	}
	return model.OutcomeForbiddenUUID
}
