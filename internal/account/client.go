// Package account is the REST client for the messaging account server:
// device listing, verification-code issuance and new-device registration.
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Device is one entry of the account's linked-device list.
type Device struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// Attributes describes the account attributes submitted when linking a new
// device.
type Attributes struct {
	RegistrationID  int      `json:"registration_id"`
	FetchesMessages bool     `json:"fetches_messages"`
	Name            string   `json:"name"`
	Capabilities    []string `json:"capabilities"`
	Discoverable    bool     `json:"discoverable"`
}

// SignedPreKey is a public pre-key signed by an account identity key.
type SignedPreKey struct {
	KeyID     int    `json:"key_id"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// PreKeyBundle carries the one-shot and last-resort pre-keys for one
// identity.
type PreKeyBundle struct {
	SignedPreKey SignedPreKey `json:"signed_pre_key"`
	LastResort   SignedPreKey `json:"last_resort_pre_key"`
}

// LinkRequest is the "finish new device" submission.
type LinkRequest struct {
	VerificationCode  string       `json:"verification_code"`
	Attributes        Attributes   `json:"account_attributes"`
	MessagingPreKeys  PreKeyBundle `json:"messaging_pre_keys"`
	DiscoveryPreKeys  PreKeyBundle `json:"discovery_pre_keys"`
	NewDevicePassword string       `json:"-"`
}

// Client talks to the account server with the account's credentials.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type devicesResponse struct {
	Devices []Device `json:"devices"`
}

// Devices returns the account's current linked-device list.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/devices", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("account server returned %d listing devices", resp.StatusCode)
	}
	var parsed devicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Devices, nil
}

type codeResponse struct {
	VerificationCode string `json:"verification_code"`
}

// NewDeviceCode requests a verification code for linking a new device.
func (c *Client) NewDeviceCode(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/devices/provisioning/code", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("account server returned %d issuing device code", resp.StatusCode)
	}
	var parsed codeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.VerificationCode, nil
}

type linkResponse struct {
	DeviceID int `json:"device_id"`
}

// FinishNewDevice submits the verification code, account attributes and both
// pre-key bundles, authenticating as the device being created. Returns the
// assigned device id.
func (c *Client) FinishNewDevice(ctx context.Context, link LinkRequest) (int, error) {
	body, err := json.Marshal(link)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/devices/link", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, link.NewDevicePassword)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("account server returned %d linking device", resp.StatusCode)
	}
	var parsed linkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, err
	}
	return parsed.DeviceID, nil
}
