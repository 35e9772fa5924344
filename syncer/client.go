// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// requestTimeout bounds every network call. Tuned for unreliable hospital
// Wi-Fi; a timeout is treated identically to any other network error.
const requestTimeout = 10 * time.Second

// APIClient is a thin JSON client for the sync server's HTTP contract.
type APIClient struct {
	BaseURL string
	Token   TokenProvider
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewAPIClient creates a client with the bounded default timeout.
func NewAPIClient(baseURL string, token TokenProvider, logger *slog.Logger) *APIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIClient{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// RegisterDevice registers this device with the server fleet registry.
func (c *APIClient) RegisterDevice(ctx context.Context, req *RegisterDeviceRequest) error {
	return c.do(ctx, http.MethodPost, "/sync/register-device", nil, req, nil)
}

// FetchChanges requests all entities modified strictly after since,
// optionally scoped to a ward.
func (c *APIClient) FetchChanges(ctx context.Context, since, deviceID, wardID string) (*ChangesResponse, error) {
	query := url.Values{}
	query.Set("since", since)
	query.Set("deviceId", deviceID)
	if wardID != "" {
		query.Set("wardId", wardID)
	}
	var resp ChangesResponse
	if err := c.do(ctx, http.MethodGet, "/sync/changes", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PushBatch submits queued mutations as one atomic batch.
func (c *APIClient) PushBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.do(ctx, http.MethodPost, "/sync/batch", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ScanBarcode looks a wristband barcode up on the server. Used only as the
// online fallback when the scan misses the local cache.
func (c *APIClient) ScanBarcode(ctx context.Context, barcodeString string) (*ScannedBarcodeResponse, error) {
	var resp ScannedBarcodeResponse
	if err := c.do(ctx, http.MethodGet, "/barcodes/scan/"+url.PathEscape(barcodeString), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LinkBarcode tells the server about a barcode-to-patient binding. Callers
// treat failures as non-fatal; the queued mutation remains authoritative.
func (c *APIClient) LinkBarcode(ctx context.Context, req *LinkBarcodeRequest) error {
	return c.do(ctx, http.MethodPost, "/barcodes/link", nil, req, nil)
}

// PostAdminister is the fire-and-forget optimization layered on top of the
// queue: a best-effort immediate submit of a freshly recorded event. Its
// failure is deliberately swallowed by callers, because the queued
// operation remains the durable source of truth.
func (c *APIClient) PostAdminister(ctx context.Context, payload any) error {
	return c.do(ctx, http.MethodPost, "/events/administer", nil, payload, nil)
}
