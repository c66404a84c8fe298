// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package alldebrid talks to the AllDebrid link unlocking API.
package alldebrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autobrr/ztdl/internal/buildinfo"
)

const (
	DefaultBaseURL = "https://api.alldebrid.com/v4"

	statusSuccess = "success"

	// maxResponseSize bounds the JSON envelopes read from the API.
	maxResponseSize = 2 << 20
)

// ErrMissingAPIKey is returned when no key is configured.
var ErrMissingAPIKey = errors.New("alldebrid api key is not configured")

// APIError is the error half of the API envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// CodeRedirectorError is reported when the redirector could not extract links
// from the protected page. The origin host usually recovers after a short wait.
const CodeRedirectorError = "REDIRECTOR_ERROR"

// transientCodes are the error codes retried by the checker.
var transientCodes = map[string]struct{}{
	CodeRedirectorError: {},
}

// IsTransient reports whether the error code is one the API clears on its own.
func (e *APIError) IsTransient() bool {
	_, ok := transientCodes[e.Code]
	return ok
}

// IsTransient reports whether err carries a transient APIError.
func IsTransient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsTransient()
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

// UnlockedLink is a direct download link.
type UnlockedLink struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

type redirectorData struct {
	Links []string `json:"links"`
}

// Client is a minimal AllDebrid API client authenticated with a bearer key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func NewClient(apiKey string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Redirector expands a protected link into the hoster links behind it.
func (c *Client) Redirector(ctx context.Context, link string) ([]string, error) {
	var data redirectorData
	if err := c.post(ctx, "/link/redirector", url.Values{"link": {link}}, &data); err != nil {
		return nil, err
	}
	return data.Links, nil
}

// Unlock turns a hoster link into a direct download link.
func (c *Client) Unlock(ctx context.Context, link string) (*UnlockedLink, error) {
	var data UnlockedLink
	if err := c.post(ctx, "/link/unlock", url.Values{"link": {link}}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ValidateAPIKey reports whether the configured key is accepted. Transport
// failures are returned as errors, a rejected key is (false, nil).
func (c *Client) ValidateAPIKey(ctx context.Context) (bool, error) {
	err := c.post(ctx, "/user", url.Values{}, nil)
	if err == nil {
		return true, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) || errors.Is(err, ErrMissingAPIKey) {
		return false, nil
	}
	return false, err
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	if !c.Configured() {
		return ErrMissingAPIKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build alldebrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alldebrid %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&env); err != nil {
		return fmt.Errorf("decode alldebrid %s response (status %d): %w", path, resp.StatusCode, err)
	}

	if env.Status != statusSuccess {
		if env.Error == nil {
			return &APIError{Code: "UNKNOWN", Message: fmt.Sprintf("unexpected status %q", env.Status)}
		}
		return env.Error
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode alldebrid %s data: %w", path, err)
	}
	return nil
}
