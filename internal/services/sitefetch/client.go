// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sitefetch retrieves pages from the indexing site and parses them into queryable documents.
package sitefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

const (
	// BrowserUserAgent is sent to the indexing site, which rejects obvious bots.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	acceptLanguage   = "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7"

	maxPageBytes int64 = 8 << 20
)

// Fetcher returns the parsed document behind url.
type Fetcher interface {
	Document(ctx context.Context, url string) (*goquery.Document, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s returned status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	_, ok := target.(*StatusError)
	return ok
}

// IsNotFound reports whether the page does not exist (anymore).
func (e *StatusError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

type Option func(*Client)

// WithReferer sets a Referer header computed on every request.
func WithReferer(fn func() string) Option {
	return func(c *Client) {
		c.referer = fn
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client fetches HTML pages with browser-like headers.
type Client struct {
	httpClient *http.Client
	userAgent  string
	referer    func() string
}

func NewClient(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  BrowserUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Document fetches pageURL and parses the body, converting it to UTF-8 first.
func (c *Client) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, fmt.Errorf("page URL is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)
	if c.referer != nil {
		if ref := c.referer(); ref != "" {
			req.Header.Set("Referer", ref)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: pageURL}
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}
