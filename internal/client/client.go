// Package client is a small HTTP client for kv-server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"imgkv/internal/shared"
)

// StatusError is returned for any non-2xx response. Kind carries the
// server's error classification when the body was a JSON error.
type StatusError struct {
	Code    int
	Kind    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("kv-server: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("kv-server: %d %s", e.Code, e.Message)
}

// Client calls kv-server. Requests carry no deadline of their own; bound
// them with the context passed to each method.
type Client struct {
	BaseURL    string
	AdminToken string
	HTTP       *http.Client
}

func New(baseURL, adminToken string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: adminToken,
		HTTP:       &http.Client{},
	}
}

func (c *Client) request(ctx context.Context, method, path string, body []byte, admin bool) (*http.Request, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if admin {
		req.Header.Set(shared.HeaderAuthorization, "Bearer "+c.AdminToken)
	}
	return req, nil
}

// do sends req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		var er shared.ErrorResponse
		if json.Unmarshal(b, &er) == nil {
			se.Kind, se.Message = er.Kind, er.Error
		}
		return nil, resp.Header, se
	}
	return b, resp.Header, nil
}

func keyPath(key string) string {
	return shared.PathKV + url.PathEscape(key)
}

// Put stores body under key with the given content type.
func (c *Client) Put(ctx context.Context, key, contentType string, body []byte) error {
	req, err := c.request(ctx, http.MethodPost, keyPath(key), body, false)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set(shared.HeaderContentType, contentType)
	}
	_, _, err = c.do(req)
	return err
}

// Get returns the value under key and its content type.
func (c *Client) Get(ctx context.Context, key string) ([]byte, string, error) {
	return c.fetch(ctx, keyPath(key))
}

// Grayscale returns the grayscale PNG rendition of the image under key.
func (c *Client) Grayscale(ctx context.Context, key string) ([]byte, error) {
	b, _, err := c.fetch(ctx, keyPath(key)+"/grayscale")
	return b, err
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, string, error) {
	req, err := c.request(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, "", err
	}
	b, h, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	return b, h.Get(shared.HeaderContentType), nil
}

// Delete removes key. Requires the admin token.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := c.request(ctx, http.MethodDelete, shared.PathAdminKV+"/"+url.PathEscape(key), nil, true)
	if err != nil {
		return err
	}
	_, _, err = c.do(req)
	return err
}

// DeleteAll empties the store. Requires the admin token.
func (c *Client) DeleteAll(ctx context.Context) error {
	req, err := c.request(ctx, http.MethodDelete, shared.PathAdminKV, nil, true)
	if err != nil {
		return err
	}
	_, _, err = c.do(req)
	return err
}

// Stats fetches store counts. Requires the admin token.
func (c *Client) Stats(ctx context.Context) (shared.StatsResponse, error) {
	var st shared.StatsResponse
	req, err := c.request(ctx, http.MethodGet, shared.PathAdminStat, nil, true)
	if err != nil {
		return st, err
	}
	b, _, err := c.do(req)
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(b, &st)
	return st, err
}
