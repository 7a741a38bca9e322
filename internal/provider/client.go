// Package provider talks to upstream SMM panels over the common v2 API and
// feeds their progress back into settlement.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/metrics"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
)

var ErrProviderRejected = errors.New("provider rejected request")

// RateLimitedError carries the provider's Retry-After hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter)
}

// Status is an upstream order state. Canceled means the provider gave up and
// an operator has to decide about the refund.
type Status struct {
	Progress model.OrderProgress
	Canceled bool
}

type Client struct {
	http    *http.Client
	metrics *metrics.Metrics
}

func NewClient(timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{http: &http.Client{Timeout: timeout}, metrics: m}
}

// flexInt accepts both 42 and "42"; panels disagree on number encoding.
type flexInt struct {
	value *int64
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	f.value = &v
	return nil
}

func (c *Client) AddOrder(ctx context.Context, p model.Provider, serviceID, link string, quantity int64) (string, error) {
	var response struct {
		Order flexInt `json:"order"`
		Error string  `json:"error"`
	}

	err := c.call(ctx, p, "add", url.Values{
		"service":  {serviceID},
		"link":     {link},
		"quantity": {strconv.FormatInt(quantity, 10)},
	}, &response)
	if err == nil && response.Error != "" {
		err = fmt.Errorf("%w: %s", ErrProviderRejected, response.Error)
	}
	if err == nil && response.Order.value == nil {
		err = fmt.Errorf("%w: response has no order id", ErrProviderRejected)
	}
	c.metrics.ProviderRequest("add", err)
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(*response.Order.value, 10), nil
}

func (c *Client) Status(ctx context.Context, p model.Provider, providerOrderID string) (Status, error) {
	var response struct {
		Status     string  `json:"status"`
		StartCount flexInt `json:"start_count"`
		Remains    flexInt `json:"remains"`
		Error      string  `json:"error"`
	}

	err := c.call(ctx, p, "status", url.Values{"order": {providerOrderID}}, &response)
	if err == nil && response.Error != "" {
		err = fmt.Errorf("%w: %s", ErrProviderRejected, response.Error)
	}

	var status Status
	if err == nil {
		status, err = mapStatus(response.Status)
		status.Progress.StartCount = response.StartCount.value
		status.Progress.Remains = response.Remains.value
	}
	c.metrics.ProviderRequest("status", err)

	return status, err
}

func mapStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return Status{Progress: model.OrderProgress{Status: model.Pending}}, nil
	case "in progress", "processing":
		return Status{Progress: model.OrderProgress{Status: model.Processing}}, nil
	case "completed":
		return Status{Progress: model.OrderProgress{Status: model.Completed}}, nil
	case "partial":
		return Status{Progress: model.OrderProgress{Status: model.Partial}}, nil
	case "canceled", "cancelled":
		return Status{Canceled: true}, nil
	}
	return Status{}, fmt.Errorf("unknown provider status %q", s)
}

func (c *Client) call(ctx context.Context, p model.Provider, action string, params url.Values, out any) error {
	params.Set("key", p.APIKey)
	params.Set("action", action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.APIURL, bytes.NewBufferString(params.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case http.StatusTooManyRequests:
		retry := &RateLimitedError{RetryAfter: time.Second}
		if sec, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && sec > 0 {
			retry.RetryAfter = time.Duration(sec) * time.Second
		}
		return retry
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}
