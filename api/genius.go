package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrOrderNotFound is returned when the order code is unknown upstream.
// Not-found is terminal for the attempt and never retried.
var ErrOrderNotFound = errors.New("order not found")

// FetchSalesOrder looks up a sales order by code. Attempts are retried with
// a fixed backoff only for responses of 501 and above and for transport
// errors; 404 maps to ErrOrderNotFound and every other non-2xx status fails
// immediately.
func (c *Client) FetchSalesOrder(ctx context.Context, orderNo string) (*SalesOrder, error) {
	url := c.cfg.GeniusURL + orderNo
	tries := c.cfg.LookupRetries
	if tries <= 0 {
		tries = 1
	}

	var lastErr error
	for i := 0; i < tries; i++ {
		so, err := c.fetchOnce(ctx, url, orderNo)
		if err == nil {
			return so, nil
		}
		var se *StatusError
		if errors.Is(err, ErrOrderNotFound) || errors.As(err, &se) {
			return nil, err
		}
		lastErr = err
		if i < tries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, url, orderNo string) (*SalesOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		var so SalesOrder
		if err := json.NewDecoder(res.Body).Decode(&so); err != nil {
			return nil, fmt.Errorf("decode sales order: %w", err)
		}
		return &so, nil
	case res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("order %s not found in Genius: %w", orderNo, ErrOrderNotFound)
	case res.StatusCode < 501:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &StatusError{Code: res.StatusCode, Body: string(body)}
	default:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("server responded %d: %s", res.StatusCode, string(body))
	}
}
