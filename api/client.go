// Package api centralizes all upstream collaborator calls: sales-order
// lookup, SharePoint folder preflight and photo upload, and session log
// upload. Every call runs under its own context deadline.
package api

import (
	"fmt"
	"net/http"
	"strings"

	"qckiosk/config"
)

// Client talks to the upstream QC services.
type Client struct {
	cfg  *config.APIConfig
	http *http.Client
}

// NewClient creates an API client. Timeouts are applied per call via
// context, not on the underlying http.Client.
func NewClient(cfg *config.APIConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
	}
}

// StatusError reports a non-retryable HTTP failure from a collaborator.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.Code, e.Body)
}

func trimBase(u string) string {
	return strings.TrimRight(u, "/")
}
