package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// UploadLogs posts a serialized session log payload to the log collector.
func (c *Client) UploadLogs(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LogTimeout)
	defer cancel()

	u := trimBase(c.cfg.LogURL) + "/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("log upload HTTP %d: %s", res.StatusCode, body)
	}
	return nil
}
