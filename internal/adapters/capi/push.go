package capi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// hashedEmail returns the SHA-256 the platforms expect for matching. Customer
// keys are already a hash prefix, never a raw address, so they get hashed
// again unless they are a full 64-char digest.
func hashedEmail(customerKey string) string {
	if len(customerKey) == 64 {
		return customerKey
	}
	sum := sha256.Sum256([]byte(customerKey))
	return hex.EncodeToString(sum[:])
}

// postJSON posts body as JSON and decodes the response into out (when out is
// non-nil). Non-2xx statuses are returned as errors with a response excerpt.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, excerpt(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func excerpt(data []byte) string {
	const max = 500
	if len(data) > max {
		return string(data[:max])
	}
	return string(data)
}
