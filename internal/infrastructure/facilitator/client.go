// Package facilitator implements the facilitator-verification client: it asks an
// external facilitator service to verify and settle a pre-signed payment
// envelope, generalized from Ethereum-only to the offer's configured
// network/mint.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Requirements mirrors the offer-derived payment requirements sent to the
// facilitator alongside the envelope.
type Requirements struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Mint      string `json:"mint"`
	Network   string `json:"network"`
	Scheme    string `json:"scheme"`
}

// VerifyResult carries the outcome of a /verify call, including the
// effective payer — the authority of the token-transfer instruction, not
// the (possibly distinct) fee payer.
type VerifyResult struct {
	Payer string
}

// Client talks to an x402-style facilitator REST API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client against baseURL with a bounded timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Verify checks envelope (the decoded X-Payment payload) against req.
func (c *Client) Verify(ctx context.Context, envelope []byte, req Requirements) (*VerifyResult, error) {
	var resp struct {
		IsValid        bool   `json:"isValid"`
		InvalidReason  string `json:"invalidReason"`
		InvalidMessage string `json:"invalidMessage"`
		Payer          string `json:"payer"`
	}
	if err := c.post(ctx, "/verify", envelope, req, &resp); err != nil {
		return nil, fmt.Errorf("facilitator verify: %w", err)
	}
	if !resp.IsValid {
		reason := resp.InvalidReason
		if resp.InvalidMessage != "" {
			reason += ": " + resp.InvalidMessage
		}
		return nil, fmt.Errorf("payment invalid: %s", reason)
	}
	return &VerifyResult{Payer: resp.Payer}, nil
}

// Settle broadcasts the signed transaction carried by envelope. Call only
// after a successful Verify.
func (c *Client) Settle(ctx context.Context, envelope []byte, req Requirements) error {
	var resp struct {
		Success      bool   `json:"success"`
		ErrorReason  string `json:"errorReason"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := c.post(ctx, "/settle", envelope, req, &resp); err != nil {
		return fmt.Errorf("facilitator settle: %w", err)
	}
	if !resp.Success {
		reason := resp.ErrorReason
		if resp.ErrorMessage != "" {
			reason += ": " + resp.ErrorMessage
		}
		return fmt.Errorf("settlement failed: %s", reason)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, envelope []byte, req Requirements, dst interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"paymentPayload":      json.RawMessage(envelope),
		"paymentRequirements": req,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("facilitator returned %d: %s", resp.StatusCode, respBody)
	}

	return json.Unmarshal(respBody, dst)
}
