// Package transport is the signed-egress HTTP client: it performs
// exactly one POST per call so that the delivery record's attempt
// counter stays a true count of wire attempts. Retries belong to the
// reconciler.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/concurhq/consent-exchange/internal/signature"
)

// Hard wall-clock budget per outbound attempt, connect through body read.
const ackTimeout = 10 * time.Second

// Cap on how much of an error response body ends up in last_error.
const maxErrorBody = 1024

// Outcome classifies one wire attempt. Success means an HTTP 200 was
// observed; anything else carries the classified error string destined
// for the record's last_error.
type Outcome struct {
	Success    bool
	StatusCode int
	Error      string
}

// AckClient signs ACK payloads under the CMP-facing secret and posts
// them to peer URLs.
type AckClient struct {
	httpClient *http.Client
	signer     *signature.Engine
	secretName string
	logger     *slog.Logger
}

// NewAckClient creates a client with the 10-second attempt timeout.
func NewAckClient(signer *signature.Engine, secretName string, logger *slog.Logger) *AckClient {
	return &AckClient{
		httpClient: &http.Client{
			Timeout: ackTimeout,
		},
		signer:     signer,
		secretName: secretName,
		logger:     logger,
	}
}

// SendAck serialises payload, signs the exact bytes going on the wire,
// and performs one POST. An HTTP response of any status yields an
// Outcome; only a signing or request-construction failure (programmer
// error, not retryable) is returned as err.
func (c *AckClient) SendAck(ctx context.Context, url string, payload map[string]any) (Outcome, error) {
	body, err := signature.CanonicalJSON(payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("encoding ack payload: %w", err)
	}

	tag, err := c.signer.SignBytes(c.secretName, body)
	if err != nil {
		return Outcome{}, fmt.Errorf("signing ack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("building ack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.EgressHeader, tag)

	c.logger.Debug("sending ack", "url", url, "bytes", len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeout, DNS, reset, TLS — the transport message is the
		// classification.
		return Outcome{Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return Outcome{Success: true, StatusCode: resp.StatusCode}, nil
	}

	prefix, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return Outcome{
		StatusCode: resp.StatusCode,
		Error:      fmt.Sprintf("HTTP %d: %s", resp.StatusCode, prefix),
	}, nil
}

// WithTimeout overrides the attempt timeout. Tests use this to exercise
// the timeout path without waiting out the full budget.
func (c *AckClient) WithTimeout(d time.Duration) *AckClient {
	c.httpClient.Timeout = d
	return c
}
