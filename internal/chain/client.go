// Package chain provides the client for the on-chain compute-network program.
// All calls are best-effort bookkeeping: the coordinator's in-memory state is
// authoritative and a failed chain write never rolls it back.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gridforge/gpumesh/internal/models"
	"github.com/gridforge/gpumesh/pkg/config"
)

// Client submits device registrations, tasks, and proofs to the chain program
// gateway over JSON/HTTP. Every call is bounded by the configured timeout.
type Client struct {
	endpoint  string
	programID string
	timeout   time.Duration
	http      *http.Client
	logger    *slog.Logger
}

// NewClient creates a chain client from configuration.
func NewClient(cfg config.ChainConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:  cfg.Endpoint,
		programID: cfg.ProgramID,
		timeout:   timeout,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// txResponse is the gateway's confirmation envelope.
type txResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

// RegisterDevice records a device registration on chain.
func (c *Client) RegisterDevice(ctx context.Context, ownerID string, specs models.GPUSpecs) (string, error) {
	payload := map[string]any{
		"program_id": c.programID,
		"owner":      ownerID,
		"specs":      specs,
	}
	return c.post(ctx, "/v1/devices", payload)
}

// SubmitTask records a task submission on chain.
func (c *Client) SubmitTask(ctx context.Context, ownerID, taskType string, req models.TaskRequirements) (string, error) {
	payload := map[string]any{
		"program_id":   c.programID,
		"owner":        ownerID,
		"task_type":    taskType,
		"requirements": req,
	}
	return c.post(ctx, "/v1/tasks", payload)
}

// SubmitProof records a proof of compute on chain.
func (c *Client) SubmitProof(ctx context.Context, proof models.ProofRecord) (string, error) {
	payload := map[string]any{
		"program_id": c.programID,
		"proof":      proof,
	}
	return c.post(ctx, "/v1/proofs", payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chain call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading chain response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chain call %s: status %d: %s", path, resp.StatusCode, data)
	}

	var tx txResponse
	if err := json.Unmarshal(data, &tx); err != nil {
		return "", fmt.Errorf("decoding chain response: %w", err)
	}
	if tx.Error != "" {
		return "", fmt.Errorf("chain call %s rejected: %s", path, tx.Error)
	}

	return tx.Signature, nil
}

// Nop is a chain client that confirms every call without any I/O.
// Used in tests and when no chain gateway is configured.
type Nop struct{}

// RegisterDevice implements engine.ChainClient.
func (Nop) RegisterDevice(context.Context, string, models.GPUSpecs) (string, error) {
	return "nop", nil
}

// SubmitTask implements engine.ChainClient.
func (Nop) SubmitTask(context.Context, string, string, models.TaskRequirements) (string, error) {
	return "nop", nil
}

// SubmitProof implements engine.ChainClient.
func (Nop) SubmitProof(context.Context, models.ProofRecord) (string, error) {
	return "nop", nil
}
