package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/sony/gobreaker"

	"github.com/talentsift/talentsift/fault"
)

type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	Dimension        int
	Timeout          time.Duration
	MaxRetries       int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Client calls the /embeddings endpoint of an OpenAI-compatible service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	threshold := uint32(cfg.BreakerThreshold)
	if threshold == 0 {
		threshold = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "embeddings",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding breaker state change",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// Embed returns the embedding vector for text. While the circuit is open
// it fails fast with fault.ErrEmbeddingUnavailable instead of issuing
// calls; callers on the search path degrade, callers on the ingestion
// path nack and retry later.
func (c *Client) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.embedWithRetry(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return pgvector.Vector{}, fmt.Errorf("embedding circuit open: %w", fault.ErrEmbeddingUnavailable)
		}
		return pgvector.Vector{}, err
	}
	return result.(pgvector.Vector), nil
}

func (c *Client) embedWithRetry(ctx context.Context, text string) (pgvector.Vector, error) {
	var vec pgvector.Vector

	operation := func() error {
		v, err := c.embedOnce(ctx, text)
		if err != nil {
			if fault.IsInvalid(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("embedding call failed, will retry",
				slog.String("error", err.Error()))
			return err
		}
		vec = v
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries)),
		ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return pgvector.Vector{}, err
	}
	return vec, nil
}

func (c *Client) embedOnce(ctx context.Context, text string) (pgvector.Vector, error) {
	jsonData, err := json.Marshal(embeddingRequest{Input: text, Model: c.cfg.Model})
	if err != nil {
		return pgvector.Vector{}, fault.Invalid("failed to marshal embedding request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return pgvector.Vector{}, fault.Invalid("failed to create embedding request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pgvector.Vector{}, fault.Transient(err, "embedding call")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return pgvector.Vector{}, fault.Transient(err, "embedding call")
		}
		return pgvector.Vector{}, fault.Invalid("embedding call rejected: %v", err)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return pgvector.Vector{}, fault.Transient(err, "decode embedding response")
	}
	if len(embeddingResp.Data) == 0 {
		return pgvector.Vector{}, fault.Transient(fmt.Errorf("no embedding data received"), "embedding call")
	}

	values := embeddingResp.Data[0].Embedding
	if c.cfg.Dimension > 0 && len(values) != c.cfg.Dimension {
		return pgvector.Vector{}, fault.Invalid("embedding dimension mismatch: got %d, want %d", len(values), c.cfg.Dimension)
	}
	return pgvector.NewVector(values), nil
}
