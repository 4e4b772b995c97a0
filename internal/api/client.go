// Package api provides the client for the remote Duet service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/duetlog/duet/backend/internal/errors"
	"github.com/duetlog/duet/backend/internal/logging"
	"github.com/duetlog/duet/backend/internal/models"
)

// Client is the remote service contract the sync engine replays against:
// one create/update call per operation type, plus a reachability probe.
// Payloads are opaque; the client does not interpret them.
type Client interface {
	CreateJournalEntry(ctx context.Context, payload json.RawMessage) error
	CreateMoodEntry(ctx context.Context, payload json.RawMessage) error
	CreateTodoItem(ctx context.Context, payload json.RawMessage) error
	UpdateTodoItem(ctx context.Context, payload json.RawMessage) error
	CompleteTodoItem(ctx context.Context, payload json.RawMessage) error
	CreatePost(ctx context.Context, payload json.RawMessage) error
	LikePost(ctx context.Context, payload json.RawMessage) error
	CreateComment(ctx context.Context, payload json.RawMessage) error

	// Ping probes reachability of the remote service.
	Ping(ctx context.Context) error
}

// Dispatch routes a queued operation to the matching remote call.
func Dispatch(ctx context.Context, client Client, op *models.QueuedOperation) error {
	switch op.Type {
	case models.OpCreateJournalEntry:
		return client.CreateJournalEntry(ctx, op.Payload)
	case models.OpCreateMoodEntry:
		return client.CreateMoodEntry(ctx, op.Payload)
	case models.OpCreateTodoItem:
		return client.CreateTodoItem(ctx, op.Payload)
	case models.OpUpdateTodoItem:
		return client.UpdateTodoItem(ctx, op.Payload)
	case models.OpCompleteTodoItem:
		return client.CompleteTodoItem(ctx, op.Payload)
	case models.OpCreatePost:
		return client.CreatePost(ctx, op.Payload)
	case models.OpLikePost:
		return client.LikePost(ctx, op.Payload)
	case models.OpCreateComment:
		return client.CreateComment(ctx, op.Payload)
	default:
		return apperrors.New(apperrors.ErrUnknownOpType,
			fmt.Sprintf("no remote call for operation type %q", op.Type))
	}
}

// HTTPClient talks to the Duet backend over HTTP. Each call carries its own
// deadline so a hung remote call cannot stall a drain, and all calls go
// through a circuit breaker so a dead backend fails fast instead of eating
// the full timeout per operation.
type HTTPClient struct {
	baseURL     string
	token       string
	http        *http.Client
	callTimeout time.Duration
	breaker     *gobreaker.CircuitBreaker
}

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	BaseURL     string
	Token       string
	CallTimeout time.Duration // per-call deadline, default 10s
}

// NewHTTPClient creates a Client for the Duet backend.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "duet-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("circuit breaker state changed", logging.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &HTTPClient{
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		http:        &http.Client{Timeout: cfg.CallTimeout},
		callTimeout: cfg.CallTimeout,
		breaker:     breaker,
	}
}

func (c *HTTPClient) CreateJournalEntry(ctx context.Context, payload json.RawMessage) error {
	return c.post(ctx, "/api/journal-entries", payload)
}

func (c *HTTPClient) CreateMoodEntry(ctx context.Context, payload json.RawMessage) error {
	return c.post(ctx, "/api/mood-entries", payload)
}

func (c *HTTPClient) CreateTodoItem(ctx context.Context, payload json.RawMessage) error {
	return c.post(ctx, "/api/todos", payload)
}

func (c *HTTPClient) UpdateTodoItem(ctx context.Context, payload json.RawMessage) error {
	return c.put(ctx, "/api/todos", payload)
}

func (c *HTTPClient) CompleteTodoItem(ctx context.Context, payload json.RawMessage) error {
	return c.put(ctx, "/api/todos/complete", payload)
}

func (c *HTTPClient) CreatePost(ctx context.Context, payload json.RawMessage) error {
	return c.post(ctx, "/api/posts", payload)
}

func (c *HTTPClient) LikePost(ctx context.Context, payload json.RawMessage) error {
	return c.post(ctx, "/api/posts/likes", payload)
}

func (c *HTTPClient) CreateComment(ctx context.Context, payload json.RawMessage) error {
	return c.post(ctx, "/api/comments", payload)
}

// Ping probes the health endpoint. It bypasses the circuit breaker: the
// prober is what decides whether we are online, so it must always be
// allowed to look.
func (c *HTTPClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConnectivity, "failed to build probe request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConnectivity, "health probe failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return apperrors.New(apperrors.ErrConnectivity,
			fmt.Sprintf("health probe returned status %d", resp.StatusCode))
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload json.RawMessage) error {
	return c.send(ctx, http.MethodPost, path, payload)
}

func (c *HTTPClient) put(ctx context.Context, path string, payload json.RawMessage) error {
	return c.send(ctx, http.MethodPut, path, payload)
}

func (c *HTTPClient) send(ctx context.Context, method, path string, payload json.RawMessage) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doSend(ctx, method, path, payload)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperrors.Wrap(apperrors.ErrCircuitOpen, "remote service unavailable", err)
	}
	return err
}

func (c *HTTPClient) doSend(ctx context.Context, method, path string, payload json.RawMessage) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConnectivity, "remote call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	// The call reached the service and was rejected; this is not a
	// connectivity failure and will count against the retry bound.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return apperrors.New(apperrors.ErrRemoteRejected,
		fmt.Sprintf("%s %s returned status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(body)))
}
