package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mscrnt/homecards/pkg/card"
)

// APIError is a non-200 answer from the agent
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a remote agent
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new agent client
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultClientConfig().Timeout
	}

	tlsConfig, err := config.LoadClientTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
		Timeout: config.Timeout,
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Cards fetches the cards the agent currently shows
func (c *Client) Cards(ctx context.Context) (*CardsResponse, error) {
	var resp CardsResponse
	if err := c.do(ctx, http.MethodGet, "/cards", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Card checks a single card on the agent
func (c *Client) Card(ctx context.Context, id card.ID) (*CardStatus, error) {
	var resp CardStatus
	if err := c.do(ctx, http.MethodGet, "/cards/"+id.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dismiss hides a card on the agent
func (c *Client) Dismiss(ctx context.Context, id card.ID) error {
	return c.do(ctx, http.MethodPost, "/cards/"+id.String()+"/dismiss", nil)
}

// Restore un-hides a card on the agent
func (c *Client) Restore(ctx context.Context, id card.ID) error {
	return c.do(ctx, http.MethodDelete, "/cards/"+id.String()+"/dismiss", nil)
}

// CheckHealth checks if the agent is healthy
func (c *Client) CheckHealth(ctx context.Context) error {
	body, err := c.raw(ctx, http.MethodGet, "/health")
	if err != nil {
		return err
	}

	if string(body) != "OK\n" {
		return fmt.Errorf("unexpected health response: %s", string(body))
	}

	return nil
}

// do sends a request and decodes a JSON body into out when out is non-nil
func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	body, err := c.raw(ctx, method, path)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL()+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return body, nil
}
