// Package ollama provides a small client for the local Ollama HTTP API.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Client talks to an Ollama server.
type Client interface {
	// Health checks that the server is reachable.
	Health(ctx context.Context) error
	// Version returns the server version string.
	Version(ctx context.Context) (string, error)
	// ListModels returns the locally installed models.
	ListModels(ctx context.Context) ([]Model, error)
	// HasModel reports whether the named model is installed. A bare name
	// matches any tag of that model.
	HasModel(ctx context.Context, name string) (bool, error)
}

// Model is one locally installed model as reported by the server.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type client struct {
	log        logrus.FieldLogger
	baseURL    string
	httpClient *http.Client
}

var _ Client = (*client)(nil)

// NewClient creates a client for the Ollama server at baseURL.
func NewClient(log logrus.FieldLogger, baseURL string, timeout time.Duration) Client {
	return &client{
		log:     log.WithField("component", "ollama"),
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *client) Health(ctx context.Context) error {
	if _, err := c.Version(ctx); err != nil {
		return err
	}

	return nil
}

func (c *client) Version(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}

	if err := c.getJSON(ctx, "/api/version", &resp); err != nil {
		return "", err
	}

	return resp.Version, nil
}

func (c *client) ListModels(ctx context.Context) ([]Model, error) {
	var resp struct {
		Models []Model `json:"models"`
	}

	if err := c.getJSON(ctx, "/api/tags", &resp); err != nil {
		return nil, err
	}

	return resp.Models, nil
}

func (c *client) HasModel(ctx context.Context, name string) (bool, error) {
	installed, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}

	for _, model := range installed {
		if tagsMatch(model.Name, name) {
			return true, nil
		}
	}

	return false, nil
}

// tagsMatch compares model names, treating a bare name as ":latest" and
// letting it match any installed tag of the same model.
func tagsMatch(installed, requested string) bool {
	if installed == requested {
		return true
	}

	if !strings.Contains(requested, ":") {
		if installed == requested+":latest" {
			return true
		}

		if base, _, found := strings.Cut(installed, ":"); found && base == requested {
			return true
		}
	}

	return false
}

func (c *client) getJSON(ctx context.Context, path string, out interface{}) error {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach ollama at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}
