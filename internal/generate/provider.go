package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TaskResult is the upstream provider's view of a finished task.
type TaskResult struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	OutputURL string `json:"output_url"`
	Error     string `json:"error"`
}

// ProviderClient is the narrow client for an upstream generation API:
// start a task, poll its status, fetch the produced artifact. The provider
// is an external collaborator; everything behind OutputURL is opaque.
type ProviderClient struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewProviderClient creates a provider client for one upstream endpoint.
func NewProviderClient(baseURL string, requestTimeout, pollInterval time.Duration, logger *slog.Logger) *ProviderClient {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	return &ProviderClient{
		baseURL:      baseURL,
		client:       &http.Client{Timeout: requestTimeout},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run submits a task and polls it to completion, forwarding provider
// progress through report. Returns the terminal task result or an error if
// the provider reports failure.
func (p *ProviderClient) Run(ctx context.Context, input map[string]any, report ProgressFunc) (*TaskResult, error) {
	taskID, err := p.startTask(ctx, input)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Provider task started",
		slog.String("task_id", taskID),
		slog.String("provider", p.baseURL),
	)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("provider task abandoned: %w", ctx.Err())

		case <-ticker.C:
			result, err := p.pollTask(ctx, taskID)
			if err != nil {
				return nil, err
			}

			if report != nil {
				report(result.Progress)
			}

			switch result.Status {
			case "completed":
				return result, nil
			case "failed":
				return nil, fmt.Errorf("provider task %s failed: %s", taskID, result.Error)
			}
		}
	}
}

// Fetch retrieves the produced artifact bytes.
func (p *ProviderClient) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build artifact request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("artifact fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read artifact body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

func (p *ProviderClient) startTask(ctx context.Context, input map[string]any) (string, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to start provider task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider returned status %d on task start", resp.StatusCode)
	}

	var created struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode task response: %w", err)
	}
	if created.TaskID == "" {
		return "", fmt.Errorf("provider returned empty task id")
	}

	return created.TaskID, nil
}

func (p *ProviderClient) pollTask(ctx context.Context, taskID string) (*TaskResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll provider task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d on poll", resp.StatusCode)
	}

	var result TaskResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode task status: %w", err)
	}

	return &result, nil
}
