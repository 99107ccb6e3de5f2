package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/lumapix/lumapix-cli/internal/config"
	"github.com/lumapix/lumapix-cli/internal/httpx"
	"github.com/lumapix/lumapix-cli/internal/models"
)

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct{}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error().Msgf("retry: %s %v", msg, keysAndValues)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not every attempt
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn().Msgf("retry: %s %v", msg, keysAndValues)
}

// Client represents the Lumapix API client
type Client struct {
	httpClient *nethttp.Client
	config     *config.Config
	baseURL    string
	apiKey     string
}

// NewClient creates a new API client
func NewClient(cfg *config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty; run 'lumapix config init' or set %s", config.EnvAPIURL)
	}

	httpClient, err := httpx.NewClient(httpx.Options{
		ProxyMode: cfg.ProxyMode,
		ProxyURL:  cfg.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	// Wrap with retry logic. Retries stay low: the poller already tolerates
	// failed cycles, and the submit path must fail fast enough to roll back.
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{}

	return &Client{
		httpClient: retryClient.StandardClient(),
		config:     cfg,
		baseURL:    strings.TrimSuffix(cfg.APIBaseURL, "/"),
		apiKey:     cfg.APIKey,
	}, nil
}

// GetConfig returns the configuration used by this API client
func (c *Client) GetConfig() *config.Config {
	return c.config
}

// doRequest performs an HTTP request with authentication
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*nethttp.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	url := c.baseURL + path
	req, err := nethttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("path", path).Msg("API call failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == nethttp.StatusUnauthorized || resp.StatusCode == nethttp.StatusForbidden {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}

	return resp, nil
}

// GetUserProfile gets the current user's profile. Used only as an
// authenticated/unauthenticated signal.
func (c *Client) GetUserProfile(ctx context.Context) (*models.UserProfile, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/v1/users/me/", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get user profile failed: status %d: %s", resp.StatusCode, string(body))
	}

	var profile models.UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode user profile: %w", err)
	}

	return &profile, nil
}

// ListFolders lists all folders in the user's library (with pagination)
func (c *Client) ListFolders(ctx context.Context) ([]models.Folder, error) {
	var allFolders []models.Folder
	nextURL := "/api/v1/folders/"

	for nextURL != "" {
		resp, err := c.doRequest(ctx, "GET", nextURL, nil)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != nethttp.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("list folders failed: status %d: %s", resp.StatusCode, string(body))
		}

		var result struct {
			Count   int             `json:"count"`
			Next    *string         `json:"next"`
			Results []models.Folder `json:"results"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode folders response: %w", err)
		}
		resp.Body.Close()

		allFolders = append(allFolders, result.Results...)

		if result.Next != nil && *result.Next != "" {
			// Extract path from full URL
			nextURL = strings.TrimPrefix(*result.Next, c.baseURL)
		} else {
			nextURL = ""
		}
	}

	return allFolders, nil
}

// ListFolderPhotos lists the photos in a folder (with pagination)
func (c *Client) ListFolderPhotos(ctx context.Context, folderID string) ([]models.Photo, error) {
	var allPhotos []models.Photo
	nextURL := fmt.Sprintf("/api/v1/folders/%s/photos/", folderID)

	for nextURL != "" {
		resp, err := c.doRequest(ctx, "GET", nextURL, nil)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != nethttp.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("list folder photos failed: status %d: %s", resp.StatusCode, string(body))
		}

		var result struct {
			Count   int            `json:"count"`
			Next    *string        `json:"next"`
			Results []models.Photo `json:"results"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode photos response: %w", err)
		}
		resp.Body.Close()

		allPhotos = append(allPhotos, result.Results...)

		if result.Next != nil && *result.Next != "" {
			nextURL = strings.TrimPrefix(*result.Next, c.baseURL)
		} else {
			nextURL = ""
		}
	}

	return allPhotos, nil
}

// StartBatch submits a batch of photos for analysis.
//
// A 2xx response only confirms the backend registered the batch; analysis
// completion is observed through GetPhotoStatus polling.
func (c *Client) StartBatch(ctx context.Context, req models.StartBatchRequest) (*models.StartBatchResponse, error) {
	resp, err := c.doRequest(ctx, "POST", "/api/v1/batch/start/", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusConflict {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrBatchConflict, string(body))
	}

	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("start batch failed: status %d: %s", resp.StatusCode, string(body))
	}

	var result models.StartBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}

	if !result.Accepted {
		return nil, fmt.Errorf("start batch rejected: %s", result.Detail)
	}

	return &result, nil
}

// GetPhotoStatus retrieves the processing status of a single photo
func (c *Client) GetPhotoStatus(ctx context.Context, photoID string) (*models.PhotoStatusResponse, error) {
	path := fmt.Sprintf("/api/v1/photos/%s/status/", photoID)

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get photo status failed: status %d: %s", resp.StatusCode, string(body))
	}

	var status models.PhotoStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode photo status: %w", err)
	}

	return &status, nil
}

// GetBatchStatus asks the backend whether a batch is currently in flight.
// Used only by the resume path at startup.
func (c *Client) GetBatchStatus(ctx context.Context) (*models.BatchStatusResponse, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/v1/batch/status/", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get batch status failed: status %d: %s", resp.StatusCode, string(body))
	}

	var status models.BatchStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode batch status: %w", err)
	}

	return &status, nil
}

// CancelBatch requests cancellation of the in-flight batch. Best-effort: the
// caller does not wait for the backend to confirm beyond the response status.
func (c *Client) CancelBatch(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "POST", "/api/v1/batch/cancel/", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel batch failed: status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// ClearQueue clears any not-yet-started queued work server-side
func (c *Client) ClearQueue(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "POST", "/api/v1/batch/clear-queue/", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("clear queue failed: status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
