package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aryan-regmi/virgil/internal/audio"
	"github.com/google/uuid"
)

// RemoteConfig configures the HTTP transcription backend.
type RemoteConfig struct {
	Endpoint      string
	APIKey        string
	Language      string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// Remote sends windows to an HTTP transcription service as 16 kHz mono WAV.
// Requests are retried with exponential backoff on transient failures and a
// semaphore bounds in-flight concurrency.
type Remote struct {
	config     RemoteConfig
	httpClient *http.Client
	semaphore  chan struct{}

	mu              sync.RWMutex
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
}

// RemoteStats is a snapshot of request counters.
type RemoteStats struct {
	TotalRequests   uint64  `json:"total_requests"`
	SuccessRequests uint64  `json:"success_requests"`
	FailedRequests  uint64  `json:"failed_requests"`
	SuccessRate     float64 `json:"success_rate"`
	TotalRetries    uint64  `json:"total_retries"`
}

// remoteResponse is the JSON body returned by the service.
type remoteResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// NewRemote creates the HTTP backend. Endpoint is required; the zero values
// of the remaining fields get sensible defaults.
func NewRemote(config RemoteConfig) (*Remote, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Remote{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe encodes the window as WAV and posts it, retrying transient
// failures with exponential backoff.
func (r *Remote) Transcribe(ctx context.Context, samples []float32, strategy Strategy) (string, error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	r.mu.Lock()
	r.totalRequests++
	r.mu.Unlock()

	wav, err := audio.EncodeWAV(padToMinLength(samples), 16000)
	if err != nil {
		r.recordFailure()
		return "", fmt.Errorf("failed to encode window: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			r.mu.Lock()
			r.totalRetries++
			r.mu.Unlock()

			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				r.recordFailure()
				return "", ctx.Err()
			}
		}

		text, err := r.doRequest(ctx, wav, strategy)
		if err == nil {
			r.mu.Lock()
			r.successRequests++
			r.mu.Unlock()
			return text, nil
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	r.recordFailure()
	return "", fmt.Errorf("transcription failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

// doRequest performs a single multipart POST.
func (r *Remote) doRequest(ctx context.Context, wav []byte, strategy Strategy) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", uuid.NewString()+".wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(wav); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"sample_rate":     "16000",
		"format":          "wav",
		"strategy":        strategy.String(),
		"response_format": "json",
	}
	if r.config.Language != "" {
		fields["language"] = r.config.Language
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")
	if r.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return strings.TrimSpace(parsed.Text), nil
}

// isRetryable reports whether an error is worth another attempt. Server
// errors, rate limiting, and transport failures are retryable; client errors
// are not.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "HTTP error 5") || strings.Contains(msg, "HTTP error 429") {
		return true
	}
	if strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "refused") {
		return true
	}

	return false
}

func (r *Remote) recordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedRequests++
}

// Stats returns a snapshot of request counters.
func (r *Remote) Stats() RemoteStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	successRate := float64(0)
	if r.totalRequests > 0 {
		successRate = float64(r.successRequests) / float64(r.totalRequests) * 100
	}

	return RemoteStats{
		TotalRequests:   r.totalRequests,
		SuccessRequests: r.successRequests,
		FailedRequests:  r.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    r.totalRetries,
	}
}

// Close drains the semaphore so in-flight requests finish before shutdown.
func (r *Remote) Close() error {
	for i := 0; i < cap(r.semaphore); i++ {
		r.semaphore <- struct{}{}
	}
	return nil
}
