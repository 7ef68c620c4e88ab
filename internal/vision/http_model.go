// File: internal/vision/http_model.go
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/wayfinder-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// inferResponse is the JSON body returned by the inference server.
type inferResponse struct {
	RawOutput *string `json:"raw_output"`
}

// HTTPModel sends screenshots to a self-hosted vision-language model server.
// Each request is a multipart form with a "prompt" field and an "image" file.
type HTTPModel struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	logger     *zap.Logger

	// backoffFactory is replaced in tests to keep retries fast.
	backoffFactory func() backoff.BackOff
}

// NewHTTPModel builds a client for the inference server described by cfg.
func NewHTTPModel(cfg config.VisionConfig, logger *zap.Logger) *HTTPModel {
	limit := rate.Inf
	if cfg.RateLimitPerSecond > 0 {
		limit = rate.Limit(cfg.RateLimitPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &HTTPModel{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: uint64(retries),
		logger:     logger.Named("vision.http"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

// Infer posts the image and prompt and returns the model's raw text output.
func (m *HTTPModel) Infer(ctx context.Context, image []byte, prompt string) (string, error) {
	body, contentType, err := buildInferForm(image, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to build inference request: %w", err)
	}

	var output string
	operation := func() error {
		if err := m.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait aborted: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		req.Header.Set("Content-Type", contentType)

		start := time.Now()
		resp, err := m.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			m.logger.Warn("Network error calling vision server, retrying.", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return m.handleStatus(resp.StatusCode, respBody)
		}

		output = decodeInferBody(respBody)
		m.logger.Debug("Vision inference complete.",
			zap.Duration("duration", time.Since(start)),
			zap.Int("output_len", len(output)),
		)
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(m.backoffFactory(), m.maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return "", err
	}
	return output, nil
}

func (m *HTTPModel) handleStatus(status int, body []byte) error {
	if len(body) > 512 {
		body = body[:512]
	}
	err := fmt.Errorf("vision server error: status %d, body: %s", status, string(body))
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusInternalServerError:
		m.logger.Warn("Transient vision server error, retrying.", zap.Int("status", status))
		return err
	default:
		return backoff.Permanent(err)
	}
}

// decodeInferBody accepts {"raw_output": "..."} and falls back to treating the
// whole body as text when the server does not answer in JSON.
func decodeInferBody(body []byte) string {
	var parsed inferResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.RawOutput != nil {
		return *parsed.RawOutput
	}
	return string(body)
}

func buildInferForm(image []byte, prompt string) ([]byte, string, error) {
	if len(image) == 0 {
		return nil, "", errors.New("image is empty")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("prompt", prompt); err != nil {
		return nil, "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="screenshot.png"`)
	header.Set("Content-Type", "image/png")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
