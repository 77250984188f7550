package cleaning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"cleanpay/internal/logging"
	"cleanpay/internal/models"
	"cleanpay/internal/service/remote"
)

const serviceName = "cleaning service"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Client talks to the remote CSV cleaning service.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *RateLimiter
	logger  *zap.Logger
}

// Options tune a Client.
type Options struct {
	Timeout time.Duration
	RPS     float64
	Burst   int
	Logger  *zap.Logger
	HTTP    *http.Client
}

// NewClient builds a client for the service rooted at baseURL.
func NewClient(baseURL string, opts Options) *Client {
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = remote.NewHTTPClient(opts.Timeout)
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		limiter: NewRateLimiter(opts.RPS, opts.Burst),
		logger:  logging.OrNop(opts.Logger),
	}
}

// Clean posts file as multipart field "file" to /clean-data/. A 2xx answer is
// decoded even when its status is not success; the caller decides.
func (c *Client) Clean(ctx context.Context, file models.Upload) (*models.CleanResult, error) {
	if file.Body == nil {
		return nil, fmt.Errorf("%s: empty upload", serviceName)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit: %w", serviceName, err)
	}

	body, contentType, err := multipartBody(file)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/clean-data/", body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", serviceName, err)
	}
	remote.Prepare(req)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", serviceName, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("clean request finished",
		zap.String("file", file.Name),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.Backoff(resp)
	}
	if err := remote.CheckStatus(serviceName, resp); err != nil {
		return nil, err
	}
	var result models.CleanResult
	if err := remote.DecodeJSON(serviceName, resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func multipartBody(file models.Upload) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(file.Name))))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("%s: create form part: %w", serviceName, err)
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return nil, "", fmt.Errorf("%s: read upload: %w", serviceName, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("%s: close form: %w", serviceName, err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// Ping checks the service's liveness route.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", serviceName, err)
	}
	remote.Prepare(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", serviceName, err)
	}
	defer resp.Body.Close()
	if err := remote.CheckStatus(serviceName, resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
	return nil
}
