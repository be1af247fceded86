// Package secure is a client for the scanning backend's image API.
package secure

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/threatflux/inlineScanRunnerGo/internal/models"
	"golang.org/x/time/rate"
)

const (
	imagesPath = "/api/scanning/v1/anchore/images"

	maxResponseBodySize = 32 * 1024 * 1024
)

// ErrMissingToken is returned by New when no API token is given
var ErrMissingToken = errors.New("scanning backend token is required")

// HTTPError is returned for any non-200 backend response
type HTTPError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s - HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Option configures a Client
type Option func(*Client)

// WithTLSVerify controls verification of the backend certificate
func WithTLSVerify(verify bool) Option {
	return func(c *Client) {
		c.tlsVerify = verify
	}
}

// WithProxy routes requests through proxy instead of the environment proxy
func WithProxy(proxy ProxySettings) Option {
	return func(c *Client) {
		c.proxy = &proxy
	}
}

// WithRateLimit limits requests per second with the given burst
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithTimeout bounds each request
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client. Proxy and TLS options are ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client talks to the scanning backend
type Client struct {
	token      string
	baseURL    string
	tlsVerify  bool
	proxy      *ProxySettings
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *logrus.Logger
	httpClient *http.Client
}

// New creates a client for the backend at baseURL
func New(token, baseURL string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}

	c := &Client{
		token:     token,
		baseURL:   strings.TrimRight(baseURL, "/"),
		tlsVerify: true,
		timeout:   5 * time.Minute,
		limiter:   rate.NewLimiter(rate.Limit(5), 5),
		logger:    logrus.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = c.newHTTPClient()
	}
	return c, nil
}

func (c *Client) newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	if c.proxy != nil {
		transport.Proxy = c.proxy.ProxyFunc()
	}
	if !c.tlsVerify {
		transport.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true,
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
}

// SubmitImage asks the backend to scan tag and returns the image digest
func (c *Client) SubmitImage(ctx context.Context, tag, dockerfile string, annotations map[string]string) (string, error) {
	submission := &models.ImageSubmission{
		Tag:         tag,
		Dockerfile:  dockerfile,
		Annotations: annotations,
	}
	if err := submission.Validate(); err != nil {
		return "", fmt.Errorf("invalid image submission: %w", err)
	}

	body, err := json.Marshal(submission)
	if err != nil {
		return "", fmt.Errorf("failed to encode image submission: %w", err)
	}

	resp, err := c.send(ctx, "Submit image", c.baseURL+imagesPath, body)
	if err != nil {
		return "", err
	}

	record, err := models.ParseSubmissionResponse(resp)
	if err != nil {
		return "", err
	}
	return record.ImageDigest, nil
}

// RetrieveVulnerabilities returns every known vulnerability of the image
func (c *Client) RetrieveVulnerabilities(ctx context.Context, imageDigest string) (models.VulnerabilityReport, error) {
	if err := models.ValidateDigest(imageDigest); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s%s/%s/vuln/all", c.baseURL, imagesPath, imageDigest)
	resp, err := c.send(ctx, "Retrieve vulnerabilities", endpoint, nil)
	if err != nil {
		return nil, err
	}

	var report models.VulnerabilityReport
	if err := json.Unmarshal(resp, &report); err != nil {
		return nil, fmt.Errorf("failed to decode vulnerability report: %w", err)
	}
	return report, nil
}

// RetrieveCheckResults returns the policy evaluation of tag at imageDigest
func (c *Client) RetrieveCheckResults(ctx context.Context, tag, imageDigest string) (models.CheckResults, error) {
	if err := models.ValidateDigest(imageDigest); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("tag", tag)
	query.Set("detail", "true")
	endpoint := fmt.Sprintf("%s%s/%s/check?%s", c.baseURL, imagesPath, imageDigest, query.Encode())

	resp, err := c.send(ctx, "Retrieve check results", endpoint, nil)
	if err != nil {
		return nil, err
	}

	var results models.CheckResults
	if err := json.Unmarshal(resp, &results); err != nil {
		return nil, fmt.Errorf("failed to decode check results: %w", err)
	}
	return results, nil
}

// send issues a GET, or a POST when body is non-nil, and returns the body of
// a 200 response. Cancelling ctx aborts the request in flight.
func (c *Client) send(ctx context.Context, operation, endpoint string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", operation, err)
	}

	method := http.MethodGet
	var reader io.Reader
	if body != nil {
		method = http.MethodPost
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	log := c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    endpoint,
	})
	log.Debug("Sending request")
	if body != nil {
		log.Debugf("Body:\n%s", body)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: request aborted: %w", operation, ctxErr)
		}
		return nil, fmt.Errorf("%s: error sending request to %q: %w", operation, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response body: %w", operation, err)
	}

	log.WithField("status", resp.StatusCode).Debugf("Response body:\n%s", respBody)

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	return respBody, nil
}
