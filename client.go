package sketricgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	envAPIKey = "SKETRICGEN_API_KEY"

	defaultUserAgent     = "sketricgen/go"
	defaultBaseURL       = "https://dev-chat.sketricgen.ai"
	defaultUploadBaseURL = "https://0uwfaq2dke.execute-api.us-east-1.amazonaws.com/dev"

	defaultTimeout       = 30 * time.Second
	defaultUploadTimeout = 5 * time.Minute

	defaultMaxRetries = 3
	defaultBackoff    = &ExponentialBackoff{
		Multiplier: 2,
		Base:       500 * time.Millisecond,
		Jitter:     50 * time.Millisecond,
	}

	ErrNoAPIKey     = errors.New(`no API key provided -- perhaps you forgot to pass sketricgen.WithAPIKey("...")`)
	ErrEnvVarNotSet = fmt.Errorf("%s environment variable not set", envAPIKey)
	ErrEnvVarEmpty  = fmt.Errorf("%s environment variable is empty", envAPIKey)
)

const (
	workflowPath       = "/api/v1/run-workflow"
	uploadInitPath     = "/publicAssetsUploadInit"
	uploadCompletePath = "/publicAssetsUploadComplete"
)

// The workflow endpoint and the upload endpoints authenticate with
// different header names.
const (
	workflowAuthHeader = "API-KEY"
	uploadAuthHeader   = "X-API-KEY"
)

// Client is a client for the SketricGen Chat Server API.
type Client struct {
	options *clientOptions
	c       *http.Client
}

type retryPolicy struct {
	maxRetries int
	backoff    Backoff
}

type clientOptions struct {
	apiKey        string
	baseURL       string
	uploadBaseURL string
	httpClient    *http.Client
	retryPolicy   *retryPolicy
	userAgent     *string
	timeout       time.Duration
	uploadTimeout time.Duration
}

// ClientOption is a function that modifies an options struct.
type ClientOption func(*clientOptions) error

// NewClient creates a new SketricGen API client.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		options: &clientOptions{
			userAgent:     &defaultUserAgent,
			baseURL:       defaultBaseURL,
			uploadBaseURL: defaultUploadBaseURL,
			timeout:       defaultTimeout,
			uploadTimeout: defaultUploadTimeout,
			retryPolicy: &retryPolicy{
				maxRetries: defaultMaxRetries,
				backoff:    defaultBackoff,
			},
			httpClient: http.DefaultClient,
		},
	}

	var errs []error
	for _, option := range opts {
		err := option(c.options)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		if err != nil {
			return nil, err
		}
		return nil, errors.New("failed to apply options")
	}

	if c.options.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	c.c = c.options.httpClient

	return c, nil
}

// WithAPIKey sets the API key used by the client.
func WithAPIKey(apiKey string) ClientOption {
	return func(o *clientOptions) error {
		o.apiKey = apiKey
		return nil
	}
}

// WithAPIKeyFromEnv configures the client to use the API key provided in
// the SKETRICGEN_API_KEY environment variable.
func WithAPIKeyFromEnv() ClientOption {
	return func(o *clientOptions) error {
		apiKey, ok := os.LookupEnv(envAPIKey)
		if !ok {
			return ErrEnvVarNotSet
		}
		if apiKey == "" {
			return ErrEnvVarEmpty
		}
		o.apiKey = apiKey
		return nil
	}
}

// WithUserAgent sets the User-Agent header on requests made by the client.
func WithUserAgent(userAgent string) ClientOption {
	return func(o *clientOptions) error {
		o.userAgent = &userAgent
		return nil
	}
}

// WithBaseURL sets the base URL for the chat server.
func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) error {
		o.baseURL = strings.TrimSuffix(baseURL, "/")
		return nil
	}
}

// WithUploadBaseURL sets the base URL for the upload endpoints, which are
// served from a different host than the chat server.
func WithUploadBaseURL(uploadBaseURL string) ClientOption {
	return func(o *clientOptions) error {
		o.uploadBaseURL = strings.TrimSuffix(uploadBaseURL, "/")
		return nil
	}
}

// WithHTTPClient sets the HTTP client used by the client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(o *clientOptions) error {
		o.httpClient = httpClient
		return nil
	}
}

// WithTimeout sets the timeout for metadata requests: workflow calls,
// upload initiate and upload complete. Zero disables the timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) error {
		o.timeout = timeout
		return nil
	}
}

// WithUploadTimeout sets the timeout for the object-store transfer. It
// defaults to a longer value than WithTimeout since large files take
// longer to send.
func WithUploadTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) error {
		o.uploadTimeout = timeout
		return nil
	}
}

// WithRetryPolicy sets the retry policy for rate-limited requests.
func WithRetryPolicy(maxRetries int, backoff Backoff) ClientOption {
	return func(o *clientOptions) error {
		o.retryPolicy = &retryPolicy{
			maxRetries: maxRetries,
			backoff:    backoff,
		}
		return nil
	}
}

func (r *Client) newRequest(ctx context.Context, method, url string, body io.Reader, authHeader string) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(authHeader, r.options.apiKey)
	if r.options.userAgent != nil {
		request.Header.Set("User-Agent", *r.options.userAgent)
	}

	return request, nil
}

// do sends a request and decodes the response into out. Rate-limited
// responses are retried per the client's retry policy; every other error
// is returned as-is with its specific kind.
func (r *Client) do(request *http.Request, op string, out interface{}) error {
	maxRetries := r.options.retryPolicy.maxRetries
	backoff := r.options.retryPolicy.backoff

	var apiError error
	attempts := 0
	for ok := true; ok; ok = attempts < maxRetries {
		response, err := r.c.Do(request)
		if err != nil {
			return wrapTransportError(op, err)
		}
		defer response.Body.Close()

		responseBytes, err := io.ReadAll(response.Body)
		if err != nil {
			return wrapTransportError(op, err)
		}

		if response.StatusCode < 200 || response.StatusCode >= 400 {
			apiError = unmarshalAPIError(response, responseBytes)
			if response.StatusCode != http.StatusTooManyRequests {
				return apiError
			}

			delay := backoff.NextDelay(attempts)

			retryAfter := response.Header.Get("Retry-After")
			if retryAfter != "" {
				if parsedDelay, parseErr := time.Parse(time.RFC1123, retryAfter); parseErr == nil {
					delay = time.Until(parsedDelay)
				} else if seconds, convErr := strconv.Atoi(retryAfter); convErr == nil {
					delay = time.Duration(seconds) * time.Second
				}
			}

			if delay > 0 {
				time.Sleep(delay)
			}

			if request.GetBody != nil {
				body, bodyErr := request.GetBody()
				if bodyErr != nil {
					return fmt.Errorf("failed to rewind request body: %w", bodyErr)
				}
				request.Body = body
			}

			attempts++
		} else {
			if out != nil {
				if err := json.Unmarshal(responseBytes, &out); err != nil {
					return fmt.Errorf("failed to unmarshal response: %w", err)
				}
			}

			return nil
		}
	}

	return apiError
}

// fetch makes a JSON request to one of the SketricGen API endpoints.
func (r *Client) fetch(ctx context.Context, method, url, authHeader, op string, body interface{}, out interface{}) error {
	bodyBuffer := &bytes.Buffer{}
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyBuffer = bytes.NewBuffer(bodyBytes)
	}

	if r.options.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.options.timeout)
		defer cancel()
	}

	request, err := r.newRequest(ctx, method, url, bodyBuffer, authHeader)
	if err != nil {
		return err
	}

	return r.do(request, op, out)
}

func (r *Client) workflowURL() string {
	return constructURL(r.options.baseURL, workflowPath)
}

func (r *Client) uploadInitURL() string {
	return constructURL(r.options.uploadBaseURL, uploadInitPath)
}

func (r *Client) uploadCompleteURL() string {
	return constructURL(r.options.uploadBaseURL, uploadCompletePath)
}

func constructURL(baseURL, route string) string {
	route = strings.TrimPrefix(route, "/")

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return baseURL + route
}
