package openrouter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	"vermithor/completion"
	"vermithor/config"
	"vermithor/logger"
)

const maxErrorBody = 4 << 10

// KeySource provides the bearer credential, looked up on every request
type KeySource interface {
	APIKey() (string, error)
}

type Service struct {
	client        *http.Client
	endpoint      string
	keys          KeySource
	referer       string
	title         string
	headerTimeout time.Duration
}

type Option func(*Service)

// WithHTTPClient replaces the default client, which has no overall timeout
// because streamed answers can take minutes.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.client = client
	}
}

// WithAppIdentity sets the HTTP-Referer and X-Title headers OpenRouter uses to attribute traffic
func WithAppIdentity(referer, title string) Option {
	return func(s *Service) {
		s.referer = referer
		s.title = title
	}
}

// WithResponseHeaderTimeout bounds the wait for the upstream response headers.
// It applies to the client chosen by WithHTTPClient whatever the option order,
// as long as that client's transport is an *http.Transport.
func WithResponseHeaderTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.headerTimeout = timeout
	}
}

// withHeaderTimeout returns a copy of client whose transport waits at most
// timeout for response headers. The caller's client and transport are not modified.
func withHeaderTimeout(client *http.Client, timeout time.Duration) *http.Client {
	var transport *http.Transport
	switch t := client.Transport.(type) {
	case nil:
		transport = http.DefaultTransport.(*http.Transport).Clone()
	case *http.Transport:
		transport = t.Clone()
	default:
		logger.Warnf("Response header timeout ignored: transport %T is not an *http.Transport", t)
		return client
	}
	transport.ResponseHeaderTimeout = timeout

	clone := *client
	clone.Transport = transport
	return &clone
}

func New(endpoint string, keys KeySource, opts ...Option) *Service {
	s := &Service{
		client:   &http.Client{},
		endpoint: endpoint,
		keys:     keys,
		referer:  "http://localhost:8080",
		title:    "Vermithor Chatbot",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.headerTimeout > 0 {
		s.client = withHeaderTimeout(s.client, s.headerTimeout)
	}
	return s
}

// Stream sends the transcript upstream and returns the fragment stream.
// A missing credential fails with *completion.ConfigurationError before any
// request is made; network failures and non-2xx responses fail with
// *completion.TransportError.
func (s *Service) Stream(ctx context.Context, req *completion.CompletionRequest) (completion.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid completion request: %w", err)
	}

	apiKey, err := s.keys.APIKey()
	if err != nil {
		return nil, completion.NewConfigurationError(credentialMessage(err), err)
	}

	upstreamReq, err := s.buildUpstreamRequest(ctx, req, apiKey)
	if err != nil {
		return nil, fmt.Errorf("fail to build upstream request: %w", err)
	}

	resp, err := s.client.Do(upstreamReq)
	if err != nil {
		return nil, &completion.TransportError{
			Endpoint: s.endpoint,
			Message:  "fail to call upstream api",
			Err:      err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &completion.TransportError{
			StatusCode: resp.StatusCode,
			Endpoint:   s.endpoint,
			Message:    upstreamErrorMessage(bodyBytes),
		}
	}

	logger.Debugf("Streaming %d messages to model %s", len(req.Messages), req.Model)
	return newSSEStream(resp.Body, s.endpoint), nil
}

// credentialMessage tells the user which credential source came up empty,
// telling a missing secrets file apart from a missing key.
func credentialMessage(err error) string {
	const base = "API key for OpenRouter was not found"

	causes := leafErrors(err)
	for _, cause := range causes {
		if errors.Is(cause, config.ErrSecretsFileNotFound) {
			return fmt.Sprintf("%s: %s. Create the secrets file or set the key in the environment.", base, cause)
		}
	}
	// the last source is the most specific one, e.g. the secrets file after the environment
	for i := len(causes) - 1; i >= 0; i-- {
		if errors.Is(causes[i], config.ErrSecretNotFound) {
			return fmt.Sprintf("%s: %s", base, causes[i])
		}
	}
	return base
}

// leafErrors flattens errors.Join trees into their individual causes
func leafErrors(err error) []error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var leaves []error
	for _, e := range joined.Unwrap() {
		leaves = append(leaves, leafErrors(e)...)
	}
	return leaves
}

func (s *Service) buildUpstreamRequest(ctx context.Context, req *completion.CompletionRequest, apiKey string) (*http.Request, error) {
	body := ChatCompletionRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
	}

	reqBodyBytes, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("fail to marshal completion request: %w", err)
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fail to create request: %w", err)
	}

	upstreamReq.Header.Set("Content-Type", "application/json")
	upstreamReq.Header.Set("Accept", "text/event-stream")
	upstreamReq.Header.Set("Authorization", "Bearer "+apiKey)
	if s.referer != "" {
		upstreamReq.Header.Set("HTTP-Referer", s.referer)
	}
	if s.title != "" {
		upstreamReq.Header.Set("X-Title", s.title)
	}

	return upstreamReq, nil
}

// upstreamErrorMessage pulls the human readable part out of an error body,
// e.g. {"error":{"message":"No auth credentials found","code":401}}
func upstreamErrorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "message"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	return strings.TrimSpace(string(body))
}
