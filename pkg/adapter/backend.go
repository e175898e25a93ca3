package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const (
	// SubmitTextPath is the backend function route, relative to the backend base URL.
	SubmitTextPath = "/functions/v1/submit-text"

	// GatewayPath is the public submission route served by the web app.
	GatewayPath = "/api/submit"
)

// Backend invokes the submission insertion function of the managed backend.
type Backend interface {
	// SubmitText returns the stored row as raw JSON, or *model.UpstreamError when the
	// function answered with a non-2xx status.
	SubmitText(ctx context.Context, text string) (json.RawMessage, error)
}

type BackendClient struct {
	baseURL    string
	path       string
	serviceKey string
	httpClient *http.Client
}

type BackendOption func(*BackendClient)

func WithHTTPClient(client *http.Client) BackendOption {
	return func(b *BackendClient) {
		b.httpClient = client
	}
}

func NewBackend(baseURL, serviceKey string, opts ...BackendOption) *BackendClient {
	b := &BackendClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       SubmitTextPath,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewGateway returns a client for the public submission gateway of a running web app.
// Requests carry no service key; failures come back as *model.UpstreamError too.
func NewGateway(baseURL string, opts ...BackendOption) *BackendClient {
	b := NewBackend(baseURL, "", opts...)
	b.path = GatewayPath
	return b
}

func (b *BackendClient) SubmitText(ctx context.Context, text string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal submit-text request")
	}

	url := b.baseURL + b.path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create submit-text request", goerr.V("url", url))
	}
	if b.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.serviceKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to invoke submit-text function", goerr.V("url", url))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read submit-text response", goerr.V("status", resp.StatusCode))
	}

	var payload json.RawMessage
	if json.Valid(raw) && len(bytes.TrimSpace(raw)) > 0 {
		payload = json.RawMessage(raw)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.UpstreamError{Status: resp.StatusCode, Details: payload}
	}

	if payload == nil {
		payload = json.RawMessage("{}")
	}
	return payload, nil
}
