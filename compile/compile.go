// Package compile talks to the remote compiler service that turns source
// text into device bytecode. The service accepts inline source or a source
// URL and answers either with a raw bytecode stream or with a JSON body
// carrying a base64 compiledCode field or an error field.
package compile

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

// ErrRemote is reported when the compiler service returns a structured
// error or a response the client cannot interpret.
var ErrRemote = errors.New("compile: remote compilation failed")

const defaultRequestTimeout = 30 * time.Second

// Client is a compiler service client. The zero value is not usable; create
// one with NewClient.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the compiler endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
}

type compileRequest struct {
	Source    string `json:"source,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

type compileResponse struct {
	CompiledCode string `json:"compiledCode"`
	Error        string `json:"error"`
}

// CompileSource compiles inline source text into bytecode.
func (c *Client) CompileSource(ctx context.Context, source string) ([]byte, error) {
	return c.compile(ctx, compileRequest{Source: source})
}

// CompileURL compiles the source fetched by the service from url.
func (c *Client) CompileURL(ctx context.Context, url string) ([]byte, error) {
	return c.compile(ctx, compileRequest{SourceURL: url})
}

func (c *Client) compile(ctx context.Context, request compileRequest) ([]byte, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode compile request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build compile request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("compile request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read compile response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: service returned %s", ErrRemote, resp.Status)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/octet-stream" {
		if len(payload) == 0 {
			return nil, fmt.Errorf("%w: empty bytecode stream", ErrRemote)
		}
		return payload, nil
	}

	var decoded compileResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("%w: unparseable response: %v", ErrRemote, err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, decoded.Error)
	}
	if decoded.CompiledCode == "" {
		return nil, fmt.Errorf("%w: response carried no compiled code", ErrRemote)
	}

	code, err := base64.StdEncoding.DecodeString(decoded.CompiledCode)
	if err != nil {
		return nil, fmt.Errorf("%w: compiled code is not valid base64: %v", ErrRemote, err)
	}
	return code, nil
}
