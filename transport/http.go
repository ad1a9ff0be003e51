package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/vitwit/chainrpc/types"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 4096
)

// HTTPOptions configures an HTTP transport.
type HTTPOptions struct {
	Headers map[string]string
	Timeout time.Duration
	// RetryCount is the number of retries for connection failures and 5xx
	// responses. Zero disables retrying.
	RetryCount int
}

// HTTP posts envelopes to a single JSON-RPC endpoint.
type HTTP struct {
	url     string
	headers map[string]string
	client  *retryablehttp.Client
}

var _ Transport = (*HTTP)(nil)

func NewHTTP(url string, opts HTTPOptions) *HTTP {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = opts.RetryCount
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.CheckRetry = retryPolicy
	// hand the last response back instead of a generic "giving up" error
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client.HTTPClient.Timeout = timeout

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTP{url: url, headers: headers, client: client}
}

// URL returns the endpoint.
func (t *HTTP) URL() string {
	return t.url
}

func (t *HTTP) Send(ctx context.Context, body []byte) ([]byte, error) {
	if carriesSend(body) {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &types.Error{
			Code:    types.ErrNetwork,
			Message: "request failed",
			Data:    map[string]any{"url": t.url},
			Err:     err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.Error{Code: types.ErrNetwork, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := raw
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &types.Error{
			Code:    types.ErrServer,
			Message: fmt.Sprintf("server response %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			Data: map[string]any{
				"url":    t.url,
				"status": resp.StatusCode,
				"body":   string(snippet),
			},
		}
	}

	return raw, nil
}

// sendMethods submit transactions. A resend after an ambiguous failure can
// broadcast twice, so they are never retried.
var sendMethods = map[string]bool{
	"eth_sendRawTransaction": true,
	"eth_sendTransaction":    true,
	"sendTransaction":        true,
}

type noRetryKey struct{}

func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if noRetry, _ := ctx.Value(noRetryKey{}).(bool); noRetry {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type methodOnly struct {
	Method string `json:"method"`
}

// carriesSend reports whether body holds a send method, alone or in a batch.
func carriesSend(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	var calls []methodOnly
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &calls); err != nil {
			return false
		}
	} else {
		var one methodOnly
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return false
		}
		calls = append(calls, one)
	}
	for _, c := range calls {
		if sendMethods[c.Method] {
			return true
		}
	}
	return false
}

func (t *HTTP) Close() error {
	t.client.HTTPClient.CloseIdleConnections()
	return nil
}
