// Package rpcclient talks JSON-RPC 2.0 to a leap bridge node over HTTP.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ltlmaps/leap-contracts/internal/rpc"
)

const (
	defaultTimeout = 10 * time.Second
	maxReplyBytes  = 8 << 20
)

// Client is safe for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
	lastID   atomic.Int64

	// The chain id is part of every signed call; it is fetched once.
	chainMu sync.Mutex
	chainID string
}

// New returns a client for the node at endpoint.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, defaultTimeout)
}

// NewWithTimeout is New with a per-call HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

// reply mirrors rpc.Response with the result left undecoded.
type reply struct {
	Result json.RawMessage `json:"result"`
	Error  *rpc.Error      `json:"error"`
	ID     int64           `json:"id"`
}

// Code returns the JSON-RPC error code carried by err, or 0 when the
// error did not come from the node.
func Code(err error) int {
	var e *rpc.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// Call invokes method and decodes its result into result, which may be
// nil.
func (c *Client) Call(method string, params, result interface{}) error {
	return c.CallContext(context.Background(), method, params, result)
}

// CallContext is Call bounded by ctx.
func (c *Client) CallContext(ctx context.Context, method string, params, result interface{}) error {
	id := c.lastID.Add(1)
	req := rpc.Request{JSONRPC: "2.0", Method: method, ID: id}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: encode params: %w", method, err)
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("%s: read reply: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, bytes.TrimSpace(data))
	}

	var rep reply
	if err := json.Unmarshal(data, &rep); err != nil {
		return fmt.Errorf("%s: decode reply: %w", method, err)
	}
	if rep.Error != nil {
		return fmt.Errorf("%s: %w", method, rep.Error)
	}
	if rep.ID != id {
		return fmt.Errorf("%s: reply id %d, want %d", method, rep.ID, id)
	}
	if result == nil || len(rep.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rep.Result, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}
