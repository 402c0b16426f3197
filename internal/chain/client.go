// Package chain provides Neo N3 JSON-RPC access for the entitlement ledger.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Client is a minimal Neo N3 RPC client.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	networkID  atomic.Uint32
	nextID     atomic.Int64

	txWait       time.Duration
	pollInterval time.Duration
}

// Config holds client configuration.
type Config struct {
	RPCURL    string
	NetworkID uint32 // MainNet: 860833102, TestNet: 894710606
	Timeout   time.Duration

	// TxWaitTimeout bounds confirmation waits for relayed transactions.
	TxWaitTimeout time.Duration
	PollInterval  time.Duration
}

// NewClient creates a new Neo N3 client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		txWait:       cfg.TxWaitTimeout,
		pollInterval: cfg.PollInterval,
	}
	if c.txWait <= 0 {
		c.txWait = DefaultTxWaitTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	c.networkID.Store(cfg.NetworkID)
	return c, nil
}

// NetworkID returns the configured network magic, querying getversion when it was not configured.
func (c *Client) NetworkID(ctx context.Context) (uint32, error) {
	if id := c.networkID.Load(); id != 0 {
		return id, nil
	}
	result, err := c.Call(ctx, "getversion", nil)
	if err != nil {
		return 0, err
	}
	var version struct {
		Protocol struct {
			Network uint32 `json:"network"`
		} `json:"protocol"`
	}
	if err := json.Unmarshal(result, &version); err != nil {
		return 0, fmt.Errorf("unmarshal version: %w", err)
	}
	c.networkID.Store(version.Protocol.Network)
	return version.Protocol.Network, nil
}

// Call makes an RPC call to the Neo N3 node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      int(c.nextID.Add(1)),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("rpc node returned HTTP %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// GetBlockCount returns the current block height.
func (c *Client) GetBlockCount(ctx context.Context) (uint32, error) {
	result, err := c.Call(ctx, "getblockcount", nil)
	if err != nil {
		return 0, err
	}

	var count uint32
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetApplicationLog returns the application log for a transaction.
func (c *Client) GetApplicationLog(ctx context.Context, txHash string) (*ApplicationLog, error) {
	result, err := c.Call(ctx, "getapplicationlog", []interface{}{txHash})
	if err != nil {
		return nil, err
	}

	var log ApplicationLog
	if err := json.Unmarshal(result, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// CalculateNetworkFee asks the node for the network fee of an unsigned transaction.
func (c *Client) CalculateNetworkFee(ctx context.Context, txBase64 string) (int64, error) {
	result, err := c.Call(ctx, "calculatenetworkfee", []interface{}{txBase64})
	if err != nil {
		return 0, err
	}
	var fee struct {
		NetworkFee json.Number `json:"networkfee"`
	}
	if err := json.Unmarshal(result, &fee); err != nil {
		return 0, err
	}
	return strconv.ParseInt(fee.NetworkFee.String(), 10, 64)
}
