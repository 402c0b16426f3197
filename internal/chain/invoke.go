package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTxWaitTimeout is the default timeout for waiting for transaction execution.
const DefaultTxWaitTimeout = 2 * time.Minute

// DefaultPollInterval is the default interval for polling transaction status.
const DefaultPollInterval = 2 * time.Second

// FaultError reports a VM execution that ended in FAULT.
type FaultError struct {
	Method    string
	Exception string
}

func (e *FaultError) Error() string {
	if e.Exception == "" {
		return fmt.Sprintf("%s: execution faulted", e.Method)
	}
	return fmt.Sprintf("%s: execution faulted: %s", e.Method, e.Exception)
}

// InvokeFunction test-invokes a contract method. Nothing is persisted.
func (c *Client) InvokeFunction(ctx context.Context, scriptHash string, method string, params []ContractParam, signers ...Signer) (*InvokeResult, error) {
	if params == nil {
		params = []ContractParam{}
	}
	args := []interface{}{scriptHash, method, params}
	if len(signers) > 0 {
		args = append(args, signers)
	}
	result, err := c.Call(ctx, "invokefunction", args)
	if err != nil {
		return nil, err
	}

	var invokeResult InvokeResult
	if err := json.Unmarshal(result, &invokeResult); err != nil {
		return nil, err
	}
	return &invokeResult, nil
}

// InvokeScript test-invokes a raw script.
func (c *Client) InvokeScript(ctx context.Context, script []byte, signers []Signer) (*InvokeResult, error) {
	args := []interface{}{base64.StdEncoding.EncodeToString(script)}
	if len(signers) > 0 {
		args = append(args, signers)
	}

	result, err := c.Call(ctx, "invokescript", args)
	if err != nil {
		return nil, err
	}

	var invokeResult InvokeResult
	if err := json.Unmarshal(result, &invokeResult); err != nil {
		return nil, err
	}
	return &invokeResult, nil
}

// InvokeRead test-invokes a read-only method and returns the first stack item.
// A FAULT state is returned as *FaultError.
func (c *Client) InvokeRead(ctx context.Context, scriptHash, method string, params ...ContractParam) (StackItem, error) {
	result, err := c.InvokeFunction(ctx, scriptHash, method, params)
	if err != nil {
		return StackItem{}, err
	}
	if !result.Halted() {
		return StackItem{}, &FaultError{Method: method, Exception: result.Exception}
	}
	if len(result.Stack) == 0 {
		return StackItem{}, fmt.Errorf("%s: no result", method)
	}
	return result.Stack[0], nil
}

// SendRawTransaction relays a signed transaction (base64 encoded) and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, txBase64 string) (string, error) {
	result, err := c.Call(ctx, "sendrawtransaction", []interface{}{txBase64})
	if err != nil {
		return "", err
	}

	var response struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(result, &response); err != nil {
		return "", err
	}
	return response.Hash, nil
}

// WaitForApplicationLog polls for a transaction application log until it is available or ctx is done.
// A missing transaction is treated as transient.
func (c *Client) WaitForApplicationLog(ctx context.Context, txHash string, pollInterval time.Duration) (*ApplicationLog, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			log, err := c.GetApplicationLog(ctx, txHash)
			if err != nil {
				if isNotFoundError(err) {
					continue
				}
				return nil, err
			}
			return log, nil
		}
	}
}

// SendRawTransactionAndWait relays a signed transaction and waits for its application log.
func (c *Client) SendRawTransactionAndWait(ctx context.Context, txBase64 string, pollInterval, waitTimeout time.Duration) (string, *ApplicationLog, error) {
	txHash, err := c.SendRawTransaction(ctx, txBase64)
	if err != nil {
		return "", nil, err
	}

	if waitTimeout <= 0 {
		waitTimeout = DefaultTxWaitTimeout
	}

	wctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	log, err := c.WaitForApplicationLog(wctx, txHash, pollInterval)
	return txHash, log, err
}
