package chain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StackItem is one VM stack entry as rendered by the RPC server.
type StackItem struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// InvokeResult is the result of invokefunction / invokescript.
type InvokeResult struct {
	Script      string      `json:"script"`
	State       string      `json:"state"`
	GasConsumed string      `json:"gasconsumed"`
	Exception   string      `json:"exception,omitempty"`
	Stack       []StackItem `json:"stack"`
}

// Halted reports whether the VM finished without a fault.
func (r *InvokeResult) Halted() bool {
	return r.State == VMStateHalt
}

// ContractParam is a typed invocation argument.
type ContractParam struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// Signer describes a transaction signer for test invocations.
type Signer struct {
	Account string `json:"account"`
	Scopes  string `json:"scopes"`
}

// ApplicationLog is the result of getapplicationlog.
type ApplicationLog struct {
	TxHash     string      `json:"txid"`
	Executions []Execution `json:"executions"`
}

// Execution is one trigger execution inside an application log.
type Execution struct {
	Trigger       string         `json:"trigger"`
	VMState       string         `json:"vmstate"`
	Exception     string         `json:"exception,omitempty"`
	GasConsumed   string         `json:"gasconsumed"`
	Stack         []StackItem    `json:"stack"`
	Notifications []Notification `json:"notifications"`
}

// Notification is a contract event emitted during execution.
type Notification struct {
	Contract  string    `json:"contract"`
	EventName string    `json:"eventname"`
	State     StackItem `json:"state"`
}

// TxResult summarizes a relayed transaction.
type TxResult struct {
	TxHash  string
	VMState string
	AppLog  *ApplicationLog
}

// VM states.
const (
	VMStateHalt  = "HALT"
	VMStateFault = "FAULT"
)

func isNotFoundError(err error) bool {
	rpcErr, ok := err.(*RPCError)
	if !ok {
		return false
	}
	// -100 is "unknown transaction" on both reference node implementations.
	if rpcErr.Code == -100 {
		return true
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "unknown") || strings.Contains(msg, "not found")
}
