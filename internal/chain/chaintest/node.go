// Package chaintest provides a scripted JSON-RPC node for ledger tests.
package chaintest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/HugoJanow/ArticlePulse/internal/chain"
)

// Handler answers one RPC method. Returning a non-nil *chain.RPCError sends an error response.
type Handler func(params []json.RawMessage) (interface{}, *chain.RPCError)

// Node is an httptest server speaking JSON-RPC 2.0.
type Node struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
}

// Call records one request received by the node.
type Call struct {
	Method string
	Params []json.RawMessage
}

// NewNode starts a node closed with the test.
func NewNode(t *testing.T) *Node {
	t.Helper()
	n := &Node{handlers: make(map[string]Handler)}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Close)
	return n
}

// Handle registers h for method.
func (n *Node) Handle(method string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// Calls returns the recorded calls for method, or every call when method is "".
func (n *Node) Calls(method string) []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Call
	for _, c := range n.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Client returns a chain client pointed at the node.
func (n *Node) Client(t *testing.T) *chain.Client {
	t.Helper()
	client, err := chain.NewClient(chain.Config{
		RPCURL:       n.URL,
		NetworkID:    894710606,
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int               `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls = append(n.calls, Call{Method: req.Method, Params: req.Params})
	h := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if h == nil {
		resp["error"] = chain.RPCError{Code: -32601, Message: "Method not found"}
	} else if result, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Halt builds a HALT invoke result with the given stack.
func Halt(stack ...chain.StackItem) chain.InvokeResult {
	if stack == nil {
		stack = []chain.StackItem{}
	}
	return chain.InvokeResult{State: chain.VMStateHalt, GasConsumed: "1000000", Stack: stack}
}

// Fault builds a FAULT invoke result.
func Fault(exception string) chain.InvokeResult {
	return chain.InvokeResult{State: chain.VMStateFault, GasConsumed: "1000000", Exception: exception, Stack: []chain.StackItem{}}
}

// Bool builds a Boolean stack item.
func Bool(v bool) chain.StackItem {
	raw, _ := json.Marshal(v)
	return chain.StackItem{Type: "Boolean", Value: raw}
}

// Int builds an Integer stack item from its decimal string.
func Int(v string) chain.StackItem {
	raw, _ := json.Marshal(v)
	return chain.StackItem{Type: "Integer", Value: raw}
}
