package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HugoJanow/ArticlePulse/internal/chain"
	"github.com/HugoJanow/ArticlePulse/internal/chain/chaintest"
	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
)

const (
	tokenHash    = "0x1111111111111111111111111111111111111111"
	purchaseHash = "0x2222222222222222222222222222222222222222"
	price        = "100000000000000000"
)

// ledgerNode scripts a node whose read methods answer from reads and whose writes succeed unless
// the script calls faultOn.
type ledgerNode struct {
	*chaintest.Node
	mu      sync.Mutex
	reads   map[string]chain.StackItem
	faultOn string
	sent    atomic.Int32
}

func (n *ledgerNode) setRead(method string, item chain.StackItem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reads[method] = item
}

func (n *ledgerNode) setFault(method string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faultOn = method
}

func newLedgerNode(t *testing.T) *ledgerNode {
	t.Helper()
	n := &ledgerNode{Node: chaintest.NewNode(t), reads: map[string]chain.StackItem{}}
	n.Handle("invokefunction", func(params []json.RawMessage) (interface{}, *chain.RPCError) {
		var method string
		_ = json.Unmarshal(params[1], &method)
		n.mu.Lock()
		item, ok := n.reads[method]
		n.mu.Unlock()
		if !ok {
			return chaintest.Fault("unknown method " + method), nil
		}
		return chaintest.Halt(item), nil
	})
	n.Handle("invokescript", func(params []json.RawMessage) (interface{}, *chain.RPCError) {
		var raw string
		_ = json.Unmarshal(params[0], &raw)
		script, _ := base64.StdEncoding.DecodeString(raw)
		n.mu.Lock()
		faultOn := n.faultOn
		n.mu.Unlock()
		if faultOn != "" && bytes.Contains(script, []byte(faultOn)) {
			return chaintest.Fault(faultOn + " rejected"), nil
		}
		return chaintest.Halt(chaintest.Bool(true)), nil
	})
	n.Handle("getblockcount", func([]json.RawMessage) (interface{}, *chain.RPCError) {
		return 500, nil
	})
	n.Handle("calculatenetworkfee", func([]json.RawMessage) (interface{}, *chain.RPCError) {
		return map[string]string{"networkfee": "100000"}, nil
	})
	n.Handle("sendrawtransaction", func([]json.RawMessage) (interface{}, *chain.RPCError) {
		return map[string]string{"hash": fmt.Sprintf("0x%064d", n.sent.Add(1))}, nil
	})
	n.Handle("getapplicationlog", func(params []json.RawMessage) (interface{}, *chain.RPCError) {
		var hash string
		_ = json.Unmarshal(params[0], &hash)
		return chain.ApplicationLog{TxHash: hash, Executions: []chain.Execution{{VMState: chain.VMStateHalt}}}, nil
	})
	return n
}

func newKey(t *testing.T) (string, string) {
	t.Helper()
	priv, err := keys.NewPrivateKey()
	require.NoError(t, err)
	acc, err := chain.AccountFromKey(priv.String())
	require.NoError(t, err)
	return priv.String(), chain.AccountAddress(acc)
}

func newAdapter(t *testing.T, node *ledgerNode, custodial ...string) *Neo {
	t.Helper()
	adapter, err := NewNeo(Config{
		Client:          node.Client(t),
		Addresses:       chain.ContractAddresses{TokenAddress: tokenHash, PurchaseAddress: purchaseHash},
		CustodialKeys:   custodial,
		DefaultDecimals: DefaultDecimals,
		Logger:          logging.NewDiscard(),
	})
	require.NoError(t, err)
	return adapter
}

func TestHasAccess(t *testing.T) {
	node := newLedgerNode(t)
	adapter := newAdapter(t, node)
	buyer := "0x00000000000000000000000000000000000000aa"

	node.setRead("hasAccess", chaintest.Bool(false))
	ok, err := adapter.HasAccess(context.Background(), buyer, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	node.setRead("hasAccess", chaintest.Bool(true))
	ok, err = adapter.HasAccess(context.Background(), buyer, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasAccessFailuresAreLedgerUnavailable(t *testing.T) {
	node := newLedgerNode(t)
	adapter := newAdapter(t, node)
	buyer := "0x00000000000000000000000000000000000000aa"

	// FAULT
	_, err := adapter.HasAccess(context.Background(), buyer, 1)
	assert.True(t, errors.Is(err, errors.CodeLedgerUnavailable), "got %v", err)

	// malformed result
	node.setRead("hasAccess", chaintest.Int("not-a-bool"))
	_, err = adapter.HasAccess(context.Background(), buyer, 1)
	assert.True(t, errors.Is(err, errors.CodeLedgerUnavailable), "got %v", err)

	// transport
	node.Close()
	_, err = adapter.HasAccess(context.Background(), buyer, 1)
	assert.True(t, errors.Is(err, errors.CodeLedgerUnavailable), "got %v", err)
}

func TestRecordPurchaseOnLedger(t *testing.T) {
	node := newLedgerNode(t)
	key, buyer := newKey(t)
	adapter := newAdapter(t, node, key)
	node.setRead("balanceOf", chaintest.Int("1000000000000000000"))

	receipt, err := adapter.RecordPurchaseOnLedger(context.Background(), buyer, 1, price)
	require.NoError(t, err)
	assert.NotEqual(t, receipt.ApprovalReference, receipt.TransactionReference)
	assert.Len(t, node.Calls("sendrawtransaction"), 2)
}

func TestRecordPurchaseInsufficientBalanceSendsNothing(t *testing.T) {
	node := newLedgerNode(t)
	key, buyer := newKey(t)
	adapter := newAdapter(t, node, key)
	node.setRead("balanceOf", chaintest.Int("99999999999999999"))
	node.setRead("decimals", chaintest.Int("18"))

	_, err := adapter.RecordPurchaseOnLedger(context.Background(), buyer, 1, price)
	require.True(t, errors.Is(err, errors.CodeInsufficientBalance), "got %v", err)
	details := errors.GetServiceError(err).Details
	assert.Equal(t, "0.1", details["price"])
	assert.Equal(t, "0.099999999999999999", details["balance"])
	assert.Empty(t, node.Calls("invokescript"), "no approval may be attempted")
	assert.Empty(t, node.Calls("sendrawtransaction"))
}

func TestRecordPurchasePartialAfterApproval(t *testing.T) {
	node := newLedgerNode(t)
	key, buyer := newKey(t)
	adapter := newAdapter(t, node, key)
	node.setRead("balanceOf", chaintest.Int(price))
	node.setFault("buyArticle")

	_, err := adapter.RecordPurchaseOnLedger(context.Background(), buyer, 1, price)
	require.True(t, errors.Is(err, errors.CodePartialPurchase), "got %v", err)
	assert.Equal(t, fmt.Sprintf("0x%064d", 1), errors.GetServiceError(err).Details["approvalReference"])
	assert.Len(t, node.Calls("sendrawtransaction"), 1)
}

func TestRecordPurchaseReusesStandingAllowance(t *testing.T) {
	node := newLedgerNode(t)
	key, buyer := newKey(t)
	adapter := newAdapter(t, node, key)
	node.setRead("balanceOf", chaintest.Int(price))
	node.setRead("allowance", chaintest.Int(price))

	receipt, err := adapter.RecordPurchaseOnLedger(context.Background(), buyer, 1, price)
	require.NoError(t, err)
	assert.Empty(t, receipt.ApprovalReference)
	assert.Equal(t, fmt.Sprintf("0x%064d", 1), receipt.TransactionReference)
	assert.Len(t, node.Calls("sendrawtransaction"), 1)

	node.setFault("buyArticle")
	_, err = adapter.RecordPurchaseOnLedger(context.Background(), buyer, 1, price)
	assert.True(t, errors.Is(err, errors.CodeLedgerUnavailable), "got %v", err)
	assert.Len(t, node.Calls("sendrawtransaction"), 1)
}

func TestRecordPurchaseApprovesWhenAllowanceShort(t *testing.T) {
	node := newLedgerNode(t)
	key, buyer := newKey(t)
	adapter := newAdapter(t, node, key)
	node.setRead("balanceOf", chaintest.Int(price))
	node.setRead("allowance", chaintest.Int("1"))

	receipt, err := adapter.RecordPurchaseOnLedger(context.Background(), buyer, 1, price)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ApprovalReference)
	assert.Len(t, node.Calls("sendrawtransaction"), 2)
}

func TestRecordPurchaseApprovalFailure(t *testing.T) {
	node := newLedgerNode(t)
	key, buyer := newKey(t)
	adapter := newAdapter(t, node, key)
	node.setRead("balanceOf", chaintest.Int(price))
	node.setFault("approve")

	_, err := adapter.RecordPurchaseOnLedger(context.Background(), buyer, 1, price)
	assert.True(t, errors.Is(err, errors.CodeLedgerUnavailable), "got %v", err)
	assert.Empty(t, node.Calls("sendrawtransaction"))
}

func TestRecordPurchaseRequiresCustodialWallet(t *testing.T) {
	node := newLedgerNode(t)
	adapter := newAdapter(t, node)

	_, err := adapter.RecordPurchaseOnLedger(context.Background(), "0x00000000000000000000000000000000000000aa", 1, price)
	assert.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)
	assert.Empty(t, node.Calls(""))
}

func TestBalanceAndDecimalsFallback(t *testing.T) {
	node := newLedgerNode(t)
	adapter := newAdapter(t, node)
	node.setRead("balanceOf", chaintest.Int("1500000000000000000"))

	bal, err := adapter.Balance(context.Background(), "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	assert.Equal(t, "1.5", adapter.FormatUnits(context.Background(), bal))

	node.setRead("decimals", chaintest.Int("8"))
	assert.Equal(t, "15000000000", adapter.FormatUnits(context.Background(), bal))
	// cached after the first successful read
	node.setRead("decimals", chaintest.Int("2"))
	assert.Equal(t, int32(8), adapter.Decimals(context.Background()))

	_, err = adapter.Balance(context.Background(), "nope")
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestFund(t *testing.T) {
	node := newLedgerNode(t)
	opKey, _ := newKey(t)
	_, target := newKey(t)
	adapter, err := NewNeo(Config{
		Client:      node.Client(t),
		Addresses:   chain.ContractAddresses{TokenAddress: tokenHash, PurchaseAddress: purchaseHash},
		OperatorKey: opKey,
		Logger:      logging.NewDiscard(),
	})
	require.NoError(t, err)

	ref, err := adapter.Fund(context.Background(), target, big.NewInt(1000))
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	_, err = adapter.Fund(context.Background(), target, big.NewInt(0))
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestNewNeoRequiresAddresses(t *testing.T) {
	node := newLedgerNode(t)
	_, err := NewNeo(Config{Client: node.Client(t)})
	assert.Error(t, err)
	_, err = NewNeo(Config{Client: node.Client(t), Addresses: chain.ContractAddresses{TokenAddress: tokenHash, PurchaseAddress: purchaseHash}, CustodialKeys: []string{"garbage"}})
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	var a Adapter = Disabled{}
	_, err := a.HasAccess(context.Background(), "0x00000000000000000000000000000000000000aa", 1)
	assert.True(t, errors.Is(err, errors.CodeLedgerUnavailable))
	_, err = a.RecordPurchaseOnLedger(context.Background(), "0x00000000000000000000000000000000000000aa", 1, "1")
	assert.True(t, errors.Is(err, errors.CodeLedgerUnavailable))
	assert.False(t, a.Addresses().Configured())
}
