package chain

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

// ValidUntilIncrement is added to the current height to compute ValidUntilBlock.
const ValidUntilIncrement = 100

// InvokeFunctionWithSignerAndWait builds, signs and relays a transaction calling method on
// contractHash with account as the sole signer, then blocks until the transaction is persisted
// and reports the execution VM state. A FAULT is returned as *FaultError together with the
// populated TxResult.
func (c *Client) InvokeFunctionWithSignerAndWait(
	ctx context.Context,
	contractHash, method string,
	params []ContractParam,
	account *wallet.Account,
	scope transaction.WitnessScope,
) (*TxResult, error) {
	if account == nil {
		return nil, fmt.Errorf("%s: signer account required", method)
	}
	contract, err := util.Uint160DecodeStringLE(strings.TrimPrefix(contractHash, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode contract hash %q: %w", contractHash, err)
	}

	args := make([]any, 0, len(params))
	for i, p := range params {
		arg, err := p.scriptArg()
		if err != nil {
			return nil, fmt.Errorf("%s: param %d: %w", method, i, err)
		}
		args = append(args, arg)
	}
	script, err := smartcontract.CreateCallScript(contract, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: build script: %w", method, err)
	}

	signers := []Signer{{Account: "0x" + account.ScriptHash().StringLE(), Scopes: scope.String()}}
	test, err := c.InvokeScript(ctx, script, signers)
	if err != nil {
		return nil, fmt.Errorf("%s: test invoke: %w", method, err)
	}
	if !test.Halted() {
		return nil, &FaultError{Method: method, Exception: test.Exception}
	}
	sysFee, err := strconv.ParseInt(test.GasConsumed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: parse gas consumed %q: %w", method, test.GasConsumed, err)
	}

	height, err := c.GetBlockCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: block count: %w", method, err)
	}
	network, err := c.NetworkID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: network: %w", method, err)
	}

	tx := transaction.New(script, sysFee)
	tx.Nonce = randomNonce()
	tx.ValidUntilBlock = height + ValidUntilIncrement
	tx.Signers = []transaction.Signer{{Account: account.ScriptHash(), Scopes: scope}}
	tx.Scripts = []transaction.Witness{{VerificationScript: account.GetVerificationScript()}}

	netFee, err := c.CalculateNetworkFee(ctx, base64.StdEncoding.EncodeToString(tx.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%s: network fee: %w", method, err)
	}
	tx.NetworkFee = netFee

	if err := account.SignTx(netmode.Magic(network), tx); err != nil {
		return nil, fmt.Errorf("%s: sign: %w", method, err)
	}

	raw := base64.StdEncoding.EncodeToString(tx.Bytes())
	hash, appLog, err := c.SendRawTransactionAndWait(ctx, raw, c.pollInterval, c.txWait)
	if err != nil {
		if hash == "" {
			return nil, fmt.Errorf("%s: relay: %w", method, err)
		}
		return &TxResult{TxHash: hash}, fmt.Errorf("wait for %s execution: %w", method, err)
	}

	result := &TxResult{TxHash: hash, AppLog: appLog}
	if appLog == nil || len(appLog.Executions) == 0 {
		return result, fmt.Errorf("%s: application log for %s has no executions", method, hash)
	}
	exec := appLog.Executions[0]
	result.VMState = exec.VMState
	if exec.VMState != VMStateHalt {
		return result, &FaultError{Method: method, Exception: exec.Exception}
	}
	return result, nil
}

func randomNonce() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b[:])
}

// scriptArg converts the JSON-RPC parameter form into a value accepted by the script emitter.
func (p ContractParam) scriptArg() (any, error) {
	switch p.Type {
	case ParamInteger:
		s, ok := p.Value.(string)
		if !ok {
			return nil, fmt.Errorf("integer value must be a decimal string")
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return n, nil
	case ParamHash160:
		s, _ := p.Value.(string)
		return util.Uint160DecodeStringLE(strings.TrimPrefix(s, "0x"))
	case ParamByteArray:
		s, _ := p.Value.(string)
		return base64.StdEncoding.DecodeString(s)
	case ParamString:
		s, _ := p.Value.(string)
		return s, nil
	case ParamBoolean:
		b, _ := p.Value.(bool)
		return b, nil
	case ParamAny:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %s", p.Type)
	}
}
