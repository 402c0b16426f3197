package ledgerchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/wallet"

	"github.com/HugoJanow/ArticlePulse/internal/chain"
)

// =============================================================================
// Token Contract (NEP-17 plus approve/allowance)
// =============================================================================

// TokenContract provides interaction with the article payment token.
type TokenContract struct {
	client       *chain.Client
	contractHash string
}

// NewTokenContract creates a token contract interface.
func NewTokenContract(client *chain.Client, contractHash string) *TokenContract {
	return &TokenContract{client: client, contractHash: contractHash}
}

// Hash returns the contract script hash in canonical form.
func (t *TokenContract) Hash() string {
	return t.contractHash
}

// BalanceOf returns the atomic token balance of account.
func (t *TokenContract) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	item, err := t.client.InvokeRead(ctx, t.contractHash, "balanceOf", chain.NewHash160Param(account))
	if err != nil {
		return nil, err
	}
	return chain.ParseInteger(item)
}

// Decimals returns the token precision.
func (t *TokenContract) Decimals(ctx context.Context) (int32, error) {
	item, err := t.client.InvokeRead(ctx, t.contractHash, "decimals")
	if err != nil {
		return 0, err
	}
	n, err := chain.ParseInteger(item)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() < 0 || n.Int64() > 77 {
		return 0, fmt.Errorf("decimals out of range: %s", n)
	}
	return int32(n.Int64()), nil
}

// Allowance returns how much spender may still move on behalf of owner.
func (t *TokenContract) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	item, err := t.client.InvokeRead(ctx, t.contractHash, "allowance",
		chain.NewHash160Param(owner), chain.NewHash160Param(spender))
	if err != nil {
		return nil, err
	}
	return chain.ParseInteger(item)
}

// Approve lets spender move amount from owner's balance and waits for execution.
func (t *TokenContract) Approve(ctx context.Context, owner *wallet.Account, spender string, amount *big.Int) (*chain.TxResult, error) {
	if owner == nil {
		return nil, fmt.Errorf("wallet required for write operations")
	}
	params := []chain.ContractParam{
		chain.NewHash160Param(chain.AccountAddress(owner)),
		chain.NewHash160Param(spender),
		chain.NewIntegerParam(amount),
	}
	return t.client.InvokeFunctionWithSignerAndWait(ctx, t.contractHash, "approve", params, owner, transaction.CalledByEntry)
}

// Transfer moves amount from the signer to recipient and waits for execution.
func (t *TokenContract) Transfer(ctx context.Context, from *wallet.Account, to string, amount *big.Int) (*chain.TxResult, error) {
	if from == nil {
		return nil, fmt.Errorf("wallet required for write operations")
	}
	params := []chain.ContractParam{
		chain.NewHash160Param(chain.AccountAddress(from)),
		chain.NewHash160Param(to),
		chain.NewIntegerParam(amount),
		chain.NewAnyParam(),
	}
	return t.client.InvokeFunctionWithSignerAndWait(ctx, t.contractHash, "transfer", params, from, transaction.CalledByEntry)
}

// =============================================================================
// Article Purchase Contract
// =============================================================================

// ArticlePurchaseContract provides interaction with the purchase contract bound to the token.
type ArticlePurchaseContract struct {
	client       *chain.Client
	contractHash string
}

// NewArticlePurchaseContract creates a purchase contract interface.
func NewArticlePurchaseContract(client *chain.Client, contractHash string) *ArticlePurchaseContract {
	return &ArticlePurchaseContract{client: client, contractHash: contractHash}
}

// Hash returns the contract script hash in canonical form.
func (p *ArticlePurchaseContract) Hash() string {
	return p.contractHash
}

// HasAccess reports whether buyer has paid for articleID on chain.
func (p *ArticlePurchaseContract) HasAccess(ctx context.Context, buyer string, articleID int64) (bool, error) {
	item, err := p.client.InvokeRead(ctx, p.contractHash, "hasAccess",
		chain.NewHash160Param(buyer), chain.NewInt64Param(articleID))
	if err != nil {
		return false, err
	}
	return chain.ParseBoolean(item)
}

// BuyArticle pays for articleID from buyer's approved allowance and waits for execution.
// The buyer's witness uses CalledByEntry so the contract can pull the approved tokens.
func (p *ArticlePurchaseContract) BuyArticle(ctx context.Context, buyer *wallet.Account, articleID int64) (*chain.TxResult, error) {
	if buyer == nil {
		return nil, fmt.Errorf("wallet required for write operations")
	}
	params := []chain.ContractParam{
		chain.NewHash160Param(chain.AccountAddress(buyer)),
		chain.NewInt64Param(articleID),
	}
	return p.client.InvokeFunctionWithSignerAndWait(ctx, p.contractHash, "buyArticle", params, buyer, transaction.CalledByEntry)
}
