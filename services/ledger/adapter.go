// Package ledger reads and writes article purchase facts against the Neo N3 contracts.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/wallet"

	"github.com/HugoJanow/ArticlePulse/internal/chain"
	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
	"github.com/HugoJanow/ArticlePulse/internal/metrics"
	ledgerchain "github.com/HugoJanow/ArticlePulse/services/ledger/chain"
)

// DefaultTimeout bounds read-only ledger calls.
const DefaultTimeout = 5 * time.Second

// Receipt identifies the transactions of a ledger purchase.
type Receipt struct {
	TransactionReference string `json:"transactionReference"`
	ApprovalReference    string `json:"approvalReference"`
}

// Adapter is the entitlement ledger as seen by the rest of the service.
type Adapter interface {
	HasAccess(ctx context.Context, buyer string, articleID int64) (bool, error)
	RecordPurchaseOnLedger(ctx context.Context, buyer string, articleID int64, priceAtomic string) (*Receipt, error)
	Balance(ctx context.Context, address string) (*big.Int, error)
	FormatUnits(ctx context.Context, atomic *big.Int) string
	Addresses() chain.ContractAddresses
}

// Config configures the Neo adapter.
type Config struct {
	Client    *chain.Client
	Addresses chain.ContractAddresses
	// CustodialKeys are WIF or hex private keys of wallets the server may buy for.
	CustodialKeys []string
	// OperatorKey signs token transfers issued by Fund.
	OperatorKey     string
	Timeout         time.Duration
	DefaultDecimals int32
	Logger          *logging.Logger
}

// Neo talks to the token and purchase contracts over JSON-RPC.
type Neo struct {
	token     *ledgerchain.TokenContract
	purchase  *ledgerchain.ArticlePurchaseContract
	addresses chain.ContractAddresses
	custodial map[string]*wallet.Account
	operator  *wallet.Account
	timeout   time.Duration
	logger    *logging.Logger

	decimalsMu      sync.Mutex
	decimals        int32
	decimalsLoaded  bool
	defaultDecimals int32
}

// NewNeo builds the ledger adapter.
func NewNeo(cfg Config) (*Neo, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("ledger: chain client required")
	}
	addrs := cfg.Addresses
	if err := addrs.Normalize(); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	if !addrs.Configured() {
		return nil, fmt.Errorf("ledger: token and purchase contract addresses required")
	}

	n := &Neo{
		token:           ledgerchain.NewTokenContract(cfg.Client, addrs.TokenAddress),
		purchase:        ledgerchain.NewArticlePurchaseContract(cfg.Client, addrs.PurchaseAddress),
		addresses:       addrs,
		custodial:       make(map[string]*wallet.Account),
		timeout:         cfg.Timeout,
		logger:          cfg.Logger,
		defaultDecimals: cfg.DefaultDecimals,
	}
	if n.timeout <= 0 {
		n.timeout = DefaultTimeout
	}
	if n.logger == nil {
		n.logger = logging.Default()
	}
	for i, key := range cfg.CustodialKeys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		acc, err := chain.AccountFromKey(key)
		if err != nil {
			return nil, fmt.Errorf("ledger: custodial key %d: %w", i, err)
		}
		n.custodial[chain.AccountAddress(acc)] = acc
	}
	if strings.TrimSpace(cfg.OperatorKey) != "" {
		acc, err := chain.AccountFromKey(cfg.OperatorKey)
		if err != nil {
			return nil, fmt.Errorf("ledger: operator key: %w", err)
		}
		n.operator = acc
	}
	return n, nil
}

// Addresses returns the configured contract addresses.
func (n *Neo) Addresses() chain.ContractAddresses {
	return n.addresses
}

// CustodialAddresses lists the wallets RecordPurchaseOnLedger can sign for.
func (n *Neo) CustodialAddresses() []string {
	out := make([]string, 0, len(n.custodial))
	for addr := range n.custodial {
		out = append(out, addr)
	}
	return out
}

func (n *Neo) observe(op string, start time.Time, err error) {
	metrics.RecordLedgerCall(op, string(errors.CodeOf(err)), time.Since(start))
}

// HasAccess asks the purchase contract whether buyer owns articleID. Any failure to get a
// definitive answer is LEDGER_UNAVAILABLE.
func (n *Neo) HasAccess(ctx context.Context, buyer string, articleID int64) (ok bool, err error) {
	start := time.Now()
	defer func() { n.observe("hasAccess", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	ok, err = n.purchase.HasAccess(ctx, buyer, articleID)
	if err != nil {
		return false, errors.LedgerUnavailable(err)
	}
	return ok, nil
}

// Balance returns the atomic token balance of address.
func (n *Neo) Balance(ctx context.Context, address string) (bal *big.Int, err error) {
	start := time.Now()
	defer func() { n.observe("balanceOf", start, err) }()

	address, err = chain.NormalizeAddress(address)
	if err != nil {
		return nil, errors.Validation("address", "invalid address format")
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	bal, err = n.token.BalanceOf(ctx, address)
	if err != nil {
		return nil, errors.LedgerUnavailable(err)
	}
	return bal, nil
}

// Decimals returns the token precision, queried once from the contract. The configured default
// is used while the contract cannot be reached.
func (n *Neo) Decimals(ctx context.Context) int32 {
	n.decimalsMu.Lock()
	defer n.decimalsMu.Unlock()
	if n.decimalsLoaded {
		return n.decimals
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	d, err := n.token.Decimals(ctx)
	if err != nil {
		n.logger.WithContext(ctx).WithError(err).Warn("Token decimals unavailable, using configured default")
		return n.defaultDecimals
	}
	n.decimals, n.decimalsLoaded = d, true
	return d
}

// FormatUnits renders an atomic amount in whole tokens.
func (n *Neo) FormatUnits(ctx context.Context, atomic *big.Int) string {
	return FormatUnits(atomic, n.Decimals(ctx))
}

// RecordPurchaseOnLedger buys articleID for a custodial buyer: balance precheck, approve unless
// the standing allowance already covers the price, then buyArticle. Insufficient funds fail
// before any transaction is sent. A purchase failing after a confirmed approval is
// PARTIAL_PURCHASE carrying the approval reference.
func (n *Neo) RecordPurchaseOnLedger(ctx context.Context, buyer string, articleID int64, priceAtomic string) (receipt *Receipt, err error) {
	start := time.Now()
	defer func() { n.observe("purchase", start, err) }()

	buyer, err = chain.NormalizeAddress(buyer)
	if err != nil {
		return nil, errors.Validation("userAddress", "invalid address format")
	}
	acc, ok := n.custodial[buyer]
	if !ok {
		return nil, errors.Validation("userAddress", "no custodial wallet for this address; purchase from the wallet and report the transaction")
	}
	price, ok := new(big.Int).SetString(priceAtomic, 10)
	if !ok || price.Sign() < 0 {
		return nil, errors.Validation("price", "invalid atomic price")
	}

	readCtx, cancel := context.WithTimeout(ctx, n.timeout)
	balance, err := n.token.BalanceOf(readCtx, buyer)
	cancel()
	if err != nil {
		return nil, errors.LedgerUnavailable(err)
	}
	if balance.Cmp(price) < 0 {
		return nil, errors.InsufficientBalance(n.FormatUnits(ctx, balance), n.FormatUnits(ctx, price))
	}

	log := n.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"buyer":      buyer,
		"article_id": articleID,
		"price":      priceAtomic,
	})

	var approvalRef string
	if n.allowanceCovers(ctx, buyer, price) {
		log.Info("Existing allowance covers price, skipping approval")
	} else {
		approval, err := n.token.Approve(ctx, acc, n.addresses.PurchaseAddress, price)
		if err != nil {
			log.WithError(err).Warn("Token approval failed")
			return nil, errors.LedgerUnavailable(err)
		}
		approvalRef = approval.TxHash
		log = log.WithField("approval_tx", approvalRef)
	}

	buy, err := n.purchase.BuyArticle(ctx, acc, articleID)
	if err != nil {
		if approvalRef == "" {
			log.WithError(err).Warn("Purchase failed on existing allowance")
			return nil, errors.LedgerUnavailable(err)
		}
		log.WithError(err).Error("Purchase failed after approval")
		return nil, errors.PartialPurchase(approvalRef, err)
	}

	log.WithField("purchase_tx", buy.TxHash).Info("Article purchased on ledger")
	return &Receipt{TransactionReference: buy.TxHash, ApprovalReference: approvalRef}, nil
}

// allowanceCovers reports whether the purchase contract may already pull price from buyer, as
// left behind by an earlier approval whose purchase failed. Read failures count as no.
func (n *Neo) allowanceCovers(ctx context.Context, buyer string, price *big.Int) bool {
	readCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	allowance, err := n.token.Allowance(readCtx, buyer, n.addresses.PurchaseAddress)
	if err != nil {
		n.logger.WithContext(ctx).WithError(err).Debug("Allowance unavailable, approving")
		return false
	}
	return allowance.Cmp(price) >= 0
}

// Fund transfers amount atomic tokens from the operator wallet to address.
func (n *Neo) Fund(ctx context.Context, address string, amount *big.Int) (txRef string, err error) {
	start := time.Now()
	defer func() { n.observe("transfer", start, err) }()

	if n.operator == nil {
		return "", errors.Validation("", "operator key not configured")
	}
	address, err = chain.NormalizeAddress(address)
	if err != nil {
		return "", errors.Validation("address", "invalid address format")
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", errors.Validation("amount", "amount must be positive")
	}
	res, err := n.token.Transfer(ctx, n.operator, address, amount)
	if err != nil {
		return "", errors.LedgerUnavailable(err)
	}
	n.logger.LogSecurityEvent(ctx, "tokens_transferred", map[string]interface{}{
		"to":     address,
		"amount": amount.String(),
		"tx":     res.TxHash,
	})
	return res.TxHash, nil
}

// Disabled is the adapter used when no ledger is configured.
type Disabled struct{}

var errLedgerDisabled = fmt.Errorf("ledger not configured")

func (Disabled) HasAccess(context.Context, string, int64) (bool, error) {
	return false, errors.LedgerUnavailable(errLedgerDisabled)
}

func (Disabled) RecordPurchaseOnLedger(context.Context, string, int64, string) (*Receipt, error) {
	return nil, errors.LedgerUnavailable(errLedgerDisabled)
}

func (Disabled) Balance(context.Context, string) (*big.Int, error) {
	return nil, errors.LedgerUnavailable(errLedgerDisabled)
}

func (Disabled) FormatUnits(_ context.Context, atomic *big.Int) string {
	return FormatUnits(atomic, DefaultDecimals)
}

func (Disabled) Addresses() chain.ContractAddresses {
	return chain.ContractAddresses{}
}
