package chain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

var hexAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsHexAddress reports whether s is a "0x"-prefixed 20-byte hex address.
func IsHexAddress(s string) bool {
	return hexAddressPattern.MatchString(s)
}

// NormalizeAddress returns the canonical form of a buyer or contract address: lowercase "0x"
// followed by the 40 hex digits of the script hash. Base58 Neo addresses are converted.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty address")
	}
	if IsHexAddress(s) {
		return strings.ToLower(s), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("invalid address %q", s)
	}
	u, err := address.StringToUint160(s)
	if err != nil {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return ScriptHashString(u), nil
}

// ScriptHashString renders u in canonical form.
func ScriptHashString(u util.Uint160) string {
	return "0x" + u.StringLE()
}

// ScriptHash parses a canonical address into a script hash.
func ScriptHash(canonical string) (util.Uint160, error) {
	norm, err := NormalizeAddress(canonical)
	if err != nil {
		return util.Uint160{}, err
	}
	return util.Uint160DecodeStringLE(strings.TrimPrefix(norm, "0x"))
}

// NeoAddress renders a canonical address in Neo base58 form, for display.
func NeoAddress(canonical string) (string, error) {
	u, err := ScriptHash(canonical)
	if err != nil {
		return "", err
	}
	return address.Uint160ToString(u), nil
}

// AccountFromKey builds a signing account from a WIF or hex-encoded private key.
func AccountFromKey(key string) (*wallet.Account, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "0x")
	if key == "" {
		return nil, fmt.Errorf("empty private key")
	}
	var (
		priv *keys.PrivateKey
		err  error
	)
	if len(key) == 64 {
		priv, err = keys.NewPrivateKeyFromHex(key)
	} else {
		priv, err = keys.NewPrivateKeyFromWIF(key)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return wallet.NewAccountFromPrivateKey(priv), nil
}

// AccountAddress returns the canonical address of acc.
func AccountAddress(acc *wallet.Account) string {
	return ScriptHashString(acc.ScriptHash())
}
