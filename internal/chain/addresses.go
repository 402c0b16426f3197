package chain

import (
	"encoding/json"
	"fmt"
	"os"
)

// ContractAddresses is the generated deployment record read at startup.
type ContractAddresses struct {
	TokenAddress    string      `json:"tokenAddress" yaml:"tokenAddress"`
	PurchaseAddress string      `json:"purchaseAddress" yaml:"purchaseAddress"`
	DeployedAt      string      `json:"deployedAt,omitempty" yaml:"deployedAt"`
	Network         string      `json:"network,omitempty" yaml:"network"`
	ChainID         json.Number `json:"chainId,omitempty" yaml:"chainId"`
}

// LoadAddressesFile reads a contracts file written by the deployment tooling.
func LoadAddressesFile(path string) (ContractAddresses, error) {
	var c ContractAddresses
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read contracts file: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse contracts file %s: %w", path, err)
	}
	return c, nil
}

// Override replaces the addresses with the non-empty arguments.
func (c *ContractAddresses) Override(token, purchase string) {
	if token != "" {
		c.TokenAddress = token
	}
	if purchase != "" {
		c.PurchaseAddress = purchase
	}
}

// Configured reports whether both contract addresses are present.
func (c ContractAddresses) Configured() bool {
	return c.TokenAddress != "" && c.PurchaseAddress != ""
}

// Normalize validates and canonicalizes both addresses in place.
func (c *ContractAddresses) Normalize() error {
	token, err := NormalizeAddress(c.TokenAddress)
	if err != nil {
		return fmt.Errorf("token address: %w", err)
	}
	purchase, err := NormalizeAddress(c.PurchaseAddress)
	if err != nil {
		return fmt.Errorf("purchase address: %w", err)
	}
	c.TokenAddress, c.PurchaseAddress = token, purchase
	return nil
}
